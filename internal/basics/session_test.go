package basics

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/mrcode/nightscout-basics/internal/models"
)

type trackedMetric struct {
	name       string
	properties map[string]string
}

type recordingTracker struct {
	mu      sync.Mutex
	metrics []trackedMetric
}

func (r *recordingTracker) TrackMetric(name string, properties map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, trackedMetric{name: name, properties: properties})
}

func (r *recordingTracker) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.metrics))
	for i, m := range r.metrics {
		out[i] = m.name
	}
	return out
}

type countingNotifier struct {
	calls int
}

func (c *countingNotifier) NotifyPumpVacation() error {
	c.calls++
	return nil
}

type recordingPersister struct {
	states []State
	err    error
}

func (r *recordingPersister) PersistBasics(_ context.Context, state State) error {
	r.states = append(r.states, state)
	return r.err
}

func TestSession_MountTracksView(t *testing.T) {
	tracker := &recordingTracker{}
	notifier := &countingNotifier{}
	s := NewSession(NewEngine(nil), WithTracker(tracker), WithNotifier(notifier))

	_, err := s.Mount(Input{Units: "mg/dL", Events: events(
		fullDayBasal(0, 1),
		bolus("b1", at(0, 8), 4),
		cbg(at(0, 9), 120, "mg/dL"),
	)})
	require.NoError(t, err)

	require.Len(t, tracker.metrics, 1)
	assert.Equal(t, MetricViewedBasics, tracker.metrics[0].name)
	assert.Equal(t, map[string]string{"device": "CGM+Pump"}, tracker.metrics[0].properties)
	assert.Zero(t, notifier.calls)
}

func TestSession_MountPumpVacation(t *testing.T) {
	tracker := &recordingTracker{}
	notifier := &countingNotifier{}
	s := NewSession(NewEngine(nil), WithTracker(tracker), WithNotifier(notifier))

	result, err := s.Mount(Input{Units: "mg/dL", Events: events(bolus("b1", at(0, 8), 4))})
	require.NoError(t, err)

	assert.True(t, result.PumpVacation())
	assert.Equal(t, []string{MetricViewedBasics, MetricPumpVacationNotice}, tracker.names())
	assert.Equal(t, 1, notifier.calls)
}

func TestSession_MountTwice(t *testing.T) {
	s := NewSession(nil)
	in := Input{Units: "mg/dL"}

	_, err := s.Mount(in)
	require.NoError(t, err)
	_, err = s.Mount(in)
	assert.ErrorIs(t, err, ErrAlreadyMounted)
}

func TestSession_MountFailureCanRetry(t *testing.T) {
	tracker := &recordingTracker{}
	s := NewSession(nil, WithTracker(tracker))

	_, err := s.Mount(Input{})
	assert.ErrorIs(t, err, models.ErrMissingUnits)
	assert.Empty(t, tracker.names())

	_, err = s.Mount(Input{Units: "mmol/L"})
	assert.NoError(t, err)
}

func TestSession_ClosePersistsOnce(t *testing.T) {
	persister := &recordingPersister{}
	s := NewSession(nil, WithPersister(persister))

	_, err := s.Mount(Input{Units: "mg/dL", Timezone: "Europe/Vienna", Events: events(cbg(at(0, 8), 120, "mg/dL"))})
	require.NoError(t, err)
	updated, err := s.Update(Input{Units: "mg/dL", Timezone: "America/New_York", Events: events(bolus("b1", at(0, 8), 2))})
	require.NoError(t, err)

	s.Close(context.Background())
	s.Close(context.Background())

	require.Len(t, persister.states, 1)
	state := persister.states[0]
	assert.Equal(t, "America/New_York", state.Timezone)
	assert.Same(t, updated.Data, state.Data)
	assert.True(t, state.Sections[SectionBoluses].Active)

	_, err = s.Update(Input{Units: "mg/dL"})
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.Mount(Input{Units: "mg/dL"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_CloseWithoutRun(t *testing.T) {
	persister := &recordingPersister{}
	s := NewSession(nil, WithPersister(persister))

	s.Close(context.Background())
	assert.Empty(t, persister.states)
}

func TestSession_PersistFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	persister := &recordingPersister{err: errors.New("disk full")}
	s := NewSession(nil, WithPersister(persister), WithLogger(zap.New(core)))

	_, err := s.Mount(Input{Units: "mg/dL"})
	require.NoError(t, err)
	s.Close(context.Background())
	s.Close(context.Background())

	assert.Len(t, persister.states, 1)
	assert.Equal(t, 1, logs.FilterMessage("failed to persist basics state").Len())
}

func TestSession_ConcurrentUpdates(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewSession(NewEngine(nil))
	var (
		mu      sync.Mutex
		results []*Result
	)

	var g errgroup.Group
	for days := 1; days <= 8; days++ {
		days := days
		g.Go(func() error {
			result, err := s.Update(Input{
				Units: "mg/dL",
				Days:  days,
				Events: events(
					fullDayBasal(0, 1),
					bolus("b1", at(0, 8), 4),
				),
			})
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Len(t, results, 8)
	last := s.Result()
	require.NotNil(t, last)
	assert.Contains(t, results, last)
}
