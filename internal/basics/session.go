package basics

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrAlreadyMounted is returned by a second Mount on the same session
	ErrAlreadyMounted = errors.New("session already mounted")
	// ErrSessionClosed is returned by Mount and Update after Close
	ErrSessionClosed = errors.New("session closed")
)

// Tracker records usage metrics
type Tracker interface {
	TrackMetric(name string, properties map[string]string)
}

// Notifier surfaces the pump vacation message to the user
type Notifier interface {
	NotifyPumpVacation() error
}

// Persister receives the final state once, when the session is torn down
type Persister interface {
	PersistBasics(ctx context.Context, state State) error
}

// State is the snapshot handed to the Persister
type State struct {
	Data     *AggregatedData `json:"data" bson:"data"`
	Sections Sections        `json:"sections" bson:"sections"`
	Timezone string          `json:"timezone" bson:"timezone"`
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithTracker sets the metrics tracker
func WithTracker(t Tracker) SessionOption {
	return func(s *Session) { s.tracker = t }
}

// WithNotifier sets the pump vacation notifier
func WithNotifier(n Notifier) SessionOption {
	return func(s *Session) { s.notifier = n }
}

// WithPersister sets the teardown persister
func WithPersister(p Persister) SessionOption {
	return func(s *Session) { s.persister = p }
}

// WithLogger sets the session logger
func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// Session is the mount/update/teardown lifecycle around the engine.
// Update may be called concurrently; the last run to finish is kept.
type Session struct {
	engine    *Engine
	tracker   Tracker
	notifier  Notifier
	persister Persister
	logger    *zap.Logger

	mu      sync.Mutex
	last    *Result
	mounted bool
	closed  bool

	closeOnce sync.Once
}

// NewSession creates a session around engine
func NewSession(engine *Engine, opts ...SessionOption) *Session {
	s := &Session{engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.engine == nil {
		s.engine = NewEngine(s.logger)
	}
	return s
}

// Mount performs the initial run and emits the view metrics
func (s *Session) Mount(in Input) (*Result, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return nil, ErrSessionClosed
	case s.mounted:
		s.mu.Unlock()
		return nil, ErrAlreadyMounted
	}
	s.mounted = true
	s.mu.Unlock()

	result, err := s.run(in)
	if err != nil {
		s.mu.Lock()
		s.mounted = false
		s.mu.Unlock()
		return nil, err
	}

	s.track(MetricViewedBasics, map[string]string{"device": result.DeviceMix})
	if result.PumpVacation() {
		s.track(MetricPumpVacationNotice, nil)
		if s.notifier != nil {
			if err := s.notifier.NotifyPumpVacation(); err != nil {
				s.logger.Warn("pump vacation notice failed", zap.Error(err))
			}
		}
	}
	return result, nil
}

// Update recomputes everything from scratch for new input
func (s *Session) Update(in Input) (*Result, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}
	return s.run(in)
}

// Result returns the most recently completed run, or nil
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Close hands the last state to the persister exactly once.
// Persistence failures are logged and not retried.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		last := s.last
		s.mu.Unlock()

		if s.persister == nil || last == nil {
			return
		}
		state := State{
			Data:     last.Data,
			Sections: last.Sections,
			Timezone: last.Timezone,
		}
		if err := s.persister.PersistBasics(ctx, state); err != nil {
			s.logger.Error("failed to persist basics state", zap.Error(err))
			return
		}
		s.logger.Debug("basics state persisted", zap.String("timezone", state.Timezone))
	})
}

func (s *Session) run(in Input) (*Result, error) {
	result, err := s.engine.Run(in)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
	return result, nil
}

func (s *Session) track(name string, properties map[string]string) {
	if s.tracker == nil {
		return
	}
	s.tracker.TrackMetric(name, properties)
}
