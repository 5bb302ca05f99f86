package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mrcode/nightscout-basics/internal/basics"
	"github.com/mrcode/nightscout-basics/internal/models"
	"github.com/mrcode/nightscout-basics/internal/nightscout"
	"github.com/mrcode/nightscout-basics/internal/telemetry"
)

// ReportRequest selects the data and view parameters of one basics report.
// Zero values fall back to the settings.
type ReportRequest struct {
	// InputPath names a JSON file of device events. When empty the events
	// are fetched from the configured Nightscout site.
	InputPath string
	Units     string
	Timezone  string
	Days      int
	End       time.Time
}

// reportInput is what a data source hands to the engine
type reportInput struct {
	events  []models.Event
	units   string
	classes *models.BGClasses
}

// Report loads events, runs one basics session over them and persists the
// resulting state through the configured store
func (a *App) Report(ctx context.Context, req ReportRequest) (*basics.Result, error) {
	settings := a.GetSettings()

	units := req.Units
	if units == "" {
		units = settings.Unit
	}
	tz := req.Timezone
	if tz == "" {
		tz = settings.Timezone
	}
	days := req.Days
	if days == 0 {
		days = settings.Days
	}

	var (
		src *reportInput
		err error
	)
	if req.InputPath != "" {
		src, err = a.loadFile(req.InputPath, units, settings)
	} else {
		src, err = a.fetchNightscout(ctx, settings, units, tz, days, req.End)
	}
	if err != nil {
		return nil, err
	}

	st, err := a.openStore(ctx, settings, a.logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	opts := []basics.SessionOption{
		basics.WithLogger(a.logger.Named("session")),
		basics.WithTracker(telemetry.Multi{
			telemetry.NewLogTracker(a.logger),
			telemetry.NewScopeTracker(a.scope),
		}),
		basics.WithNotifier(a.notifyManager),
	}
	if st != nil {
		opts = append(opts, basics.WithPersister(st))
		defer func() {
			if err := st.Close(ctx); err != nil {
				a.logger.Warn("failed to close store", zap.Error(err))
			}
		}()
	}

	session := basics.NewSession(a.engine, opts...)
	defer session.Close(ctx)

	result, err := session.Mount(basics.Input{
		Events:               src.events,
		Units:                src.units,
		Timezone:             tz,
		Classes:              src.classes,
		Days:                 days,
		End:                  req.End,
		PumpManufacturer:     settings.PumpManufacturer,
		SiteChangePreference: settings.SiteChangeSource,
	})
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.lastResult = result
	a.mu.Unlock()

	return result, nil
}

func (a *App) loadFile(path, units string, settings *models.Settings) (*reportInput, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is supplied by the user on purpose
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	events, err := models.DecodeEvents(data)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("events loaded", zap.String("path", path), zap.Int("count", len(events)))

	return &reportInput{events: events, units: units, classes: settingsClasses(settings, units)}, nil
}

func (a *App) fetchNightscout(ctx context.Context, settings *models.Settings, units, tz string, days int, end time.Time) (*reportInput, error) {
	if !settings.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", basics.ErrInvalidTimezone, tz, err)
	}
	if days <= 0 {
		days = basics.DefaultDays
	}
	if end.IsZero() {
		end = a.now()
	}

	local := end.In(loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -(days - 1))

	client := nightscout.NewClientFromSettings(settings)
	ds, err := client.FetchDataset(ctx, from, end)
	if err != nil {
		return nil, err
	}

	if units == "" && ds.Status != nil {
		units = nightscout.NormalizeUnits(ds.Status.Settings.Units)
	}
	parsed, err := models.ParseUnits(units)
	if err != nil {
		return nil, err
	}

	// server thresholds win over local ones so the report matches the site
	classes := settingsClasses(settings, string(parsed))
	if ds.Status != nil {
		if c, ok := ds.Status.Settings.Thresholds.BGClasses(); ok {
			c = c.In(parsed)
			classes = &c
		}
	}

	events := nightscout.Convert(ds, nightscout.ConvertOptions{
		From:             from,
		To:               end,
		Location:         loc,
		Units:            parsed,
		PumpManufacturer: settings.PumpManufacturer,
	})
	a.logger.Debug("nightscout data converted",
		zap.Time("from", from),
		zap.Time("to", end),
		zap.Int("entries", len(ds.Entries)),
		zap.Int("treatments", len(ds.Treatments)),
		zap.Bool("profile", ds.Profile != nil),
		zap.Int("events", len(events)),
	)

	return &reportInput{events: events, units: string(parsed), classes: classes}, nil
}

// settingsClasses returns the configured thresholds, or nil to use the
// engine defaults when units cannot be parsed
func settingsClasses(settings *models.Settings, units string) *models.BGClasses {
	parsed, err := models.ParseUnits(units)
	if err != nil {
		return nil
	}
	classes := settings.BGClasses(parsed)
	return &classes
}
