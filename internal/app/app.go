// Package app provides the main application logic
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/mrcode/nightscout-basics/internal/basics"
	"github.com/mrcode/nightscout-basics/internal/models"
	"github.com/mrcode/nightscout-basics/internal/nightscout"
	"github.com/mrcode/nightscout-basics/internal/notifications"
	"github.com/mrcode/nightscout-basics/internal/store"
)

// Version is the application version
const Version = "1.0.0"

// ErrNotConfigured is returned when a report needs a Nightscout site and none is set
var ErrNotConfigured = errors.New("no Nightscout URL configured")

// Option configures an App
type Option func(*App)

// WithLogger sets the application logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithScope sets the metrics scope the basics counters are reported to
func WithScope(scope tally.Scope) Option {
	return func(a *App) { a.scope = scope }
}

// WithSettings uses settings as-is instead of loading them from disk
func WithSettings(settings *models.Settings) Option {
	return func(a *App) { a.settings = settings }
}

// WithClock replaces the wall clock used for report ranges
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// App struct represents the main application
type App struct {
	settings      *models.Settings
	logger        *zap.Logger
	scope         tally.Scope
	engine        *basics.Engine
	notifyManager *notifications.Manager
	openStore     func(context.Context, *models.Settings, *zap.Logger) (store.Store, error)
	now           func() time.Time

	mu         sync.RWMutex
	lastResult *basics.Result
}

// New creates a new App instance. Without WithSettings the settings file is
// loaded and NSBASICS_* environment overrides are applied on top.
func New(opts ...Option) (*App, error) {
	a := &App{
		logger:    zap.NewNop(),
		scope:     tally.NoopScope,
		openStore: store.New,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.settings == nil {
		settings := models.DefaultSettings()
		if err := settings.Load(); err != nil {
			return nil, fmt.Errorf("loading settings: %w", err)
		}
		if err := settings.ApplyEnvOverrides(); err != nil {
			return nil, err
		}
		a.settings = settings
	}

	a.engine = basics.NewEngine(a.logger.Named("basics"))
	a.notifyManager = notifications.NewManager(a.settings)
	return a, nil
}

// GetSettings returns the current settings
func (a *App) GetSettings() *models.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.Clone()
}

// SaveSettings saves the provided settings
func (a *App) SaveSettings(settings *models.Settings) error {
	a.mu.Lock()
	a.settings.Update(settings)
	a.mu.Unlock()

	if err := a.settings.Save(); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}

	a.notifyManager.UpdateSettings(a.settings)
	a.logger.Info("settings saved")
	return nil
}

// TestConnection tests the Nightscout connection
func (a *App) TestConnection(ctx context.Context, url, secret, token string, useToken bool) error {
	client := nightscout.NewClient(url, secret, token, useToken)
	return client.TestConnection(ctx)
}

// SendTestNotification sends a test notification
func (a *App) SendTestNotification() error {
	return a.notifyManager.SendTestNotification()
}

// IsConfigured returns true if the app is configured
func (a *App) IsConfigured() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.IsConfigured()
}

// LastResult returns the result of the most recent report, or nil
func (a *App) LastResult() *basics.Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastResult
}

// LatestSnapshot reads back the state the last report persisted
func (a *App) LatestSnapshot(ctx context.Context) (*store.Snapshot, error) {
	st, err := a.openStore(ctx, a.GetSettings(), a.logger)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("persistence is disabled: %w", store.ErrNotFound)
	}
	defer func() {
		if err := st.Close(ctx); err != nil {
			a.logger.Warn("failed to close store", zap.Error(err))
		}
	}()
	return st.Latest(ctx)
}

// GetVersion returns the application version
func (a *App) GetVersion() string {
	return Version
}
