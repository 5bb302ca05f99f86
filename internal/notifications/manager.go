// Package notifications handles system notifications for the basics view
package notifications

import (
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/mrcode/nightscout-basics/internal/models"
)

// Notice type constants
const (
	noticePumpVacation = "pump_vacation"
)

// DefaultRepeatInterval is how long a notice stays suppressed after it was shown
const DefaultRepeatInterval = 24 * time.Hour

// Manager sends desktop notices and suppresses repeats
type Manager struct {
	settings       *models.Settings
	lastNoticeTime map[string]time.Time
	repeatInterval time.Duration
	mu             sync.Mutex

	send func(title, message string) error
	now  func() time.Time
}

// NewManager creates a new notification manager
func NewManager(settings *models.Settings) *Manager {
	return &Manager{
		settings:       settings,
		lastNoticeTime: make(map[string]time.Time),
		repeatInterval: DefaultRepeatInterval,
		send:           sendNotification,
		now:            time.Now,
	}
}

// UpdateSettings updates the settings reference
func (m *Manager) UpdateSettings(settings *models.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
}

// NotifyPumpVacation tells the user that insulin statistics are missing
// because no day in range had complete pump data
func (m *Manager) NotifyPumpVacation() error {
	return m.notify(noticePumpVacation,
		"Pump vacation?",
		"There is not enough pump data in this period to calculate insulin statistics.")
}

func (m *Manager) notify(notice, title, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settings != nil && !m.settings.EnableNotifications {
		return nil
	}

	now := m.now()
	if last, ok := m.lastNoticeTime[notice]; ok && now.Sub(last) < m.repeatInterval {
		return nil
	}

	if err := m.send(title, message); err != nil {
		return err
	}

	m.lastNoticeTime[notice] = now
	return nil
}

// sendNotification sends a system notification
func sendNotification(title, message string) error {
	// Use beeep for cross-platform notifications
	return beeep.Notify(title, message, "")
}

// ClearNoticeState clears the suppression state for a specific notice or all notices
func (m *Manager) ClearNoticeState(notice string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if notice == "" {
		m.lastNoticeTime = make(map[string]time.Time)
	} else {
		delete(m.lastNoticeTime, notice)
	}
}

// SendTestNotification sends a test notification
func (m *Manager) SendTestNotification() error {
	return beeep.Notify("Nightscout Basics", "Test notification - notices are working!", "")
}
