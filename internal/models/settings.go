// Package models contains data structures used throughout the application
package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix for environment overrides, e.g. NSBASICS_TIMEZONE
const EnvPrefix = "NSBASICS"

// Store backends
const (
	StoreFile  = "file"
	StoreMongo = "mongo"
	StoreNone  = "none"
)

// Settings contains all application settings
type Settings struct {
	mu sync.RWMutex `json:"-"`

	// Connection settings
	NightscoutURL string `json:"nightscoutUrl"`
	APISecret     string `json:"apiSecret"` // Plain API secret (will be hashed)
	APIToken      string `json:"apiToken"`  // Token-based auth
	UseToken      bool   `json:"useToken"`  // Use token instead of secret

	// View settings
	Unit     string `json:"unit"`     // "mg/dL" or "mmol/L"
	Timezone string `json:"timezone"` // IANA name used for day boundaries
	Days     int    `json:"days"`     // Length of the basics view

	// Glucose thresholds (in mg/dL, converted for display)
	TargetLow  int `json:"targetLow"`
	TargetHigh int `json:"targetHigh"`
	UrgentLow  int `json:"urgentLow"`
	UrgentHigh int `json:"urgentHigh"`

	// Pump settings
	PumpManufacturer string `json:"pumpManufacturer"` // used when the data has no upload records
	SiteChangeSource string `json:"siteChangeSource"` // "cannulaPrime" or "tubingPrime"

	// Output settings
	EnableNotifications bool   `json:"enableNotifications"`
	Store               string `json:"store"` // "file", "mongo" or "none"
}

// DefaultSettings returns settings with default values
func DefaultSettings() *Settings {
	return &Settings{
		NightscoutURL: "",
		APISecret:     "",
		APIToken:      "",
		UseToken:      false,

		Unit:     string(MgdL),
		Timezone: "UTC",
		Days:     14,

		TargetLow:  70,
		TargetHigh: 180,
		UrgentLow:  54,
		UrgentHigh: 250,

		EnableNotifications: true,
		Store:               StoreFile,
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	appDir := filepath.Join(configDir, "nightscout-basics")
	if err := os.MkdirAll(appDir, 0750); err != nil {
		return "", err
	}

	return appDir, nil
}

// GetConfigPath returns the full path to the config file
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.json"), nil
}

// Load loads settings from the default path
func (s *Settings) Load() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return s.LoadFrom(path)
}

// LoadFrom loads settings from path, keeping defaults when the file is missing
func (s *Settings) LoadFrom(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path) //nolint:gosec // Config path is controlled by the app, not user input
	if err != nil {
		if os.IsNotExist(err) {
			// Use defaults if file doesn't exist
			s.copySettingsFields(DefaultSettings())
			return nil
		}
		return err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parsing settings: %w", err)
	}

	return nil
}

// Save saves settings to the default path
func (s *Settings) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return s.SaveTo(path)
}

// SaveTo saves settings to path
func (s *Settings) SaveTo(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// settingsEnv lists the fields that may be overridden from the environment.
// Unset variables leave the pointer nil.
type settingsEnv struct {
	NightscoutURL    *string `envconfig:"NIGHTSCOUT_URL"`
	APISecret        *string `envconfig:"API_SECRET"`
	APIToken         *string `envconfig:"API_TOKEN"`
	Unit             *string `envconfig:"UNIT"`
	Timezone         *string `envconfig:"TIMEZONE"`
	Days             *int    `envconfig:"DAYS"`
	PumpManufacturer *string `envconfig:"PUMP_MANUFACTURER"`
	SiteChangeSource *string `envconfig:"SITE_CHANGE_SOURCE"`
	Store            *string `envconfig:"STORE"`
}

// ApplyEnvOverrides overlays NSBASICS_* environment variables onto the settings
func (s *Settings) ApplyEnvOverrides() error {
	var env settingsEnv
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if env.NightscoutURL != nil {
		s.NightscoutURL = *env.NightscoutURL
	}
	if env.APISecret != nil {
		s.APISecret = *env.APISecret
	}
	if env.APIToken != nil {
		s.APIToken = *env.APIToken
		s.UseToken = *env.APIToken != ""
	}
	if env.Unit != nil {
		s.Unit = *env.Unit
	}
	if env.Timezone != nil {
		s.Timezone = *env.Timezone
	}
	if env.Days != nil {
		s.Days = *env.Days
	}
	if env.PumpManufacturer != nil {
		s.PumpManufacturer = *env.PumpManufacturer
	}
	if env.SiteChangeSource != nil {
		s.SiteChangeSource = *env.SiteChangeSource
	}
	if env.Store != nil {
		s.Store = *env.Store
	}
	return nil
}

// Clone creates a copy of the settings
func (s *Settings) Clone() *Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Create a new Settings struct with copied values (not the mutex)
	clone := &Settings{}
	clone.copySettingsFields(s)
	return clone
}

// Update updates settings from another Settings object
func (s *Settings) Update(other *Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	s.copySettingsFields(other)
}

// copySettingsFields copies all fields from other to s, excluding the mutex
// The caller must hold the necessary locks on s and other (if other is shared)
func (s *Settings) copySettingsFields(other *Settings) {
	s.NightscoutURL = other.NightscoutURL
	s.APISecret = other.APISecret
	s.APIToken = other.APIToken
	s.UseToken = other.UseToken
	s.Unit = other.Unit
	s.Timezone = other.Timezone
	s.Days = other.Days
	s.TargetLow = other.TargetLow
	s.TargetHigh = other.TargetHigh
	s.UrgentLow = other.UrgentLow
	s.UrgentHigh = other.UrgentHigh
	s.PumpManufacturer = other.PumpManufacturer
	s.SiteChangeSource = other.SiteChangeSource
	s.EnableNotifications = other.EnableNotifications
	s.Store = other.Store
}

// IsConfigured returns true if a Nightscout site is set
func (s *Settings) IsConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.NightscoutURL != ""
}

// BGClasses returns the configured thresholds expressed in units
func (s *Settings) BGClasses(units BGUnits) BGClasses {
	s.mu.RLock()
	defer s.mu.RUnlock()

	classes := BGClasses{
		Units:   MgdL,
		VeryLow: float64(s.UrgentLow),
		Low:     float64(s.TargetLow),
		Target:  float64(s.TargetHigh),
		High:    float64(s.UrgentHigh),
	}
	return classes.In(units)
}
