// Package models contains data structures used throughout the application
package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Treatment represents a treatment entry from Nightscout (insulin, carbs, etc.)
type Treatment struct {
	ID          string  `json:"_id"`
	EventType   string  `json:"eventType"`
	Date        int64   `json:"date"` // Unix timestamp in milliseconds
	CreatedAt   string  `json:"created_at"`
	Insulin     float64 `json:"insulin"`     // Units of insulin
	Carbs       float64 `json:"carbs"`       // Grams of carbohydrates
	Duration    float64 `json:"duration"`    // Duration in minutes (for temp basals, etc.)
	Glucose     float64 `json:"glucose"`     // Blood glucose value if recorded
	GlucoseType string  `json:"glucoseType"` // "Sensor", "Finger", "Manual"
	Units       string  `json:"units"`       // "mg/dl" or "mmol/l"
	EnteredBy   string  `json:"enteredBy"`
	Device      string  `json:"device"`

	// For basal changes
	Rate     *float64 `json:"rate"`
	Percent  *float64 `json:"percent"`
	Absolute *float64 `json:"absolute"`

	// For combo boluses
	EnteredInsulin float64 `json:"enteredinsulin"`
	SplitNow       float64 `json:"splitNow"`
	SplitExt       float64 `json:"splitExt"`
	Relative       float64 `json:"relative"`
}

// Time returns the time of the treatment
func (t *Treatment) Time() time.Time {
	if t.Date > 0 {
		return time.UnixMilli(t.Date)
	}
	// Fallback to created_at
	parsed, err := time.Parse(time.RFC3339, t.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// HasInsulin returns true if this treatment includes insulin
func (t *Treatment) HasInsulin() bool {
	return t.Insulin > 0
}

// HasCarbs returns true if this treatment includes carbohydrates
func (t *Treatment) HasCarbs() bool {
	return t.Carbs > 0
}

// IsBolus returns true if this is a bolus treatment
func (t *Treatment) IsBolus() bool {
	bolusTypes := map[string]bool{
		TreatmentEventTypes.SnackBolus:      true,
		TreatmentEventTypes.MealBolus:       true,
		TreatmentEventTypes.CorrectionBolus: true,
		TreatmentEventTypes.ComboBolus:      true,
		TreatmentEventTypes.BolusWizard:     true,
		"Bolus":                             true,
	}
	return bolusTypes[t.EventType] || (t.HasInsulin() && t.EventType != TreatmentEventTypes.TempBasal)
}

// TreatmentEventTypes contains the Nightscout event types the converter understands
var TreatmentEventTypes = struct {
	BGCheck         string
	SnackBolus      string
	MealBolus       string
	CorrectionBolus string
	CarbCorrection  string
	ComboBolus      string
	SiteChange      string
	InsulinChange   string
	TempBasal       string
	BolusWizard     string
}{
	BGCheck:         "BG Check",
	SnackBolus:      "Snack Bolus",
	MealBolus:       "Meal Bolus",
	CorrectionBolus: "Correction Bolus",
	CarbCorrection:  "Carb Correction",
	ComboBolus:      "Combo Bolus",
	SiteChange:      "Site Change",
	InsulinChange:   "Insulin Change",
	TempBasal:       "Temp Basal",
	BolusWizard:     "Bolus Wizard",
}

// Profile is a Nightscout profile document
type Profile struct {
	ID             string                  `json:"_id"`
	DefaultProfile string                  `json:"defaultProfile"`
	StartDate      string                  `json:"startDate"`
	Store          map[string]ProfileStore `json:"store"`
}

// ProfileStore is one named therapy profile
type ProfileStore struct {
	Timezone string          `json:"timezone"`
	Units    string          `json:"units"`
	Basal    []ScheduleEntry `json:"basal"`
}

// ScheduleEntry is one step of a daily schedule
type ScheduleEntry struct {
	Time          string  `json:"time"` // "HH:MM"
	Value         float64 `json:"value"`
	TimeAsSeconds *int    `json:"timeAsSeconds"`
}

// Offset returns the step start as an offset from local midnight
func (e ScheduleEntry) Offset() time.Duration {
	if e.TimeAsSeconds != nil {
		return time.Duration(*e.TimeAsSeconds) * time.Second
	}
	hh, mm, ok := strings.Cut(e.Time, ":")
	if !ok {
		return 0
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

// Active returns the default profile store, if any
func (p *Profile) Active() (ProfileStore, bool) {
	if s, ok := p.Store[p.DefaultProfile]; ok {
		return s, true
	}
	for _, name := range sortedKeys(p.Store) {
		return p.Store[name], true
	}
	return ProfileStore{}, false
}

func sortedKeys(m map[string]ProfileStore) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
