// Package models contains data structures used throughout the application
package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// BGUnits is one of the two recognized blood glucose unit systems
type BGUnits string

const (
	MgdL  BGUnits = "mg/dL"
	MmolL BGUnits = "mmol/L"
)

// MmolLToMgdL is the conversion factor between the two unit systems
const MmolLToMgdL = 18.01559

var (
	// ErrMissingUnits is returned when no blood glucose unit was supplied
	ErrMissingUnits = errors.New("blood glucose units are required")
	// ErrUnknownUnits is returned for unit strings outside the two recognized systems
	ErrUnknownUnits = errors.New("unknown blood glucose units")
)

// ParseUnits normalizes a unit string such as "mg/dl" or "MMOL/L"
func ParseUnits(s string) (BGUnits, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", ErrMissingUnits
	case "mg/dl":
		return MgdL, nil
	case "mmol/l":
		return MmolL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownUnits, s)
	}
}

// Valid reports whether u is one of the recognized unit systems
func (u BGUnits) Valid() bool {
	return u == MgdL || u == MmolL
}

// ConvertBG re-expresses value from one unit system in another.
// Both units must be valid; the caller checks that.
func ConvertBG(value float64, from, to BGUnits) float64 {
	switch {
	case from == to:
		return value
	case from == MmolL && to == MgdL:
		return value * MmolLToMgdL
	default:
		return value / MmolLToMgdL
	}
}

// BGCategory is a blood glucose distribution bucket
type BGCategory string

const (
	BGVeryLow  BGCategory = "veryLow"
	BGLow      BGCategory = "low"
	BGTarget   BGCategory = "target"
	BGHigh     BGCategory = "high"
	BGVeryHigh BGCategory = "veryHigh"
)

// BGCategories lists the buckets from lowest to highest
var BGCategories = []BGCategory{BGVeryLow, BGLow, BGTarget, BGHigh, BGVeryHigh}

// BGClasses holds the upper boundaries of each category, expressed in Units
type BGClasses struct {
	Units   BGUnits `json:"units" bson:"units"`
	VeryLow float64 `json:"veryLow" bson:"veryLow"`
	Low     float64 `json:"low" bson:"low"`
	Target  float64 `json:"target" bson:"target"`
	High    float64 `json:"high" bson:"high"`
}

// DefaultBGClasses returns the consensus thresholds for the given units
func DefaultBGClasses(units BGUnits) BGClasses {
	if units == MmolL {
		return BGClasses{Units: MmolL, VeryLow: 3.0, Low: 3.9, Target: 10.0, High: 13.9}
	}
	return BGClasses{Units: MgdL, VeryLow: 54, Low: 70, Target: 180, High: 250}
}

// In returns the thresholds re-expressed in the given units.
// mmol/L boundaries are rounded to one decimal, mg/dL to whole numbers.
func (c BGClasses) In(units BGUnits) BGClasses {
	if c.Units == units {
		return c
	}
	round := func(v float64) float64 {
		v = ConvertBG(v, c.Units, units)
		if units == MmolL {
			return math.Round(v*10) / 10
		}
		return math.Round(v)
	}
	return BGClasses{
		Units:   units,
		VeryLow: round(c.VeryLow),
		Low:     round(c.Low),
		Target:  round(c.Target),
		High:    round(c.High),
	}
}

// Classify places a value (already in c.Units) into its category
func (c BGClasses) Classify(value float64) BGCategory {
	switch {
	case value < c.VeryLow:
		return BGVeryLow
	case value < c.Low:
		return BGLow
	case value <= c.Target:
		return BGTarget
	case value <= c.High:
		return BGHigh
	default:
		return BGVeryHigh
	}
}

// GlucoseEntry represents a single entry from the Nightscout entries API
type GlucoseEntry struct {
	ID      string `json:"_id"`
	SGV     int    `json:"sgv"`  // Sensor glucose value in mg/dL
	MBG     int    `json:"mbg"`  // Meter glucose value in mg/dL
	Date    int64  `json:"date"` // Unix timestamp in milliseconds
	DateStr string `json:"dateString"`
	Device  string `json:"device"`
	Type    string `json:"type"` // "sgv", "mbg" or "cal"
}

// Time returns the time of the glucose entry
func (g *GlucoseEntry) Time() time.Time {
	return time.UnixMilli(g.Date)
}

// ValueMgDL returns the glucose value in mg/dL
func (g *GlucoseEntry) ValueMgDL() int {
	if g.Type == "mbg" {
		return g.MBG
	}
	return g.SGV
}
