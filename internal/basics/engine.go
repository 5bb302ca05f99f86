package basics

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mrcode/nightscout-basics/internal/models"
)

var (
	// ErrInvalidTimezone is returned when the time zone name cannot be loaded
	ErrInvalidTimezone = errors.New("invalid time zone")
	// ErrInvalidDays is returned for a negative range length
	ErrInvalidDays = errors.New("range length must not be negative")
)

// Input is everything one aggregation run depends on
type Input struct {
	Events []models.Event
	Units  string
	// Timezone is an IANA zone name; empty means UTC.
	Timezone string
	// Template defaults to the static section template.
	Template Sections
	// Classes defaults to the consensus thresholds; any units are accepted.
	Classes              *models.BGClasses
	Days                 int
	End                  time.Time
	PumpManufacturer     string
	SiteChangePreference string
}

// Result is the output of one run
type Result struct {
	Data                 *AggregatedData `json:"data"`
	Sections             Sections        `json:"sections"`
	DeviceMix            string          `json:"deviceMix"`
	Timezone             string          `json:"timezone"`
	PumpManufacturer     string          `json:"pumpManufacturer,omitempty"`
	SiteChangeSource     string          `json:"siteChangeSource"`
	InsulinDataAvailable bool            `json:"insulinDataAvailable"`
	Skipped              int             `json:"skipped"`
}

// PumpVacation reports whether insulin data exists but no insulin statistic
// could be computed, which usually means the pump was off for the whole range
func (r *Result) PumpVacation() bool {
	return r.InsulinDataAvailable && r.Data.InsulinAggregatesEmpty()
}

// Engine runs the classification and aggregation pipeline
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates an engine; a nil logger discards output
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Run validates the input and executes one full pipeline pass.
// It reads no clock and keeps no state, so equal inputs give equal results.
func (e *Engine) Run(in Input) (*Result, error) {
	units, err := models.ParseUnits(in.Units)
	if err != nil {
		return nil, err
	}

	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidTimezone, tz, err)
	}

	if in.Days < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDays, in.Days)
	}

	classes := models.DefaultBGClasses(units)
	if in.Classes != nil {
		if !in.Classes.Units.Valid() {
			return nil, fmt.Errorf("thresholds: %w: %q", models.ErrUnknownUnits, in.Classes.Units)
		}
		classes = in.Classes.In(units)
	}

	template := in.Template
	if template == nil {
		template = Template()
	}

	classified := Classify(in.Events, ClassifyOptions{
		Units:                units,
		Location:             loc,
		Classes:              classes,
		Days:                 in.Days,
		End:                  in.End,
		PumpManufacturer:     in.PumpManufacturer,
		SiteChangePreference: in.SiteChangePreference,
	})
	data := Aggregate(classified, classes)
	sections := EvaluateSections(template, classified, data)

	result := &Result{
		Data:                 data,
		Sections:             sections,
		DeviceMix:            DeviceMix(classified),
		Timezone:             tz,
		PumpManufacturer:     classified.PumpManufacturer,
		SiteChangeSource:     classified.SiteChangeSource,
		InsulinDataAvailable: InsulinDataAvailable(classified),
		Skipped:              classified.Skipped,
	}

	e.logger.Debug("basics computed",
		zap.Int("events", len(in.Events)),
		zap.Int("skipped", classified.Skipped),
		zap.String("deviceMix", result.DeviceMix),
		zap.String("siteChangeSource", result.SiteChangeSource),
		zap.Int("completePumpDays", data.CompletePumpDays),
		zap.String("cgmStatus", data.BGDistribution.CGMStatus),
	)
	return result, nil
}
