package basics

import (
	"github.com/samber/lo"
)

// SelectorOption is one cell of a section's subtotal selector
type SelectorOption struct {
	Key        string `json:"key" bson:"key"`
	Label      string `json:"label" bson:"label"`
	Active     *bool  `json:"active,omitempty" bson:"active,omitempty"`
	Primary    bool   `json:"primary,omitempty" bson:"primary,omitempty"`
	Average    bool   `json:"average,omitempty" bson:"average,omitempty"`
	Percentage bool   `json:"percentage,omitempty" bson:"percentage,omitempty"`
}

// SelectorOptions is the grid of selector cells, row by row
type SelectorOptions struct {
	Rows [][]SelectorOption `json:"rows" bson:"rows"`
}

// Section describes one named category of the basics view
type Section struct {
	Title           string           `json:"title" bson:"title"`
	Type            string           `json:"type" bson:"type"`
	Column          string           `json:"column" bson:"column"`
	Index           int              `json:"index" bson:"index"`
	Active          bool             `json:"active" bson:"active"`
	Togglable       bool             `json:"togglable" bson:"togglable"`
	Open            bool             `json:"open" bson:"open"`
	NoData          bool             `json:"noData" bson:"noData"`
	SelectorOptions *SelectorOptions `json:"selectorOptions,omitempty" bson:"selectorOptions,omitempty"`
	// RequiredStats marks an aggregate section: it has data when any of these is computed.
	RequiredStats []string `json:"requiredStats,omitempty" bson:"requiredStats,omitempty"`
}

// IsAggregate reports whether the section is backed by statistics rather than a bucket
func (s *Section) IsAggregate() bool {
	return len(s.RequiredStats) > 0
}

// Clone returns a deep copy of the section
func (s *Section) Clone() *Section {
	if s == nil {
		return nil
	}
	out := *s
	out.RequiredStats = append([]string(nil), s.RequiredStats...)
	if s.SelectorOptions != nil {
		rows := make([][]SelectorOption, len(s.SelectorOptions.Rows))
		for i, row := range s.SelectorOptions.Rows {
			rows[i] = make([]SelectorOption, len(row))
			for j, opt := range row {
				opt.Active = clonePtr(opt.Active)
				rows[i][j] = opt
			}
		}
		out.SelectorOptions = &SelectorOptions{Rows: rows}
	}
	return &out
}

// Sections maps section keys to their descriptors
type Sections map[string]*Section

// Clone returns a deep copy sharing nothing with s
func (s Sections) Clone() Sections {
	if s == nil {
		return nil
	}
	return lo.MapValues(s, func(section *Section, _ string) *Section { return section.Clone() })
}

const (
	columnLeft  = "left"
	columnRight = "right"
)

func option(key, label string) SelectorOption {
	return SelectorOption{Key: key, Label: label}
}

var staticSections = Sections{
	SectionBGDistribution: {
		Title:  "BG distribution",
		Type:   SectionBGDistribution,
		Column: columnLeft,
		Index:  0,
		Active: true,
		Open:   true,
	},
	SectionTotalDailyDose: {
		Title:         "Avg total daily dose",
		Type:          SectionTotalDailyDose,
		Column:        columnLeft,
		Index:         1,
		Active:        true,
		Open:          true,
		RequiredStats: []string{StatAverageDailyDose},
	},
	SectionBasalBolusRatio: {
		Title:         "Insulin ratio",
		Type:          SectionBasalBolusRatio,
		Column:        columnLeft,
		Index:         2,
		Active:        true,
		Open:          true,
		RequiredStats: []string{StatBasalBolusRatio},
	},
	SectionAverageDailyCarbs: {
		Title:         "Avg daily carbs",
		Type:          SectionAverageDailyCarbs,
		Column:        columnLeft,
		Index:         3,
		Active:        true,
		Open:          true,
		RequiredStats: []string{StatAverageDailyCarbs},
	},
	SectionFingersticks: {
		Title:     "BG readings",
		Type:      "fingerstick",
		Column:    columnRight,
		Index:     0,
		Active:    true,
		Togglable: true,
		Open:      true,
		SelectorOptions: &SelectorOptions{Rows: [][]SelectorOption{
			{
				{Key: TotalKey, Label: "Avg per day", Primary: true, Average: true},
				{Key: FingerstickMeter, Label: "Meter", Percentage: true},
				{Key: FingerstickCalibration, Label: "Calibrations", Percentage: true},
			},
			{
				{Key: FingerstickManual, Label: "Manual", Percentage: true},
				{Key: FingerstickVeryLow, Label: "Below range", Percentage: true},
				{Key: FingerstickVeryHigh, Label: "Above range", Percentage: true},
			},
		}},
	},
	SectionBoluses: {
		Title:     "Bolusing",
		Type:      "bolus",
		Column:    columnRight,
		Index:     1,
		Active:    true,
		Togglable: true,
		Open:      true,
		SelectorOptions: &SelectorOptions{Rows: [][]SelectorOption{
			{
				{Key: TotalKey, Label: "Avg per day", Primary: true, Average: true},
				{Key: BolusWizard, Label: "Calculator", Percentage: true},
				{Key: BolusCorrection, Label: "Correction", Percentage: true},
			},
			{
				{Key: BolusExtended, Label: "Extended", Percentage: true},
				{Key: BolusInterrupted, Label: "Interrupted", Percentage: true},
				{Key: BolusOverride, Label: "Override", Percentage: true},
			},
			{
				{Key: BolusUnderride, Label: "Underride", Percentage: true},
				{Key: BolusManual, Label: "Manual", Percentage: true},
			},
		}},
	},
	SectionSiteChanges: {
		Title:     "Infusion site changes",
		Type:      SectionTypeUndeclared,
		Column:    columnRight,
		Index:     2,
		Active:    true,
		Togglable: true,
		Open:      true,
		SelectorOptions: &SelectorOptions{Rows: [][]SelectorOption{
			{
				option(SiteChangeReservoir, "Reservoir change"),
				option(SiteChangeCannula, "Cannula fill"),
				option(SiteChangeTubing, "Tube fill"),
			},
		}},
	},
	SectionBasals: {
		Title:     "Basals",
		Type:      "basal",
		Column:    columnRight,
		Index:     3,
		Active:    true,
		Togglable: true,
		Open:      true,
		SelectorOptions: &SelectorOptions{Rows: [][]SelectorOption{
			{
				{Key: TotalKey, Label: "Total basal events", Primary: true},
				{Key: BasalTemp, Label: "Temp basals"},
				{Key: BasalSuspend, Label: "Suspends"},
				{Key: BasalAutomatedStop, Label: "Automated exited"},
			},
		}},
	},
}

// Template returns the shared static section template.
// It is read-only; callers that need to change it must Clone first.
func Template() Sections {
	return staticSections
}

// EvaluateSections derives the section state for one run from template,
// the classified buckets and the computed statistics. template is not modified.
func EvaluateSections(template Sections, c *Classified, data *AggregatedData) Sections {
	sections := template.Clone()
	for key, section := range sections {
		if section == nil {
			delete(sections, key)
			continue
		}
		if section.IsAggregate() {
			evaluateAggregate(section, data)
			continue
		}

		bucket := c.Buckets[key]
		section.Active = section.Active && bucket.Total() > 0
		if section.SelectorOptions == nil {
			continue
		}
		for _, row := range section.SelectorOptions.Rows {
			for i := range row {
				enabled := row[i].Active == nil || *row[i].Active
				row[i].Active = lo.ToPtr(enabled && bucket.Count(row[i].Key) > 0)
			}
		}
	}

	if section, ok := sections[SectionSiteChanges]; ok {
		section.Type = c.SiteChangeSource
	}
	return sections
}

func evaluateAggregate(section *Section, data *AggregatedData) {
	hasData := lo.SomeBy(section.RequiredStats, data.Has)
	if hasData {
		section.NoData = false
		return
	}
	section.NoData = true
	section.Togglable = false
	section.Open = false
}
