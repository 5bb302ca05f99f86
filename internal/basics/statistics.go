package basics

import (
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/mrcode/nightscout-basics/internal/models"
)

// Distribution is the fraction of readings falling in each BG category
type Distribution struct {
	VeryLow  float64 `json:"veryLow" bson:"veryLow"`
	Low      float64 `json:"low" bson:"low"`
	Target   float64 `json:"target" bson:"target"`
	High     float64 `json:"high" bson:"high"`
	VeryHigh float64 `json:"veryHigh" bson:"veryHigh"`
	Count    int     `json:"count" bson:"count"`
}

// BGDistribution holds the per-source distributions.
// CGM is only set when CGMStatus is CGMCalculated.
type BGDistribution struct {
	CGMStatus string        `json:"cgmStatus" bson:"cgmStatus"`
	CGM       *Distribution `json:"cgm,omitempty" bson:"cgm,omitempty"`
	SMBG      *Distribution `json:"smbg,omitempty" bson:"smbg,omitempty"`
}

// BasalBolusRatio splits total insulin into its basal and bolus shares
type BasalBolusRatio struct {
	Basal float64 `json:"basal" bson:"basal"`
	Bolus float64 `json:"bolus" bson:"bolus"`
}

// AggregatedData is everything a run computes from the event stream.
// A nil aggregate means "no data", which is different from zero.
type AggregatedData struct {
	BGDistribution    BGDistribution     `json:"bgDistribution" bson:"bgDistribution"`
	BasalBolusRatio   *BasalBolusRatio   `json:"basalBolusRatio,omitempty" bson:"basalBolusRatio,omitempty"`
	AverageDailyDose  *float64           `json:"averageDailyDose,omitempty" bson:"averageDailyDose,omitempty"`
	AverageDailyCarbs *float64           `json:"averageDailyCarbs,omitempty" bson:"averageDailyCarbs,omitempty"`
	CompletePumpDays  int                `json:"completePumpDays" bson:"completePumpDays"`
	Buckets           map[string]*Bucket `json:"buckets" bson:"buckets"`
	DateRange         DateRange          `json:"dateRange" bson:"dateRange"`
	Units             models.BGUnits     `json:"bgUnits" bson:"bgUnits"`
}

// Has reports whether the named statistic was computed
func (d *AggregatedData) Has(stat string) bool {
	if d == nil {
		return false
	}
	switch stat {
	case StatBasalBolusRatio:
		return d.BasalBolusRatio != nil
	case StatAverageDailyDose:
		return d.AverageDailyDose != nil
	case StatAverageDailyCarbs:
		return d.AverageDailyCarbs != nil
	}
	return false
}

// InsulinAggregatesEmpty reports whether none of the insulin statistics could be computed
func (d *AggregatedData) InsulinAggregatesEmpty() bool {
	return !d.Has(StatBasalBolusRatio) && !d.Has(StatAverageDailyDose) && !d.Has(StatAverageDailyCarbs)
}

// Clone returns a deep copy
func (d *AggregatedData) Clone() *AggregatedData {
	if d == nil {
		return nil
	}
	out := *d
	out.BGDistribution.CGM = clonePtr(d.BGDistribution.CGM)
	out.BGDistribution.SMBG = clonePtr(d.BGDistribution.SMBG)
	out.BasalBolusRatio = clonePtr(d.BasalBolusRatio)
	out.AverageDailyDose = clonePtr(d.AverageDailyDose)
	out.AverageDailyCarbs = clonePtr(d.AverageDailyCarbs)
	out.Buckets = lo.MapValues(d.Buckets, func(b *Bucket, _ string) *Bucket { return b.clone() })
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Aggregate computes the statistics for a classified stream.
// classes must be expressed in c.Units.
func Aggregate(c *Classified, classes models.BGClasses) *AggregatedData {
	data := &AggregatedData{
		BGDistribution: bgDistribution(c, classes),
		Buckets:        c.Buckets,
		DateRange:      c.Range,
		Units:          c.Units,
	}

	complete := completePumpDays(c.Basals, c.Range.EachDay())
	data.CompletePumpDays = len(complete)
	if len(complete) == 0 {
		return data
	}

	var basal, bolus, carbs float64
	for _, units := range complete {
		basal += units
	}
	for _, b := range c.Boluses {
		if _, ok := complete[b.Timestamp.In(c.Range.Start.Location()).Format(dayFormat)]; ok {
			bolus += b.Delivered()
		}
	}
	var sawCarbs bool
	for _, w := range c.Wizards {
		if _, ok := complete[w.Timestamp.In(c.Range.Start.Location()).Format(dayFormat)]; ok && w.CarbInput != nil {
			sawCarbs = true
			carbs += *w.CarbInput
		}
	}

	days := float64(len(complete))
	total := basal + bolus
	if total > 0 {
		data.BasalBolusRatio = &BasalBolusRatio{Basal: basal / total, Bolus: bolus / total}
		data.AverageDailyDose = lo.ToPtr(total / days)
	}
	if sawCarbs {
		data.AverageDailyCarbs = lo.ToPtr(carbs / days)
	}
	return data
}

func bgDistribution(c *Classified, classes models.BGClasses) BGDistribution {
	dist := BGDistribution{CGMStatus: NoCGM}
	if len(c.SMBG) > 0 {
		dist.SMBG = distribution(c.SMBG, classes)
	}
	switch {
	case len(c.CBG) == 0:
	case len(c.CBG) < CGMInDay/2*c.Range.Days:
		dist.CGMStatus = NotEnoughCGM
	default:
		dist.CGMStatus = CGMCalculated
		dist.CGM = distribution(c.CBG, classes)
	}
	return dist
}

func distribution(readings []Reading, classes models.BGClasses) *Distribution {
	counts := lo.CountValuesBy(readings, func(r Reading) models.BGCategory {
		return classes.Classify(r.Value)
	})
	n := float64(len(readings))
	return &Distribution{
		VeryLow:  float64(counts[models.BGVeryLow]) / n,
		Low:      float64(counts[models.BGLow]) / n,
		Target:   float64(counts[models.BGTarget]) / n,
		High:     float64(counts[models.BGHigh]) / n,
		VeryHigh: float64(counts[models.BGVeryHigh]) / n,
		Count:    len(readings),
	}
}

// completePumpDays returns, for every day fully covered by basal segments,
// the basal units delivered that day. Overlapping segments count once: the
// earlier segment wins for the overlapped span.
func completePumpDays(basals []*models.Basal, days []Day) map[string]float64 {
	sorted := slices.Clone(basals)
	slices.SortStableFunc(sorted, func(a, b *models.Basal) int { return a.Timestamp.Compare(b.Timestamp) })

	complete := make(map[string]float64)
	for _, day := range days {
		var covered time.Duration
		var units float64
		cursor := day.Start
		for _, b := range sorted {
			start := maxTime(b.Timestamp, cursor)
			end := minTime(b.End(), day.End)
			if !end.After(start) {
				continue
			}
			span := end.Sub(start)
			covered += span
			units += b.Rate * span.Hours()
			cursor = end
		}
		if covered >= day.Length() {
			complete[day.Key] = units
		}
	}
	return complete
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
