package basics

import (
	"time"
)

// DaySummary counts the events of one local day
type DaySummary struct {
	Count     int            `json:"count" bson:"count"`
	Subtotals map[string]int `json:"subtotals,omitempty" bson:"subtotals,omitempty"`
	// DaysSince is only set for site changes: whole days since the previous change.
	DaysSince *int `json:"daysSince,omitempty" bson:"daysSince,omitempty"`
}

// SubtotalSummary is the range-wide count of one selector key
type SubtotalSummary struct {
	Count      int     `json:"count" bson:"count"`
	Percentage float64 `json:"percentage" bson:"percentage"`
}

// BucketSummary aggregates a bucket over the whole date range
type BucketSummary struct {
	Total     int                        `json:"total" bson:"total"`
	AvgPerDay float64                    `json:"avgPerDay" bson:"avgPerDay"`
	Subtotals map[string]SubtotalSummary `json:"subtotals,omitempty" bson:"subtotals,omitempty"`
}

// Bucket holds the per-day and range-wide counts for one section
type Bucket struct {
	ByDate  map[string]*DaySummary `json:"dataByDate" bson:"dataByDate"`
	Summary BucketSummary          `json:"summary" bson:"summary"`
}

func newBucket() *Bucket {
	return &Bucket{
		ByDate: make(map[string]*DaySummary),
		Summary: BucketSummary{
			Subtotals: make(map[string]SubtotalSummary),
		},
	}
}

// add counts one event on day, plus each named subtotal
func (b *Bucket) add(day string, subtotals ...string) {
	d := b.day(day)
	d.Count++
	b.Summary.Total++
	b.tally(day, subtotals...)
}

// tally counts subtotals without adding to the bucket total
func (b *Bucket) tally(day string, subtotals ...string) {
	d := b.day(day)
	for _, key := range subtotals {
		if d.Subtotals == nil {
			d.Subtotals = make(map[string]int)
		}
		d.Subtotals[key]++
		sub := b.Summary.Subtotals[key]
		sub.Count++
		b.Summary.Subtotals[key] = sub
	}
}

func (b *Bucket) day(day string) *DaySummary {
	d, ok := b.ByDate[day]
	if !ok {
		d = &DaySummary{}
		b.ByDate[day] = d
	}
	return d
}

func (b *Bucket) finalize(days int) {
	if days > 0 {
		b.Summary.AvgPerDay = float64(b.Summary.Total) / float64(days)
	}
	for key, sub := range b.Summary.Subtotals {
		if b.Summary.Total > 0 {
			sub.Percentage = float64(sub.Count) / float64(b.Summary.Total)
		}
		b.Summary.Subtotals[key] = sub
	}
}

// Total returns the number of events counted in the bucket; nil buckets are empty
func (b *Bucket) Total() int {
	if b == nil {
		return 0
	}
	return b.Summary.Total
}

// Count returns the range-wide count for a selector key, TotalKey meaning the bucket total
func (b *Bucket) Count(key string) int {
	if b == nil {
		return 0
	}
	if key == TotalKey {
		return b.Summary.Total
	}
	return b.Summary.Subtotals[key].Count
}

func (b *Bucket) clone() *Bucket {
	if b == nil {
		return nil
	}
	out := &Bucket{
		ByDate: make(map[string]*DaySummary, len(b.ByDate)),
		Summary: BucketSummary{
			Total:     b.Summary.Total,
			AvgPerDay: b.Summary.AvgPerDay,
			Subtotals: make(map[string]SubtotalSummary, len(b.Summary.Subtotals)),
		},
	}
	for k, v := range b.Summary.Subtotals {
		out.Summary.Subtotals[k] = v
	}
	for day, d := range b.ByDate {
		cp := &DaySummary{Count: d.Count}
		if d.Subtotals != nil {
			cp.Subtotals = make(map[string]int, len(d.Subtotals))
			for k, v := range d.Subtotals {
				cp.Subtotals[k] = v
			}
		}
		if d.DaysSince != nil {
			since := *d.DaysSince
			cp.DaysSince = &since
		}
		out.ByDate[day] = cp
	}
	return out
}

// DateRange is the span of whole local days covered by a run
type DateRange struct {
	Start time.Time `json:"start" bson:"start"`
	End   time.Time `json:"end" bson:"end"` // exclusive
	Days  int       `json:"days" bson:"days"`
}

// IsZero reports whether the range was never established (no dated events)
func (r DateRange) IsZero() bool {
	return r.Start.IsZero()
}

// Contains reports whether t falls in [Start, End)
func (r DateRange) Contains(t time.Time) bool {
	return !r.IsZero() && !t.Before(r.Start) && t.Before(r.End)
}

// Day is one local calendar day
type Day struct {
	Key   string
	Start time.Time
	End   time.Time
}

// Length is the wall duration of the day, 23 or 25 hours across DST changes
func (d Day) Length() time.Duration {
	return d.End.Sub(d.Start)
}

// EachDay lists the days of the range in order
func (r DateRange) EachDay() []Day {
	if r.IsZero() {
		return nil
	}
	days := make([]Day, 0, r.Days)
	loc := r.Start.Location()
	y, m, d := r.Start.Date()
	for i := 0; i < r.Days; i++ {
		start := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		days = append(days, Day{
			Key:   start.Format(dayFormat),
			Start: start,
			End:   time.Date(y, m, d+i+1, 0, 0, 0, 0, loc),
		})
	}
	return days
}

// newDateRange returns the days whole days ending with the local day of end
func newDateRange(end time.Time, days int, loc *time.Location) DateRange {
	y, m, d := end.In(loc).Date()
	return DateRange{
		Start: time.Date(y, m, d+1-days, 0, 0, 0, 0, loc),
		End:   time.Date(y, m, d+1, 0, 0, 0, 0, loc),
		Days:  days,
	}
}
