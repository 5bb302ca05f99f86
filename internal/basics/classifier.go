package basics

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mrcode/nightscout-basics/internal/models"
)

// Reading is a blood glucose value re-expressed in the run's units
type Reading struct {
	Time    time.Time `json:"time" bson:"time"`
	Value   float64   `json:"value" bson:"value"`
	SubType string    `json:"subType,omitempty" bson:"subType,omitempty"`
}

// ClassifyOptions controls a classification run
type ClassifyOptions struct {
	Units    models.BGUnits
	Location *time.Location
	// Classes must already be expressed in Units.
	Classes models.BGClasses
	Days    int
	// End pins the last day of the range; zero means the day of the latest event.
	End                  time.Time
	PumpManufacturer     string
	SiteChangePreference string
}

// Classified is the typed partition of one event stream.
// It is built fresh for every run and never shared.
type Classified struct {
	Units models.BGUnits
	Range DateRange

	Basals       []*models.Basal
	Boluses      []*models.Bolus
	CBG          []Reading
	SMBG         []Reading
	Wizards      []*models.Wizard
	Calibrations []*models.DeviceEvent
	SiteChanges  map[string][]*models.DeviceEvent
	Uploads      []*models.Upload

	Buckets          map[string]*Bucket
	PumpManufacturer string
	SiteChangeSource string

	// Skipped counts malformed and unrecognized events.
	Skipped int
}

// Classify partitions events into typed slices and section buckets.
// It never fails: malformed events are skipped and counted.
func Classify(events []models.Event, opts ClassifyOptions) *Classified {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	days := opts.Days
	if days <= 0 {
		days = DefaultDays
	}

	c := &Classified{
		Units:       opts.Units,
		SiteChanges: make(map[string][]*models.DeviceEvent),
		Buckets:     make(map[string]*Bucket),
	}

	var (
		basals       []*models.Basal
		boluses      []*models.Bolus
		cbgs         []Reading
		smbgs        []Reading
		wizards      []*models.Wizard
		calibrations []*models.DeviceEvent
		siteChanges  []*models.DeviceEvent
		latest       time.Time
	)

	for _, e := range events {
		switch ev := e.(type) {
		case *models.Bolus:
			if ev == nil || !validBolus(ev) {
				c.Skipped++
				continue
			}
			boluses = append(boluses, ev)
		case *models.Basal:
			if ev == nil || !validBasal(ev) {
				c.Skipped++
				continue
			}
			basals = append(basals, ev)
		case *models.CBG:
			if ev == nil {
				c.Skipped++
				continue
			}
			value, ok := readingValue(ev.Timestamp, ev.Value, ev.Units, opts.Units)
			if !ok {
				c.Skipped++
				continue
			}
			cbgs = append(cbgs, Reading{Time: ev.Timestamp, Value: value})
		case *models.SMBG:
			if ev == nil {
				c.Skipped++
				continue
			}
			value, ok := readingValue(ev.Timestamp, ev.Value, ev.Units, opts.Units)
			if !ok {
				c.Skipped++
				continue
			}
			smbgs = append(smbgs, Reading{Time: ev.Timestamp, Value: value, SubType: ev.SubType})
		case *models.Wizard:
			if ev == nil || ev.Timestamp.IsZero() || (ev.CarbInput != nil && !finiteNonNegative(*ev.CarbInput)) {
				c.Skipped++
				continue
			}
			wizards = append(wizards, ev)
		case *models.DeviceEvent:
			if ev == nil || ev.Timestamp.IsZero() || ev.SubType == "" {
				c.Skipped++
				continue
			}
			switch ev.SubType {
			case models.SubTypeCalibration:
				calibrations = append(calibrations, ev)
			case SiteChangeReservoir, SiteChangeTubing, SiteChangeCannula:
				siteChanges = append(siteChanges, ev)
			default:
				continue
			}
		case *models.Upload:
			if ev == nil {
				c.Skipped++
				continue
			}
			// uploads describe devices, not days
			c.Uploads = append(c.Uploads, ev)
			continue
		default:
			c.Skipped++
			continue
		}
		if t := e.Time(); t.After(latest) {
			latest = t
		}
	}

	end := opts.End
	if end.IsZero() {
		end = latest
	}
	if end.IsZero() {
		c.Range = DateRange{Days: days}
	} else {
		c.Range = newDateRange(end, days, loc)
	}

	byTime := func(a, b time.Time) int { return a.Compare(b) }
	slices.SortStableFunc(basals, func(a, b *models.Basal) int { return byTime(a.Timestamp, b.Timestamp) })
	slices.SortStableFunc(boluses, func(a, b *models.Bolus) int { return byTime(a.Timestamp, b.Timestamp) })
	slices.SortStableFunc(siteChanges, func(a, b *models.DeviceEvent) int { return byTime(a.Timestamp, b.Timestamp) })

	inRange := c.Range.Contains
	c.Basals = lo.Filter(basals, func(b *models.Basal, _ int) bool {
		return c.Range.overlaps(b.Timestamp, b.End())
	})
	c.Boluses = lo.Filter(boluses, func(b *models.Bolus, _ int) bool { return inRange(b.Timestamp) })
	c.CBG = lo.Filter(cbgs, func(r Reading, _ int) bool { return inRange(r.Time) })
	c.SMBG = lo.Filter(smbgs, func(r Reading, _ int) bool { return inRange(r.Time) })
	c.Wizards = lo.Filter(wizards, func(w *models.Wizard, _ int) bool { return inRange(w.Timestamp) })
	c.Calibrations = lo.Filter(calibrations, func(d *models.DeviceEvent, _ int) bool { return inRange(d.Timestamp) })
	for _, d := range siteChanges {
		if inRange(d.Timestamp) {
			c.SiteChanges[d.SubType] = append(c.SiteChanges[d.SubType], d)
		}
	}

	c.PumpManufacturer = resolveManufacturer(c.Uploads, opts.PumpManufacturer)
	c.SiteChangeSource = resolveSiteChangeSource(c.PumpManufacturer, opts.SiteChangePreference, c.SiteChanges)

	dayKey := func(t time.Time) string { return t.In(loc).Format(dayFormat) }

	c.Buckets[SectionBoluses] = bucketBoluses(c.Boluses, wizards, dayKey)
	c.Buckets[SectionBasals] = bucketBasals(basals, inRange, dayKey)
	c.Buckets[SectionFingersticks] = bucketFingersticks(c.SMBG, c.Calibrations, opts.Classes, dayKey)
	c.Buckets[SectionSiteChanges] = bucketSiteChanges(siteChanges, c.SiteChangeSource, inRange, loc)
	c.Buckets[SectionBGDistribution] = bucketReadings(c.CBG, c.SMBG, dayKey)

	for _, b := range c.Buckets {
		b.finalize(c.Range.Days)
	}
	return c
}

func validBolus(b *models.Bolus) bool {
	if b.Timestamp.IsZero() || b.Duration < 0 {
		return false
	}
	amounts := []*float64{b.Normal, b.ExpectedNormal, b.Extended, b.ExpectedExtended}
	if lo.EveryBy(amounts, func(v *float64) bool { return v == nil }) {
		return false
	}
	return !lo.SomeBy(amounts, func(v *float64) bool { return v != nil && !finiteNonNegative(*v) })
}

func validBasal(b *models.Basal) bool {
	return !b.Timestamp.IsZero() &&
		b.DeliveryType != "" &&
		b.Duration >= 0 &&
		finiteNonNegative(b.Rate)
}

// readingValue validates a BG reading and converts it to the run's units
func readingValue(t time.Time, value float64, units string, to models.BGUnits) (float64, bool) {
	if t.IsZero() || !finiteNonNegative(value) || value == 0 {
		return 0, false
	}
	from, err := models.ParseUnits(units)
	if err != nil {
		return 0, false
	}
	return models.ConvertBG(value, from, to), true
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func (r DateRange) overlaps(start, end time.Time) bool {
	if r.IsZero() {
		return false
	}
	if !end.After(start) {
		return r.Contains(start)
	}
	return start.Before(r.End) && end.After(r.Start)
}

// resolveManufacturer picks the manufacturer of the most recent pump upload,
// falling back to the configured one
func resolveManufacturer(uploads []*models.Upload, fallback string) string {
	pumps := lo.Filter(uploads, func(u *models.Upload, _ int) bool {
		return u.HasTag(models.DeviceTagInsulinPump) && u.Manufacturer() != ""
	})
	if len(pumps) == 0 {
		return canonicalManufacturer(fallback)
	}
	latest := lo.MaxBy(pumps, func(a, b *models.Upload) bool {
		return a.Timestamp.After(b.Timestamp)
	})
	return canonicalManufacturer(latest.Manufacturer())
}

func canonicalManufacturer(name string) string {
	name = strings.TrimSpace(name)
	for known := range siteChangePrecedence {
		if strings.EqualFold(known, name) {
			return known
		}
	}
	return name
}

// resolveSiteChangeSource walks the manufacturer's precedence list and returns
// the first subtype with data in range
func resolveSiteChangeSource(manufacturer, preference string, available map[string][]*models.DeviceEvent) string {
	precedence, ok := siteChangePrecedence[manufacturer]
	if !ok {
		return NoSiteChange
	}
	candidates := slices.Clone(precedence)
	if manufacturer != Insulet && slices.Contains(preferableSiteChanges, preference) {
		candidates = append([]string{preference}, candidates...)
	}
	for _, subType := range candidates {
		if len(available[subType]) > 0 {
			return subType
		}
	}
	return NoSiteChange
}

func bucketBoluses(boluses []*models.Bolus, wizards []*models.Wizard, dayKey func(time.Time) string) *Bucket {
	linked := lo.KeyBy(
		lo.Filter(wizards, func(w *models.Wizard, _ int) bool { return w.BolusID != "" }),
		func(w *models.Wizard) string { return w.BolusID },
	)

	bucket := newBucket()
	for _, b := range boluses {
		var subtotals []string
		if w, ok := linked[b.ID]; ok && b.ID != "" {
			subtotals = append(subtotals, BolusWizard)
			subtotals = append(subtotals, wizardSubtotals(b, w)...)
		} else {
			subtotals = append(subtotals, BolusManual)
		}
		if b.IsExtended() {
			subtotals = append(subtotals, BolusExtended)
		}
		if b.IsInterrupted() {
			subtotals = append(subtotals, BolusInterrupted)
		}
		bucket.add(dayKey(b.Timestamp), subtotals...)
	}
	return bucket
}

const doseTolerance = 1e-6

func wizardSubtotals(b *models.Bolus, w *models.Wizard) []string {
	if w.Recommended == nil {
		return nil
	}
	var out []string
	rec := w.Recommended
	if w.Carbs() == 0 && rec.Correction != nil && *rec.Correction > 0 {
		out = append(out, BolusCorrection)
	}
	if rec.Net != nil {
		programmed := programmedDose(b)
		switch {
		case programmed-*rec.Net > doseTolerance:
			out = append(out, BolusOverride)
		case *rec.Net-programmed > doseTolerance:
			out = append(out, BolusUnderride)
		}
	}
	return out
}

// programmedDose is what the user asked for, before any interruption
func programmedDose(b *models.Bolus) float64 {
	pick := func(expected, delivered *float64) float64 {
		if expected != nil {
			return *expected
		}
		if delivered != nil {
			return *delivered
		}
		return 0
	}
	return pick(b.ExpectedNormal, b.Normal) + pick(b.ExpectedExtended, b.Extended)
}

// bucketBasals counts segments starting in range; a segment that follows an
// automated one outside automated delivery marks an automated mode exit
func bucketBasals(sorted []*models.Basal, inRange func(time.Time) bool, dayKey func(time.Time) string) *Bucket {
	bucket := newBucket()
	for i, b := range sorted {
		if !inRange(b.Timestamp) {
			continue
		}
		var subtotals []string
		switch b.DeliveryType {
		case models.DeliveryTemp:
			subtotals = append(subtotals, BasalTemp)
		case models.DeliverySuspend:
			subtotals = append(subtotals, BasalSuspend)
		}
		if i > 0 && sorted[i-1].DeliveryType == models.DeliveryAutomated && b.DeliveryType != models.DeliveryAutomated {
			subtotals = append(subtotals, BasalAutomatedStop)
		}
		bucket.add(dayKey(b.Timestamp), subtotals...)
	}
	return bucket
}

func bucketFingersticks(smbgs []Reading, calibrations []*models.DeviceEvent, classes models.BGClasses, dayKey func(time.Time) string) *Bucket {
	bucket := newBucket()
	for _, r := range smbgs {
		subtotals := []string{FingerstickMeter}
		if r.SubType == models.SMBGManual {
			subtotals[0] = FingerstickManual
		}
		switch classes.Classify(r.Value) {
		case models.BGVeryLow:
			subtotals = append(subtotals, FingerstickVeryLow)
		case models.BGVeryHigh:
			subtotals = append(subtotals, FingerstickVeryHigh)
		}
		bucket.add(dayKey(r.Time), subtotals...)
	}
	for _, cal := range calibrations {
		bucket.add(dayKey(cal.Timestamp), FingerstickCalibration)
	}
	return bucket
}

// bucketSiteChanges tallies every site change subtype, but only the resolved
// source counts toward the total and carries days-since values
func bucketSiteChanges(sorted []*models.DeviceEvent, source string, inRange func(time.Time) bool, loc *time.Location) *Bucket {
	bucket := newBucket()
	var previous time.Time
	for _, d := range sorted {
		isSource := d.SubType == source
		if inRange(d.Timestamp) {
			day := d.Timestamp.In(loc).Format(dayFormat)
			if !isSource {
				bucket.tally(day, d.SubType)
				continue
			}
			bucket.add(day, d.SubType)
			if !previous.IsZero() {
				if since := daysBetween(previous, d.Timestamp, loc); since > 0 {
					bucket.ByDate[day].DaysSince = &since
				}
			}
		}
		if isSource {
			previous = d.Timestamp
		}
	}
	return bucket
}

// daysBetween counts calendar days from a to b in loc
func daysBetween(a, b time.Time, loc *time.Location) int {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start) / oneDay)
}

func bucketReadings(cbgs, smbgs []Reading, dayKey func(time.Time) string) *Bucket {
	bucket := newBucket()
	for _, r := range cbgs {
		bucket.add(dayKey(r.Time), string(models.TypeCBG))
	}
	for _, r := range smbgs {
		bucket.add(dayKey(r.Time), string(models.TypeSMBG))
	}
	return bucket
}
