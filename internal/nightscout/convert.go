package nightscout

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mrcode/nightscout-basics/internal/models"
)

// Entry types
const (
	entrySGV = "sgv"
	entryMBG = "mbg"
	entryCal = "cal"
)

// ConvertOptions controls how a Dataset becomes device events
type ConvertOptions struct {
	// From and To bound the generated scheduled basal segments.
	From, To time.Time
	// Location is used for profile schedules when the profile has no time zone.
	Location *time.Location
	// Units applies to BG checks recorded without units.
	Units models.BGUnits
	// PumpManufacturer tags the synthetic pump upload.
	PumpManufacturer string
}

// Convert maps Nightscout entries, treatments and the basal profile onto
// device events. Records it does not understand are dropped.
func Convert(ds *Dataset, opts ConvertOptions) []models.Event {
	var out []models.Event
	for i := range ds.Entries {
		if e := convertEntry(&ds.Entries[i]); e != nil {
			out = append(out, e)
		}
	}

	units := opts.Units
	store, hasProfile := profileStore(ds.Profile)
	if units == "" && hasProfile {
		if u, err := models.ParseUnits(NormalizeUnits(store.Units)); err == nil {
			units = u
		}
	}

	var temps []*models.Treatment
	pumpData := false
	for i := range ds.Treatments {
		t := &ds.Treatments[i]
		if t.EventType == models.TreatmentEventTypes.TempBasal {
			temps = append(temps, t)
			pumpData = true
			continue
		}
		events := convertTreatment(t, i, units, opts.PumpManufacturer)
		if t.IsBolus() {
			pumpData = true
		}
		out = append(out, events...)
	}

	if hasProfile && len(store.Basal) > 0 {
		loc := opts.Location
		if store.Timezone != "" {
			if l, err := time.LoadLocation(store.Timezone); err == nil {
				loc = l
			}
		}
		if loc == nil {
			loc = time.UTC
		}
		basals := basalTimeline(store.Basal, temps, opts.From, opts.To, loc)
		for _, b := range basals {
			out = append(out, b)
		}
		pumpData = pumpData || len(basals) > 0
	}

	if pumpData && opts.PumpManufacturer != "" {
		out = append(out, &models.Upload{
			Base:       models.Base{ID: "nightscout-pump", Timestamp: opts.To},
			DeviceTags: []string{models.DeviceTagInsulinPump},
			Source:     opts.PumpManufacturer,
		})
	}
	return out
}

// NormalizeUnits maps the unit spellings Nightscout uses ("mg/dl", "mmol")
// onto the canonical ones; anything else is returned unchanged
func NormalizeUnits(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mg/dl", "mg":
		return string(models.MgdL)
	case "mmol/l", "mmol":
		return string(models.MmolL)
	}
	return s
}

func profileStore(p *models.Profile) (models.ProfileStore, bool) {
	if p == nil {
		return models.ProfileStore{}, false
	}
	return p.Active()
}

func convertEntry(e *models.GlucoseEntry) models.Event {
	base := models.Base{ID: e.ID, Timestamp: e.Time(), DeviceID: e.Device}
	switch e.Type {
	case entrySGV:
		return &models.CBG{Base: base, Value: float64(e.SGV), Units: string(models.MgdL)}
	case entryMBG:
		return &models.SMBG{Base: base, Value: float64(e.MBG), Units: string(models.MgdL), SubType: models.SMBGLinked}
	case entryCal:
		return &models.DeviceEvent{Base: base, SubType: models.SubTypeCalibration}
	}
	return nil
}

func convertTreatment(t *models.Treatment, index int, units models.BGUnits, manufacturer string) []models.Event {
	id := t.ID
	if id == "" {
		id = fmt.Sprintf("treatment-%d", index)
	}
	base := models.Base{ID: id, Timestamp: t.Time(), DeviceID: t.Device}

	var out []models.Event
	switch t.EventType {
	case models.TreatmentEventTypes.BGCheck:
		bgUnits := NormalizeUnits(t.Units)
		if bgUnits == "" {
			bgUnits = string(units)
		}
		subType := ""
		if strings.EqualFold(t.GlucoseType, "Manual") {
			subType = models.SMBGManual
		}
		return []models.Event{&models.SMBG{Base: base, Value: t.Glucose, Units: bgUnits, SubType: subType}}
	case models.TreatmentEventTypes.SiteChange:
		subType := models.SubTypeCannulaPrime
		if strings.EqualFold(manufacturer, "Insulet") {
			// a pod change replaces reservoir and cannula together
			subType = models.SubTypeReservoirChange
		}
		return []models.Event{&models.DeviceEvent{Base: base, SubType: subType}}
	case models.TreatmentEventTypes.InsulinChange:
		return []models.Event{&models.DeviceEvent{Base: base, SubType: models.SubTypeReservoirChange}}
	}

	bolusID := ""
	if t.IsBolus() {
		bolusID = id
		out = append(out, convertBolus(t, base))
	}
	if t.HasCarbs() {
		w := &models.Wizard{
			Base:      models.Base{ID: id + "-carbs", Timestamp: base.Timestamp, DeviceID: base.DeviceID},
			CarbInput: lo.ToPtr(t.Carbs),
			BolusID:   bolusID,
		}
		if t.EventType == models.TreatmentEventTypes.BolusWizard && t.HasInsulin() {
			w.Recommended = &models.Recommended{Net: lo.ToPtr(t.Insulin)}
		}
		out = append(out, w)
	}
	return out
}

func convertBolus(t *models.Treatment, base models.Base) *models.Bolus {
	b := &models.Bolus{Base: base, SubType: "normal", Normal: lo.ToPtr(t.Insulin)}
	if t.EventType == models.TreatmentEventTypes.ComboBolus && t.Relative > 0 && t.Duration > 0 {
		duration := time.Duration(t.Duration * float64(time.Minute))
		b.SubType = "dual/square"
		b.Extended = lo.ToPtr(t.Relative * duration.Hours())
		b.Duration = duration.Milliseconds()
	}
	return b
}

type span struct {
	start, end time.Time
	rate       float64
}

// basalTimeline expands the profile's daily schedule over [from, to) and
// overlays temp basals on it. A zero-duration temp cancels the running one.
func basalTimeline(schedule []models.ScheduleEntry, temps []*models.Treatment, from, to time.Time, loc *time.Location) []*models.Basal {
	if from.IsZero() || !to.After(from) {
		return nil
	}

	entries := slices.Clone(schedule)
	slices.SortStableFunc(entries, func(a, b models.ScheduleEntry) int {
		return cmp.Compare(a.Offset(), b.Offset())
	})

	var scheduled []span
	y, m, d := from.In(loc).Date()
	for day := time.Date(y, m, d, 0, 0, 0, 0, loc); day.Before(to); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)
		for i, e := range entries {
			start := day.Add(e.Offset())
			end := next
			if i+1 < len(entries) {
				end = day.Add(entries[i+1].Offset())
			}
			if s, ok := clip(span{start, end, e.Value}, from, to); ok {
				scheduled = append(scheduled, s)
			}
		}
	}

	rateAt := func(t time.Time) float64 {
		for _, s := range scheduled {
			if !t.Before(s.start) && t.Before(s.end) {
				return s.rate
			}
		}
		return 0
	}

	tempSpans := tempBasalSpans(temps, rateAt)

	var out []*models.Basal
	for _, s := range scheduled {
		for _, piece := range subtract(s, tempSpans) {
			out = append(out, newBasal(piece, models.DeliveryScheduled))
		}
	}
	for _, s := range tempSpans {
		if c, ok := clip(s, from, to); ok {
			deliveryType := models.DeliveryTemp
			if c.rate == 0 {
				deliveryType = models.DeliverySuspend
			}
			out = append(out, newBasal(c, deliveryType))
		}
	}

	slices.SortStableFunc(out, func(a, b *models.Basal) int { return a.Timestamp.Compare(b.Timestamp) })
	return out
}

// tempBasalSpans resolves temp basal treatments into non-overlapping spans
func tempBasalSpans(temps []*models.Treatment, rateAt func(time.Time) float64) []span {
	sorted := slices.Clone(temps)
	slices.SortStableFunc(sorted, func(a, b *models.Treatment) int { return a.Time().Compare(b.Time()) })

	var spans []span
	for _, t := range sorted {
		start := t.Time()
		if start.IsZero() {
			continue
		}
		if n := len(spans); n > 0 && spans[n-1].end.After(start) {
			spans[n-1].end = start
			if !spans[n-1].end.After(spans[n-1].start) {
				spans = spans[:n-1]
			}
		}
		if t.Duration <= 0 {
			continue
		}
		spans = append(spans, span{
			start: start,
			end:   start.Add(time.Duration(t.Duration * float64(time.Minute))),
			rate:  tempRate(t, rateAt(start)),
		})
	}
	return spans
}

func tempRate(t *models.Treatment, scheduled float64) float64 {
	switch {
	case t.Absolute != nil:
		return *t.Absolute
	case t.Percent != nil:
		return max(0, scheduled*(100+*t.Percent)/100)
	case t.Rate != nil:
		return *t.Rate
	}
	return scheduled
}

// subtract removes the covered parts of s; cuts must be sorted and disjoint
func subtract(s span, cuts []span) []span {
	var out []span
	cursor := s.start
	for _, c := range cuts {
		if !c.end.After(cursor) || !c.start.Before(s.end) {
			continue
		}
		if c.start.After(cursor) {
			out = append(out, span{cursor, c.start, s.rate})
		}
		cursor = c.end
		if !cursor.Before(s.end) {
			return out
		}
	}
	if s.end.After(cursor) {
		out = append(out, span{cursor, s.end, s.rate})
	}
	return out
}

func clip(s span, from, to time.Time) (span, bool) {
	if s.start.Before(from) {
		s.start = from
	}
	if s.end.After(to) {
		s.end = to
	}
	return s, s.end.After(s.start)
}

func newBasal(s span, deliveryType string) *models.Basal {
	return &models.Basal{
		Base:         models.Base{Timestamp: s.start},
		DeliveryType: deliveryType,
		Rate:         s.rate,
		Duration:     s.end.Sub(s.start).Milliseconds(),
	}
}
