package basics

import (
	"math"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/nightscout-basics/internal/models"
)

func TestClassify_Empty(t *testing.T) {
	c := classify(nil, ClassifyOptions{})

	assert.True(t, c.Range.IsZero())
	assert.Equal(t, DefaultDays, c.Range.Days)
	assert.Zero(t, c.Skipped)
	assert.Equal(t, NoSiteChange, c.SiteChangeSource)
	for key, bucket := range c.Buckets {
		assert.Zero(t, bucket.Total(), key)
	}
}

func TestClassify_SkipsMalformed(t *testing.T) {
	c := classify(events(
		cbg(at(0, 8), 120, "mg/dL"),
		cbg(at(0, 9), 120, "mg"),
		cbg(time.Time{}, 120, "mg/dL"),
		&models.Bolus{Base: base("b1", at(0, 8))},
		basal(at(0, 0), models.DeliveryScheduled, -1, time.Hour),
		&models.Unknown{Base: base("", at(0, 8)), RawType: "food"},
		deviceEvent(at(0, 8), "alarm"),
		wizard(at(0, 8), "", lo.ToPtr(-5.0), nil),
		smbg(at(0, 10), 0, "mg/dL"),
	), ClassifyOptions{})

	assert.Equal(t, 7, c.Skipped)
	assert.Len(t, c.CBG, 1)
	assert.Empty(t, c.Boluses)
	assert.Empty(t, c.Basals)
	assert.Empty(t, c.Calibrations)
}

func TestClassify_SkipsNilAndNonFinite(t *testing.T) {
	var nilEvent models.Event
	c := classify(events(
		nilEvent,
		(*models.Bolus)(nil),
		(*models.Basal)(nil),
		(*models.CBG)(nil),
		(*models.SMBG)(nil),
		(*models.Wizard)(nil),
		(*models.DeviceEvent)(nil),
		(*models.Upload)(nil),
		(*models.Unknown)(nil),
		wizard(at(0, 8), "", lo.ToPtr(math.NaN()), nil),
		wizard(at(0, 8), "", lo.ToPtr(math.Inf(1)), nil),
		fullDayBasal(0, 1),
		wizard(at(0, 9), "", lo.ToPtr(30.0), nil),
	), ClassifyOptions{Days: 1})

	assert.Equal(t, 11, c.Skipped)
	assert.Empty(t, c.Uploads)
	require.Len(t, c.Wizards, 1)
	assert.Equal(t, 30.0, c.Wizards[0].Carbs())

	data := Aggregate(c, models.DefaultBGClasses(models.MgdL))
	require.NotNil(t, data.AverageDailyCarbs)
	assert.Equal(t, 30.0, *data.AverageDailyCarbs)
}

func TestClassify_ReexpressesUnits(t *testing.T) {
	c := classify(events(
		smbg(at(0, 8), 108.09354, "mg/dL"),
		cbg(at(0, 9), 5.5, "mmol/L"),
	), ClassifyOptions{Units: models.MmolL})

	require.Len(t, c.SMBG, 1)
	require.Len(t, c.CBG, 1)
	assert.InDelta(t, 6.0, c.SMBG[0].Value, 0.0001)
	assert.InDelta(t, 5.5, c.CBG[0].Value, 0.0001)
}

func TestClassify_DateRange(t *testing.T) {
	c := classify(events(
		cbg(at(-20, 8), 120, "mg/dL"),
		cbg(at(-13, 0), 120, "mg/dL"),
		cbg(at(0, 8), 120, "mg/dL"),
	), ClassifyOptions{Days: 14})

	assert.Equal(t, at(-13, 0), c.Range.Start)
	assert.Equal(t, at(1, 0), c.Range.End)
	assert.Len(t, c.CBG, 2)
	assert.Len(t, c.Range.EachDay(), 14)
}

func TestClassify_DayKeysFollowTimezone(t *testing.T) {
	vienna, err := time.LoadLocation("Europe/Vienna")
	require.NoError(t, err)

	c := classify(events(
		smbg(time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC), 120, "mg/dL"),
	), ClassifyOptions{Location: vienna})

	bucket := c.Buckets[SectionFingersticks]
	require.Contains(t, bucket.ByDate, "2024-03-02")
	assert.Equal(t, 1, bucket.ByDate["2024-03-02"].Count)
}

func TestClassify_SiteChangeSource(t *testing.T) {
	tests := []struct {
		name       string
		events     []models.Event
		preference string
		fallback   string
		expected   string
	}{
		{
			name: "insulet uses reservoir change",
			events: events(
				pumpUpload(at(0, 0), "Insulet"),
				deviceEvent(at(0, 8), SiteChangeReservoir),
				deviceEvent(at(0, 9), SiteChangeCannula),
			),
			expected: SiteChangeReservoir,
		},
		{
			name: "insulet ignores cannula prime",
			events: events(
				pumpUpload(at(0, 0), "insulet"),
				deviceEvent(at(0, 9), SiteChangeCannula),
			),
			preference: SiteChangeCannula,
			expected:   NoSiteChange,
		},
		{
			name: "tandem follows preference",
			events: events(
				pumpUpload(at(0, 0), "Tandem"),
				deviceEvent(at(0, 9), SiteChangeCannula),
			),
			preference: SiteChangeCannula,
			expected:   SiteChangeCannula,
		},
		{
			name: "tandem preference without data",
			events: events(
				pumpUpload(at(0, 0), "Tandem"),
				deviceEvent(at(0, 9), SiteChangeCannula),
			),
			preference: SiteChangeTubing,
			expected:   NoSiteChange,
		},
		{
			name: "tandem without preference",
			events: events(
				pumpUpload(at(0, 0), "Tandem"),
				deviceEvent(at(0, 9), SiteChangeTubing),
			),
			expected: NoSiteChange,
		},
		{
			name: "configured manufacturer without uploads",
			events: events(
				deviceEvent(at(0, 9), SiteChangeTubing),
			),
			preference: SiteChangeTubing,
			fallback:   "Medtronic",
			expected:   SiteChangeTubing,
		},
		{
			name: "most recent pump upload wins",
			events: events(
				pumpUpload(at(-30, 0), "Insulet"),
				pumpUpload(at(-1, 0), "Animas"),
				deviceEvent(at(0, 8), SiteChangeReservoir),
				deviceEvent(at(0, 9), SiteChangeCannula),
			),
			preference: SiteChangeCannula,
			expected:   SiteChangeCannula,
		},
		{
			name: "unknown manufacturer",
			events: events(
				pumpUpload(at(0, 0), "Acme"),
				deviceEvent(at(0, 8), SiteChangeReservoir),
			),
			expected: NoSiteChange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := classify(tt.events, ClassifyOptions{
				SiteChangePreference: tt.preference,
				PumpManufacturer:     tt.fallback,
			})
			assert.Equal(t, tt.expected, c.SiteChangeSource)
		})
	}
}

func TestClassify_SiteChangeBucket(t *testing.T) {
	c := classify(events(
		pumpUpload(at(0, 0), "Insulet"),
		deviceEvent(at(0, 8), SiteChangeReservoir),
		deviceEvent(at(3, 8), SiteChangeReservoir),
		deviceEvent(at(5, 8), SiteChangeReservoir),
		deviceEvent(at(5, 9), SiteChangeCannula),
	), ClassifyOptions{})

	bucket := c.Buckets[SectionSiteChanges]
	assert.Equal(t, 3, bucket.Total())
	assert.Equal(t, 3, bucket.Count(SiteChangeReservoir))
	assert.Equal(t, 1, bucket.Count(SiteChangeCannula))

	assert.Nil(t, bucket.ByDate["2024-03-01"].DaysSince)
	require.NotNil(t, bucket.ByDate["2024-03-04"].DaysSince)
	assert.Equal(t, 3, *bucket.ByDate["2024-03-04"].DaysSince)
	require.NotNil(t, bucket.ByDate["2024-03-06"].DaysSince)
	assert.Equal(t, 2, *bucket.ByDate["2024-03-06"].DaysSince)
}

func TestClassify_BolusSubtotals(t *testing.T) {
	extended := &models.Bolus{
		Base:             base("b5", at(0, 12)),
		SubType:          "dual/square",
		Normal:           lo.ToPtr(1.0),
		Extended:         lo.ToPtr(1.0),
		ExpectedExtended: lo.ToPtr(2.0),
	}
	c := classify(events(
		bolus("b1", at(0, 8), 2),
		bolus("b2", at(0, 9), 3),
		wizard(at(0, 9), "b2", lo.ToPtr(30.0), &models.Recommended{Net: lo.ToPtr(3.0)}),
		bolus("b3", at(0, 10), 2),
		wizard(at(0, 10), "b3", nil, &models.Recommended{Correction: lo.ToPtr(1.5), Net: lo.ToPtr(1.5)}),
		bolus("b4", at(0, 11), 3.5),
		wizard(at(0, 11), "b4", lo.ToPtr(45.0), &models.Recommended{Carb: lo.ToPtr(4.5), Net: lo.ToPtr(4.5)}),
		extended,
	), ClassifyOptions{})

	bucket := c.Buckets[SectionBoluses]
	assert.Equal(t, 5, bucket.Total())
	assert.Equal(t, 2, bucket.Count(BolusManual))
	assert.Equal(t, 3, bucket.Count(BolusWizard))
	assert.Equal(t, 1, bucket.Count(BolusCorrection))
	assert.Equal(t, 1, bucket.Count(BolusOverride))
	assert.Equal(t, 1, bucket.Count(BolusUnderride))
	assert.Equal(t, 1, bucket.Count(BolusExtended))
	assert.Equal(t, 1, bucket.Count(BolusInterrupted))
	assert.InDelta(t, 0.6, bucket.Summary.Subtotals[BolusWizard].Percentage, 0.0001)
	assert.InDelta(t, 5.0/14, bucket.Summary.AvgPerDay, 0.0001)
}

func TestClassify_BasalSubtotals(t *testing.T) {
	c := classify(events(
		basal(at(0, 4), models.DeliverySuspend, 0, 30*time.Minute),
		basal(at(0, 0), models.DeliveryAutomated, 0.8, 2*time.Hour),
		basal(at(0, 2), models.DeliveryScheduled, 1, time.Hour),
		basal(at(0, 3), models.DeliveryTemp, 0.5, time.Hour),
		basal(at(0, 5), models.DeliveryAutomated, 0.8, time.Hour),
	), ClassifyOptions{})

	bucket := c.Buckets[SectionBasals]
	assert.Equal(t, 5, bucket.Total())
	assert.Equal(t, 1, bucket.Count(BasalTemp))
	assert.Equal(t, 1, bucket.Count(BasalSuspend))
	assert.Equal(t, 1, bucket.Count(BasalAutomatedStop))
}

func TestClassify_Fingersticks(t *testing.T) {
	manual := smbg(at(0, 9), 300, "mg/dL")
	manual.SubType = models.SMBGManual

	c := classify(events(
		smbg(at(0, 8), 40, "mg/dL"),
		manual,
		smbg(at(0, 10), 110, "mg/dL"),
		deviceEvent(at(0, 11), models.SubTypeCalibration),
	), ClassifyOptions{})

	bucket := c.Buckets[SectionFingersticks]
	assert.Equal(t, 4, bucket.Total())
	assert.Equal(t, 2, bucket.Count(FingerstickMeter))
	assert.Equal(t, 1, bucket.Count(FingerstickManual))
	assert.Equal(t, 1, bucket.Count(FingerstickCalibration))
	assert.Equal(t, 1, bucket.Count(FingerstickVeryLow))
	assert.Equal(t, 1, bucket.Count(FingerstickVeryHigh))
}
