package basics

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrcode/nightscout-basics/internal/models"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// at returns the given hour of the day offset from 2024-03-01 UTC
func at(day, hour int) time.Time {
	return day0.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
}

func base(id string, t time.Time) models.Base {
	return models.Base{ID: id, Timestamp: t}
}

func bolus(id string, t time.Time, normal float64) *models.Bolus {
	return &models.Bolus{Base: base(id, t), SubType: "normal", Normal: lo.ToPtr(normal)}
}

func basal(t time.Time, deliveryType string, rate float64, d time.Duration) *models.Basal {
	return &models.Basal{Base: base("", t), DeliveryType: deliveryType, Rate: rate, Duration: d.Milliseconds()}
}

func fullDayBasal(day int, rate float64) *models.Basal {
	return basal(at(day, 0), models.DeliveryScheduled, rate, 24*time.Hour)
}

func cbg(t time.Time, value float64, units string) *models.CBG {
	return &models.CBG{Base: base("", t), Value: value, Units: units}
}

func smbg(t time.Time, value float64, units string) *models.SMBG {
	return &models.SMBG{Base: base("", t), Value: value, Units: units}
}

func wizard(t time.Time, bolusID string, carbs *float64, rec *models.Recommended) *models.Wizard {
	return &models.Wizard{Base: base("", t), BolusID: bolusID, CarbInput: carbs, Recommended: rec}
}

func deviceEvent(t time.Time, subType string) *models.DeviceEvent {
	return &models.DeviceEvent{Base: base("", t), SubType: subType}
}

func pumpUpload(t time.Time, manufacturer string) *models.Upload {
	return &models.Upload{
		Base:       base("", t),
		DeviceTags: []string{models.DeviceTagInsulinPump},
		Source:     manufacturer,
	}
}

func events(e ...models.Event) []models.Event {
	return e
}

func run(t *testing.T, in Input) *Result {
	t.Helper()
	if in.Units == "" {
		in.Units = string(models.MgdL)
	}
	result, err := NewEngine(zap.NewNop()).Run(in)
	require.NoError(t, err)
	return result
}

func classify(evts []models.Event, opts ClassifyOptions) *Classified {
	if opts.Units == "" {
		opts.Units = models.MgdL
	}
	if opts.Classes.Units == "" {
		opts.Classes = models.DefaultBGClasses(opts.Units)
	}
	return Classify(evts, opts)
}
