package models

import (
	"slices"
	"time"
)

// EventType is the tag that distinguishes device event variants
type EventType string

const (
	TypeBolus       EventType = "bolus"
	TypeBasal       EventType = "basal"
	TypeCBG         EventType = "cbg"
	TypeSMBG        EventType = "smbg"
	TypeWizard      EventType = "wizard"
	TypeDeviceEvent EventType = "deviceEvent"
	TypeUpload      EventType = "upload"
)

// Device event subtypes
const (
	SubTypeReservoirChange = "reservoirChange"
	SubTypeTubingPrime     = "tubingPrime"
	SubTypeCannulaPrime    = "cannulaPrime"
	SubTypeCalibration     = "calibration"
)

// Basal delivery types
const (
	DeliveryScheduled = "scheduled"
	DeliveryTemp      = "temp"
	DeliverySuspend   = "suspend"
	DeliveryAutomated = "automated"
)

// SMBG subtypes
const (
	SMBGManual = "manual"
	SMBGLinked = "linked"
)

// DeviceTagInsulinPump marks uploads that came from an insulin pump
const DeviceTagInsulinPump = "insulin-pump"

// Event is a single record from a device data stream.
// The set of implementations is closed to this package.
type Event interface {
	Type() EventType
	Time() time.Time
	event()
}

// Base carries the fields shared by every event variant
type Base struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"time"`
	DeviceID  string    `json:"deviceId,omitempty"`
	UploadID  string    `json:"uploadId,omitempty"`
}

// Time returns the event timestamp
func (b Base) Time() time.Time { return b.Timestamp }

func (Base) event() {}

// Bolus is a discrete insulin dose
type Bolus struct {
	Base
	SubType          string   `json:"subType,omitempty"`
	Normal           *float64 `json:"normal,omitempty"`
	ExpectedNormal   *float64 `json:"expectedNormal,omitempty"`
	Extended         *float64 `json:"extended,omitempty"`
	ExpectedExtended *float64 `json:"expectedExtended,omitempty"`
	Duration         int64    `json:"duration,omitempty"` // milliseconds
}

func (*Bolus) Type() EventType { return TypeBolus }

// Delivered returns the total units actually delivered
func (b *Bolus) Delivered() float64 {
	var total float64
	if b.Normal != nil {
		total += *b.Normal
	}
	if b.Extended != nil {
		total += *b.Extended
	}
	return total
}

// IsExtended reports whether part of the dose was delivered over time
func (b *Bolus) IsExtended() bool {
	return b.Extended != nil || b.ExpectedExtended != nil
}

// IsInterrupted reports whether delivery stopped short of what was programmed
func (b *Bolus) IsInterrupted() bool {
	if b.ExpectedNormal != nil && (b.Normal == nil || *b.ExpectedNormal > *b.Normal) {
		return true
	}
	if b.ExpectedExtended != nil && (b.Extended == nil || *b.ExpectedExtended > *b.Extended) {
		return true
	}
	return false
}

// Basal is a segment of continuous background insulin delivery
type Basal struct {
	Base
	DeliveryType string  `json:"deliveryType"`
	Rate         float64 `json:"rate,omitempty"`     // units per hour
	Duration     int64   `json:"duration,omitempty"` // milliseconds
}

func (*Basal) Type() EventType { return TypeBasal }

// End returns the end of the delivery segment
func (b *Basal) End() time.Time {
	return b.Timestamp.Add(time.Duration(b.Duration) * time.Millisecond)
}

// CBG is a continuous glucose monitor reading
type CBG struct {
	Base
	Value float64 `json:"value"`
	Units string  `json:"units"`
}

func (*CBG) Type() EventType { return TypeCBG }

// SMBG is a self-monitored (fingerstick) reading
type SMBG struct {
	Base
	SubType string  `json:"subType,omitempty"`
	Value   float64 `json:"value"`
	Units   string  `json:"units"`
}

func (*SMBG) Type() EventType { return TypeSMBG }

// Recommended holds a bolus calculator recommendation
type Recommended struct {
	Carb       *float64 `json:"carb,omitempty"`
	Correction *float64 `json:"correction,omitempty"`
	Net        *float64 `json:"net,omitempty"`
}

// Wizard is a bolus calculator record
type Wizard struct {
	Base
	CarbInput      *float64     `json:"carbInput,omitempty"`
	Recommended    *Recommended `json:"recommended,omitempty"`
	InsulinOnBoard *float64     `json:"insulinOnBoard,omitempty"`
	BolusID        string       `json:"bolus,omitempty"`
	Units          string       `json:"units,omitempty"`
}

func (*Wizard) Type() EventType { return TypeWizard }

// Carbs returns the carbohydrate input in grams, zero when absent
func (w *Wizard) Carbs() float64 {
	if w.CarbInput == nil {
		return 0
	}
	return *w.CarbInput
}

// DeviceEvent is a pump or meter housekeeping record
type DeviceEvent struct {
	Base
	SubType string  `json:"subType"`
	Value   float64 `json:"value,omitempty"`
	Units   string  `json:"units,omitempty"`
}

func (*DeviceEvent) Type() EventType { return TypeDeviceEvent }

// Upload describes the device session a batch of data came from
type Upload struct {
	Base
	DeviceTags          []string `json:"deviceTags,omitempty"`
	Source              string   `json:"source,omitempty"`
	DeviceManufacturers []string `json:"deviceManufacturers,omitempty"`
}

func (*Upload) Type() EventType { return TypeUpload }

// HasTag reports whether the upload carries the device tag
func (u *Upload) HasTag(tag string) bool {
	return slices.Contains(u.DeviceTags, tag)
}

// Manufacturer returns the source, falling back to the first listed manufacturer
func (u *Upload) Manufacturer() string {
	if u.Source != "" {
		return u.Source
	}
	if len(u.DeviceManufacturers) > 0 {
		return u.DeviceManufacturers[0]
	}
	return ""
}

// Unknown holds a record whose type tag is not recognized or could not be decoded
type Unknown struct {
	Base
	RawType string `json:"type"`
}

func (u *Unknown) Type() EventType { return EventType(u.RawType) }
