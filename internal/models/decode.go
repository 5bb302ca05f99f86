package models

import (
	"encoding/json"
	"fmt"
)

// DecodeEvents parses a JSON array of tidepool-format device records.
// Records that are not recognized or fail to decode are returned as *Unknown
// so that callers can account for them; only a malformed array is an error.
func DecodeEvents(data []byte) ([]Event, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing events: %w", err)
	}

	events := make([]Event, 0, len(raw))
	for _, r := range raw {
		events = append(events, decodeEvent(r))
	}
	return events, nil
}

func decodeEvent(raw json.RawMessage) Event {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return &Unknown{}
	}

	var ev Event
	switch EventType(tag.Type) {
	case TypeBolus:
		ev = &Bolus{}
	case TypeBasal:
		ev = &Basal{}
	case TypeCBG:
		ev = &CBG{}
	case TypeSMBG:
		ev = &SMBG{}
	case TypeWizard:
		ev = &Wizard{}
	case TypeDeviceEvent:
		ev = &DeviceEvent{}
	case TypeUpload:
		ev = &Upload{}
	default:
		return &Unknown{RawType: tag.Type}
	}

	if err := json.Unmarshal(raw, ev); err != nil {
		return &Unknown{RawType: tag.Type}
	}
	return ev
}
