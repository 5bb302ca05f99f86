package basics

import "strings"

// DeviceMix labels the combination of device types present in a run:
// "BGM only", "CGM+Pump", "BGM+CGM+Pump" and so on. It is used as a telemetry
// property and returns "" when no device data is present.
func DeviceMix(c *Classified) string {
	var parts []string
	if len(c.SMBG) > 0 {
		parts = append(parts, "BGM")
	}
	if len(c.CBG) > 0 {
		parts = append(parts, "CGM")
	}
	if len(c.Basals) > 0 || len(c.Boluses) > 0 {
		parts = append(parts, "Pump")
	}

	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0] + " only"
	default:
		return strings.Join(parts, "+")
	}
}

// InsulinDataAvailable reports whether any insulin-related event made it into the range
func InsulinDataAvailable(c *Classified) bool {
	return len(c.Basals) > 0 || len(c.Boluses) > 0 || len(c.Wizards) > 0
}
