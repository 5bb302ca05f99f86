package models

// ServerStatus represents the Nightscout server status
type ServerStatus struct {
	Status     string         `json:"status"`
	Name       string         `json:"name"`
	Version    string         `json:"version"`
	ServerTime string         `json:"serverTime"`
	APIEnabled bool           `json:"apiEnabled"`
	Settings   ServerSettings `json:"settings,omitempty"`
}

// ServerSettings contains the Nightscout server settings the basics view uses
type ServerSettings struct {
	Units      string     `json:"units"`
	Thresholds Thresholds `json:"thresholds,omitempty"`
}

// Thresholds are the server-side alarm thresholds in mg/dL
type Thresholds struct {
	BGHigh         int `json:"bgHigh"`
	BGTargetTop    int `json:"bgTargetTop"`
	BGTargetBottom int `json:"bgTargetBottom"`
	BGLow          int `json:"bgLow"`
}

// BGClasses maps the server thresholds onto the four category boundaries.
// ok is false when the server did not report a complete set.
func (t Thresholds) BGClasses() (classes BGClasses, ok bool) {
	if t.BGLow <= 0 || t.BGTargetBottom <= 0 || t.BGTargetTop <= 0 || t.BGHigh <= 0 {
		return BGClasses{}, false
	}
	return BGClasses{
		Units:   MgdL,
		VeryLow: float64(t.BGLow),
		Low:     float64(t.BGTargetBottom),
		Target:  float64(t.BGTargetTop),
		High:    float64(t.BGHigh),
	}, true
}
