package event

import "time"

// Severity is an anomaly verdict level.
type Severity int

const (
	// SeverityNone means the value is within expected bounds.
	SeverityNone Severity = iota
	// SeverityWarning means the value crossed the warning threshold.
	SeverityWarning
	// SeverityCritical means the value crossed the critical threshold.
	SeverityCritical
)

// String returns the string representation of a severity.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so severities serialize as
// their names in JSON.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "warning":
		*s = SeverityWarning
	case "critical":
		*s = SeverityCritical
	default:
		*s = SeverityNone
	}
	return nil
}

// Verdict is the outcome of evaluating one sample or aggregate against a
// detection strategy.
type Verdict struct {
	Severity Severity `json:"severity"`
	Score    float64  `json:"score"`
}

// Alert is emitted when a (deviceId, metric, window) first crosses into
// warning or critical, or when its severity later increases.
type Alert struct {
	DeviceID  string    `json:"deviceId"`
	Tenant    string    `json:"tenant,omitempty"`
	Metric    string    `json:"metric"`
	WindowKey string    `json:"windowKey"`
	Severity  Severity  `json:"severity"`
	Score     float64   `json:"score"`
	Value     float64   `json:"value"`
	Strategy  string    `json:"strategy"`
	At        time.Time `json:"at"`
}
