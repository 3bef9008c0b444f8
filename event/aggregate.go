package event

import "time"

// Aggregate is the immutable record emitted when a window closes: the
// streaming statistics for one (deviceId, metric) over [Start, End).
type Aggregate struct {
	DeviceID string    `json:"deviceId"`
	Tenant   string    `json:"tenant,omitempty"`
	Metric   string    `json:"metric"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Count    int64     `json:"count"`
	Mean     float64   `json:"mean"`
	Variance float64   `json:"variance"`
}

// WindowKey identifies the window an aggregate or alert came from, used for
// alert deduplication per (deviceId, metric, window).
func (a *Aggregate) WindowKey() string {
	return a.DeviceID + "|" + a.Metric + "|" + a.Start.UTC().Format(time.RFC3339)
}
