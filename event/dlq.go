package event

import (
	"encoding/json"
	"time"
)

// DLQRecord is a quarantined record: the original payload plus enough
// context for an operator to diagnose and replay it.
//
// Wire layout:
//
//	{"event": <original>, "reason": "...", "attempts": n,
//	 "firstSeenAt": ts, "lastError": "...", "traceId": "..."}
type DLQRecord struct {
	ID          string          `json:"id"`
	Record      json.RawMessage `json:"event"`
	Reason      string          `json:"reason"`
	Attempts    int             `json:"attempts"`
	FirstSeenAt time.Time       `json:"firstSeenAt"`
	LastError   string          `json:"lastError"`
	TraceID     string          `json:"traceId"`
}
