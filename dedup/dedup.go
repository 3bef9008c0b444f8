// Package dedup implements the idempotency store that guarantees at-most-once
// effective processing per event identity key. CheckAndMark is atomic: under
// concurrent delivery of the same key, exactly one caller sees Accepted.
package dedup

import "context"

// Result of an idempotency check.
type Result int

const (
	// Accepted means this caller claimed the key and must process the event.
	Accepted Result = iota
	// Duplicate means the key was already claimed inside the TTL horizon.
	Duplicate
)

// String returns the string representation of the result.
func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Store checks and marks event identity keys. Entries expire after the
// configured TTL, which must cover the transport's redelivery horizon.
type Store interface {
	// CheckAndMark atomically claims the key. Errors are transient
	// (backend unavailable); the caller decides whether to process anyway.
	CheckAndMark(ctx context.Context, key string) (Result, error)
	Close() error
}
