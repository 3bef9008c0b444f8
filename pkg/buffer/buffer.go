// Package buffer provides a generic, thread-safe bounded buffer with
// configurable overflow policies. The pipeline uses it as the intake queue
// between ingress and the shard workers: Block applies flow control
// upstream, DropOldest/DropNewest shed load, and every shed item is counted
// so the choice is observable, never silent.
package buffer

// Buffer represents a bounded buffer parameterized by item type T.
type Buffer[T any] interface {
	// Write adds an item to the buffer. Behavior when full depends on the
	// overflow policy: Block waits for space, the Drop policies shed.
	Write(item T) error

	// Read retrieves and removes one item without blocking.
	// Returns the zero value and false when the buffer is empty.
	Read() (T, bool)

	// BlockingRead waits until an item is available or the buffer is closed
	// and drained, in which case it returns ErrClosed.
	BlockingRead() (T, error)

	// ReadBatch retrieves and removes up to max items.
	ReadBatch(max int) []T

	// Size returns the current number of items.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// IsEmpty returns true if the buffer contains no items.
	IsEmpty() bool

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close stops accepting writes and wakes all blocked readers/writers.
	// Buffered items remain readable until drained.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// Block causes Write operations to wait until space is available.
	Block OverflowPolicy = iota

	// DropOldest removes the oldest item to make room for new items.
	DropOldest

	// DropNewest drops the incoming item when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case Block:
		return "block"
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a config string onto an overflow policy. Unrecognized
// values fall back to Block, the safe flow-control default.
func ParsePolicy(s string) OverflowPolicy {
	switch s {
	case "drop_oldest":
		return DropOldest
	case "drop_newest":
		return DropNewest
	default:
		return Block
	}
}

// DropCallback is called with each item shed by a Drop policy.
type DropCallback[T any] func(item T)

// NewCircular creates a bounded circular buffer with the given capacity.
func NewCircular[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
