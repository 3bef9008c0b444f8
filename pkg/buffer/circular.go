package buffer

import (
	"sync"

	"github.com/c360/fieldstream/errors"
)

// ErrClosed is returned by reads on a closed, drained buffer and by writes
// after Close.
var ErrClosed = errors.New("buffer closed")

// circularBuffer is a thread-safe ring buffer with overflow policies.
type circularBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	stats    *Statistics
	metrics  *bufferMetrics
	opts     *bufferOptions[T]

	notEmpty *sync.Cond
	notFull  *sync.Cond
	closed   bool
}

func newCircularBuffer[T any](capacity int, opts *bufferOptions[T]) (*circularBuffer[T], error) {
	if capacity <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "buffer", "newCircularBuffer",
			"capacity must be positive")
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "newCircularBuffer", "metrics registration")
		}
	}

	cb := &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}
	cb.notEmpty = sync.NewCond(&cb.mu)
	cb.notFull = sync.NewCond(&cb.mu)

	return cb, nil
}

// Write adds an item according to the overflow policy.
func (cb *circularBuffer[T]) Write(item T) error {
	cb.mu.Lock()

	if cb.closed {
		cb.mu.Unlock()
		return errors.WrapInvalid(ErrClosed, "buffer", "Write", "write after close")
	}

	var dropped *T
	if cb.size == cb.capacity {
		switch cb.opts.overflowPolicy {
		case DropOldest:
			old := cb.items[cb.tail]
			cb.tail = (cb.tail + 1) % cb.capacity
			cb.size--
			dropped = &old
			cb.stats.Drop()
			cb.metrics.recordDrop()

		case DropNewest:
			cb.stats.Drop()
			cb.metrics.recordDrop()
			cb.mu.Unlock()
			if cb.opts.dropCallback != nil {
				cb.opts.dropCallback(item)
			}
			return nil

		case Block:
			for cb.size == cb.capacity && !cb.closed {
				cb.stats.BlockedWrite()
				cb.notFull.Wait()
			}
			if cb.closed {
				cb.mu.Unlock()
				return errors.WrapInvalid(ErrClosed, "buffer", "Write", "closed while blocked")
			}
		}
	}

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++
	size := cb.size

	cb.stats.Write()
	cb.stats.UpdateSize(int64(size))
	cb.metrics.recordWrite()
	cb.metrics.updateSize(size)

	cb.notEmpty.Signal()
	cb.mu.Unlock()

	if dropped != nil && cb.opts.dropCallback != nil {
		cb.opts.dropCallback(*dropped)
	}
	return nil
}

// Read retrieves one item without blocking.
func (cb *circularBuffer[T]) Read() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		var zero T
		return zero, false
	}
	return cb.take(), true
}

// BlockingRead waits for an item or for Close.
func (cb *circularBuffer[T]) BlockingRead() (T, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	for cb.size == 0 && !cb.closed {
		cb.notEmpty.Wait()
	}
	if cb.size == 0 {
		var zero T
		return zero, ErrClosed
	}
	return cb.take(), nil
}

// ReadBatch retrieves up to max items without blocking.
func (cb *circularBuffer[T]) ReadBatch(max int) []T {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if max <= 0 || cb.size == 0 {
		return nil
	}
	if max > cb.size {
		max = cb.size
	}

	batch := make([]T, 0, max)
	for i := 0; i < max; i++ {
		batch = append(batch, cb.take())
	}
	return batch
}

// take removes and returns the oldest item. Caller holds the lock.
func (cb *circularBuffer[T]) take() T {
	item := cb.items[cb.tail]
	var zero T
	cb.items[cb.tail] = zero // release reference for GC
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--

	cb.stats.Read()
	cb.stats.UpdateSize(int64(cb.size))
	cb.metrics.recordRead()
	cb.metrics.updateSize(cb.size)

	cb.notFull.Signal()
	return item
}

// Size returns the current number of items.
func (cb *circularBuffer[T]) Size() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size
}

// Capacity returns the buffer capacity.
func (cb *circularBuffer[T]) Capacity() int {
	return cb.capacity
}

// IsEmpty returns true when the buffer holds no items.
func (cb *circularBuffer[T]) IsEmpty() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size == 0
}

// Stats returns buffer statistics.
func (cb *circularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

// Close stops writes and wakes all waiters. Remaining items stay readable.
func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return nil
	}
	cb.closed = true
	cb.notEmpty.Broadcast()
	cb.notFull.Broadcast()
	return nil
}
