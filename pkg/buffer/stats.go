package buffer

import (
	"sync"
	"sync/atomic"
)

// Statistics tracks buffer activity. Drops record load shedding decisions so
// an overloaded intake is always visible to operators.
type Statistics struct {
	writes        int64
	reads         int64
	drops         int64
	blockedWrites int64

	mu          sync.RWMutex
	currentSize int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Write records a successful write.
func (s *Statistics) Write() { atomic.AddInt64(&s.writes, 1) }

// Read records a successful read.
func (s *Statistics) Read() { atomic.AddInt64(&s.reads, 1) }

// Drop records an item shed by an overflow policy.
func (s *Statistics) Drop() { atomic.AddInt64(&s.drops, 1) }

// BlockedWrite records a writer waiting for space under the Block policy.
func (s *Statistics) BlockedWrite() { atomic.AddInt64(&s.blockedWrites, 1) }

// UpdateSize records the current buffer occupancy.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	s.mu.Unlock()
}

// Writes returns the total number of successful writes.
func (s *Statistics) Writes() int64 { return atomic.LoadInt64(&s.writes) }

// Reads returns the total number of successful reads.
func (s *Statistics) Reads() int64 { return atomic.LoadInt64(&s.reads) }

// Drops returns the total number of shed items.
func (s *Statistics) Drops() int64 { return atomic.LoadInt64(&s.drops) }

// BlockedWrites returns how many writes had to wait for space.
func (s *Statistics) BlockedWrites() int64 { return atomic.LoadInt64(&s.blockedWrites) }

// CurrentSize returns the last recorded occupancy.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}
