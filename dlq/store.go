// Package dlq quarantines permanently failed records and retries transient
// delivery failures with exponential backoff. Retries run on a delay
// scheduler so backoff waits never occupy worker goroutines.
package dlq

import (
	"context"
	"sort"
	"sync"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

// Store persists dead-lettered records for inspection and replay.
type Store interface {
	Add(ctx context.Context, rec *event.DLQRecord) error
	Get(ctx context.Context, id string) (*event.DLQRecord, error)
	// List returns records oldest first, at most limit (0 = all).
	List(ctx context.Context, limit int) ([]*event.DLQRecord, error)
	Remove(ctx context.Context, id string) error
	Size() int
	Close() error
}

// MemoryStore keeps dead-lettered records in memory, bounded by maxSize.
// When full, the oldest record is evicted; the DLQ is a diagnostic
// window, not an infinite archive.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*event.DLQRecord
	order   []string // insertion order, oldest first
	maxSize int
}

// NewMemoryStore creates a bounded in-memory store.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryStore{
		records: make(map[string]*event.DLQRecord),
		maxSize: maxSize,
	}
}

// Add implements Store.
func (s *MemoryStore) Add(_ context.Context, rec *event.DLQRecord) error {
	if rec == nil || rec.ID == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "MemoryStore", "Add", "record id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; !exists {
		for len(s.order) >= s.maxSize {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.records, oldest)
		}
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*event.DLQRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrFieldNotFound, "MemoryStore", "Get", "lookup "+id)
	}
	return rec, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*event.DLQRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*event.DLQRecord, 0, n)
	for _, id := range s.order[:n] {
		out = append(out, s.records[id])
	}
	return out, nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return errors.WrapInvalid(errors.ErrFieldNotFound, "MemoryStore", "Remove", "lookup "+id)
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Size implements Store.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// sortByFirstSeen orders records oldest first, used by the file store
// whose map loses insertion order.
func sortByFirstSeen(records []*event.DLQRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].FirstSeenAt.Equal(records[j].FirstSeenAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].FirstSeenAt.Before(records[j].FirstSeenAt)
	})
}
