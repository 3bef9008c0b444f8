package dlq

import (
	"container/heap"
	"sync"
	"time"

	"github.com/c360/fieldstream/event"
)

// task is a pending redelivery. attempt counts delivery attempts already
// made; dueAt is when the next one fires.
type task struct {
	rec     event.Record
	sink    string
	attempt int
	dueAt   time.Time
	lastErr error

	firstSeenAt time.Time
	index       int
}

type taskHeap []*task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].dueAt.Before(h[j].dueAt) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x any)         { t := x.(*task); t.index = len(*h); *h = append(*h, t) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// scheduler fires tasks when they come due. A single goroutine sleeps
// until the earliest dueAt, so thousands of pending retries cost one
// timer rather than one goroutine each.
type scheduler struct {
	mu    sync.Mutex
	tasks taskHeap
	fire  func(*task)

	wake     chan struct{}
	shutdown chan struct{}
	done     chan struct{}
}

func newScheduler(fire func(*task)) *scheduler {
	return &scheduler{
		fire:     fire,
		wake:     make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *scheduler) start() {
	go s.run()
}

func (s *scheduler) stop() {
	close(s.shutdown)
	<-s.done
}

// schedule enqueues a task and nudges the run loop to re-evaluate its
// sleep.
func (s *scheduler) schedule(t *task) {
	s.mu.Lock()
	heap.Push(&s.tasks, t)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *scheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Len()
}

func (s *scheduler) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		now := time.Now()

		s.mu.Lock()
		var due []*task
		for s.tasks.Len() > 0 && !s.tasks[0].dueAt.After(now) {
			due = append(due, heap.Pop(&s.tasks).(*task))
		}
		var next time.Duration
		hasNext := s.tasks.Len() > 0
		if hasNext {
			next = time.Until(s.tasks[0].dueAt)
		}
		s.mu.Unlock()

		// fire off-loop so a slow delivery cannot delay other tasks
		for _, t := range due {
			go s.fire(t)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if hasNext {
			if next < 0 {
				next = 0
			}
			timer.Reset(next)
		} else {
			timer.Reset(time.Hour)
		}

		select {
		case <-s.shutdown:
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}
