package engine

import (
	"sync"

	"github.com/roach88/mstate/internal/ir"
)

// DefaultQueueCapacity bounds the trigger queue unless WithQueueCapacity
// says otherwise.
const DefaultQueueCapacity = 32

// triggerQueue is a thread-safe FIFO of pending triggers.
//
// Fire enqueues from any goroutine, including from inside action
// callbacks; the Transit phase dequeues from the goroutine driving Run.
// A capacity <= 0 means unbounded.
type triggerQueue struct {
	mu       sync.Mutex
	items    []ir.TriggerID
	capacity int
}

func newTriggerQueue(capacity int) *triggerQueue {
	prealloc := capacity
	if prealloc <= 0 || prealloc > 64 {
		prealloc = 64
	}
	return &triggerQueue{
		items:    make([]ir.TriggerID, 0, prealloc),
		capacity: capacity,
	}
}

// Enqueue appends t. It returns false, leaving the queue unchanged, when
// the queue is at capacity.
func (q *triggerQueue) Enqueue(t ir.TriggerID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, t)
	return true
}

// TryDequeue removes and returns the oldest trigger without blocking.
func (q *triggerQueue) TryDequeue() (ir.TriggerID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return ir.TriggerNone, false
	}
	t := q.items[0]
	if len(q.items) == 1 {
		// Reset to reuse the backing array.
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return t, true
}

// Len returns the number of pending triggers.
func (q *triggerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the pending triggers, oldest first.
func (q *triggerQueue) Snapshot() []ir.TriggerID {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ir.TriggerID, len(q.items))
	copy(out, q.items)
	return out
}
