package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/mstate/internal/ir"
)

// Recorder persists trace events for one run as a machine emits them.
// It satisfies the engine's Observer interface.
//
// Observe cannot return an error, so write failures are logged and
// counted and recording continues with the next event. Err reports the
// first failure.
type Recorder struct {
	store *Store
	runID string

	mu     sync.Mutex
	err    error
	n      int
	failed int
}

// NewRecorder returns a Recorder writing to runID. The run must already
// exist.
func NewRecorder(s *Store, runID string) *Recorder {
	return &Recorder{store: s, runID: runID}
}

func (r *Recorder) Observe(ev ir.TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.WriteTraceEvent(context.Background(), r.runID, ev); err != nil {
		if r.err == nil {
			r.err = err
		}
		r.failed++
		slog.Error("trace event not recorded", "run_id", r.runID, "seq", ev.Seq, "kind", ev.Kind, "error", err)
		return
	}
	r.n++
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Written returns the number of events persisted.
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Failed returns the number of events that could not be written.
func (r *Recorder) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}
