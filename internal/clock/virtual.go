package clock

import (
	"sync"
	"time"
)

// Epoch is the default start of a Virtual clock. A fixed start keeps
// golden traces byte-identical across runs.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Virtual is a manually advanced clock. Time never moves on its own.
//
// Thread-safety: all methods are safe for concurrent use.
type Virtual struct {
	mu      sync.RWMutex
	current time.Time
}

// NewVirtual creates a virtual clock starting at start. A zero start means
// Epoch.
func NewVirtual(start time.Time) *Virtual {
	if start.IsZero() {
		start = Epoch
	}
	return &Virtual{current: start}
}

// Now returns the current virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Advance moves the clock forward by d. Non-positive durations are a no-op.
func (v *Virtual) Advance(d time.Duration) time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	if d > 0 {
		v.current = v.current.Add(d)
	}
	return v.current
}

// AdvanceTo moves the clock to t. The clock never moves backward.
func (v *Virtual) AdvanceTo(t time.Time) time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	if t.After(v.current) {
		v.current = t
	}
	return v.current
}

// Elapsed returns the time since the clock's start.
func (v *Virtual) Elapsed(start time.Time) time.Duration {
	return v.Now().Sub(start)
}
