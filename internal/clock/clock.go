// Package clock provides the monotonic time source the engine reads when
// deciding whether a DO action is due.
//
// The engine never sleeps or arms timers itself; it only asks "what time is
// it". Real deployments use System, tests and the scenario harness use
// Virtual so that DO intervals are reproducible.
package clock

import "time"

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock. time.Now carries a monotonic reading, so
// differences between two Now values are immune to wall-clock jumps.
type System struct{}

// NewSystem returns the real-time clock.
func NewSystem() System {
	return System{}
}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}
