package engine

import (
	"time"

	"github.com/roach88/mstate/internal/ir"
)

// doTimer pairs a DO action with its polling state.
//
// The action fires when forced (first Do after entering its state) or when
// the clock is strictly past nextTick. Firing sets nextTick to now+interval.
type doTimer struct {
	state    ir.StateID
	interval time.Duration
	action   DoAction

	nextTick time.Time
	force    bool
}

// arm forces the next due check to fire. Called on entry to the state.
func (d *doTimer) arm() {
	d.force = true
}

// due reports whether the action should fire at now.
func (d *doTimer) due(now time.Time) bool {
	return d.force || now.After(d.nextTick)
}

// fired records that the action ran at now.
func (d *doTimer) fired(now time.Time) {
	d.force = false
	d.nextTick = now.Add(d.interval)
}

// remaining is how long until due would report true. Because due is a
// strict comparison, the result is one millisecond past nextTick.
func (d *doTimer) remaining(now time.Time) time.Duration {
	if d.force {
		return 0
	}
	return d.nextTick.Sub(now) + time.Millisecond
}
