package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/mstate/internal/clock"
	"github.com/roach88/mstate/internal/ir"
)

// DefaultStepBudget bounds the handler invocations of one Drain.
const DefaultStepBudget = 10000

// LivelockError is returned when Drain exceeds its step budget, typically
// because a machine keeps requesting immediate wakes.
type LivelockError struct {
	Steps int
}

func (e *LivelockError) Error() string {
	return fmt.Sprintf("scheduler: no quiescence after %d steps", e.Steps)
}

type manualTimer struct {
	seq       int64
	deadline  time.Time
	period    time.Duration
	fn        func()
	cancelled bool
}

// Manual is a deterministic Bus and Timers driven by a clock.Virtual.
// Nothing happens until Drain or Advance is called; time only moves in
// Advance.
type Manual struct {
	clock  *clock.Virtual
	budget int

	mu       sync.Mutex
	handlers map[ir.MachineID]func()
	raised   map[ir.MachineID]bool
	pending  []ir.MachineID
	timers   []*manualTimer
	timerSeq int64
	steps    int
}

// NewManual returns a scheduler over clk.
func NewManual(clk *clock.Virtual) *Manual {
	return &Manual{
		clock:    clk,
		budget:   DefaultStepBudget,
		handlers: make(map[ir.MachineID]func()),
		raised:   make(map[ir.MachineID]bool),
	}
}

// SetStepBudget changes the per-Drain handler budget.
func (s *Manual) SetStepBudget(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget = n
}

// Clock returns the virtual clock.
func (s *Manual) Clock() *clock.Virtual {
	return s.clock
}

// Steps returns the total number of handler invocations so far.
func (s *Manual) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

func (s *Manual) OnEvent(id ir.MachineID, handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[id] = handler
}

func (s *Manual) Raise(id ir.MachineID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raised[id] {
		return
	}
	s.raised[id] = true
	s.pending = append(s.pending, id)
}

func (s *Manual) After(d time.Duration, fn func()) func() {
	return s.addTimer(d, 0, fn)
}

func (s *Manual) Every(d time.Duration, fn func()) func() {
	return s.addTimer(d, d, fn)
}

func (s *Manual) addTimer(d, period time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timerSeq++
	t := &manualTimer{
		seq:      s.timerSeq,
		deadline: s.clock.Now().Add(d),
		period:   period,
		fn:       fn,
	}
	s.timers = append(s.timers, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.cancelled = true
	}
}

// Timers returns the number of live timers.
func (s *Manual) Timers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Drain runs raised wakes, in raise order, until none are pending.
func (s *Manual) Drain() error {
	steps := 0
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return nil
		}
		if steps >= s.budget {
			s.mu.Unlock()
			return &LivelockError{Steps: steps}
		}
		id := s.pending[0]
		s.pending = s.pending[1:]
		delete(s.raised, id)
		h := s.handlers[id]
		s.steps++
		s.mu.Unlock()

		steps++
		if h != nil {
			h()
		}
	}
}

// nextDue pops the earliest live timer due at or before limit, re-arming
// periodic timers. Ties go to the timer created first.
func (s *Manual) nextDue(limit time.Time) (*manualTimer, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	s.timers = live

	sort.SliceStable(s.timers, func(i, j int) bool {
		if s.timers[i].deadline.Equal(s.timers[j].deadline) {
			return s.timers[i].seq < s.timers[j].seq
		}
		return s.timers[i].deadline.Before(s.timers[j].deadline)
	})
	if len(s.timers) == 0 || s.timers[0].deadline.After(limit) {
		return nil, time.Time{}, false
	}

	t := s.timers[0]
	at := t.deadline
	if t.period > 0 {
		t.deadline = t.deadline.Add(t.period)
	} else {
		t.cancelled = true
	}
	return t, at, true
}

// Advance moves the clock forward by d, firing due timers in deadline
// order and draining after each.
func (s *Manual) Advance(d time.Duration) error {
	if err := s.Drain(); err != nil {
		return err
	}
	target := s.clock.Now().Add(d)
	for {
		t, at, ok := s.nextDue(target)
		if !ok {
			break
		}
		s.clock.AdvanceTo(at)
		t.fn()
		if err := s.Drain(); err != nil {
			return err
		}
	}
	s.clock.AdvanceTo(target)
	return s.Drain()
}
