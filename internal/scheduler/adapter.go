package scheduler

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/mstate/internal/engine"
	"github.com/roach88/mstate/internal/ir"
)

// DefaultPollInterval is the period of the background poll that re-runs a
// machine whose last run asked for another wake.
const DefaultPollInterval = 100 * time.Millisecond

// ErrAlreadyAttached is returned by a second Attach.
var ErrAlreadyAttached = errors.New("scheduler: adapter already attached")

// Bus delivers wake events. Raise may be called from any goroutine;
// handlers run on the bus's own goroutine.
type Bus interface {
	Raise(id ir.MachineID)
	OnEvent(id ir.MachineID, handler func())
}

// Timers schedules callbacks on the bus's goroutine. The returned cancel
// function is idempotent.
type Timers interface {
	After(d time.Duration, fn func()) (cancel func())
	Every(d time.Duration, fn func()) (cancel func())
}

// Adapter drives one machine from a Bus and Timers. It implements
// engine.Waker and installs itself on the machine.
type Adapter struct {
	machine *engine.Machine
	bus     Bus
	timers  Timers
	poll    time.Duration
	onHalt  func(error)
	onRun   func(ir.Wake)

	mu          sync.Mutex
	attached    bool
	halted      bool
	last        ir.Wake
	runs        int
	cancelTimer func()
	cancelPoll  func()
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithPollInterval sets the background poll period. d <= 0 disables the
// poll; wakes then come only from Fire, Start, and delayed directives.
func WithPollInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.poll = d
	}
}

// WithHaltHandler registers fn to be called once when the machine halts.
func WithHaltHandler(fn func(error)) AdapterOption {
	return func(a *Adapter) {
		a.onHalt = fn
	}
}

// WithRunHook registers fn to be called after every successful run with
// the directive it returned.
func WithRunHook(fn func(ir.Wake)) AdapterOption {
	return func(a *Adapter) {
		a.onRun = fn
	}
}

// NewAdapter binds m to bus and timers and sets itself as m's waker.
func NewAdapter(m *engine.Machine, bus Bus, timers Timers, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		machine: m,
		bus:     bus,
		timers:  timers,
		poll:    DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	m.SetWaker(a)
	return a
}

// Attach registers the wake handler and, when enabled, the background
// poll. It may be called once.
func (a *Adapter) Attach() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attached {
		return ErrAlreadyAttached
	}
	a.attached = true

	id := a.machine.ID()
	a.bus.OnEvent(id, a.wake)
	if a.poll > 0 {
		a.cancelPoll = a.timers.Every(a.poll, a.tick)
	}
	slog.Debug("adapter attached", "machine", id, "poll", a.poll)
	return nil
}

// Detach cancels the poll and any pending timer. The bus handler stays
// registered but runs become no-ops.
func (a *Adapter) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopTimersLocked()
	a.halted = true
}

// RequestWake implements engine.Waker.
func (a *Adapter) RequestWake(id ir.MachineID) {
	a.bus.Raise(id)
}

// Last returns the directive of the most recent run.
func (a *Adapter) Last() ir.Wake {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Runs returns how many times the machine has been run.
func (a *Adapter) Runs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}

// Halted reports whether the adapter stopped driving the machine.
func (a *Adapter) Halted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.halted
}

// tick is the poll callback. It raises a wake only when the last run asked
// for one.
func (a *Adapter) tick() {
	a.mu.Lock()
	raise := !a.halted && a.last.Kind != ir.WakeNone
	a.mu.Unlock()
	if raise {
		a.bus.Raise(a.machine.ID())
	}
}

// wake is the bus handler: run the machine and act on its directive.
func (a *Adapter) wake() {
	a.mu.Lock()
	if a.halted {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	id := a.machine.ID()
	wake, err := a.machine.Run()
	if err != nil {
		if engine.IsReentrantError(err) {
			slog.Warn("wake dropped: machine already running", "machine", id)
			return
		}
		a.halt(err)
		return
	}

	a.mu.Lock()
	a.runs++
	a.last = wake
	if a.cancelTimer != nil {
		a.cancelTimer()
		a.cancelTimer = nil
	}
	if wake.Kind == ir.WakeAfter {
		a.cancelTimer = a.timers.After(wake.After, func() { a.bus.Raise(id) })
	}
	a.mu.Unlock()

	if wake.Kind == ir.WakeImmediate {
		a.bus.Raise(id)
	}
	if a.onRun != nil {
		a.onRun(wake)
	}
}

func (a *Adapter) halt(err error) {
	a.mu.Lock()
	a.runs++
	a.last = ir.NoWake
	a.halted = true
	a.stopTimersLocked()
	a.mu.Unlock()

	slog.Error("machine halted, adapter stopped",
		"machine", a.machine.ID(),
		"error", err,
	)
	if a.onHalt != nil {
		a.onHalt(err)
	}
}

func (a *Adapter) stopTimersLocked() {
	if a.cancelTimer != nil {
		a.cancelTimer()
		a.cancelTimer = nil
	}
	if a.cancelPoll != nil {
		a.cancelPoll()
		a.cancelPoll = nil
	}
}
