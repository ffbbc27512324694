package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/mstate/internal/clock"
	"github.com/roach88/mstate/internal/ir"
)

// Waker is notified whenever a machine needs Run to be called: after an
// accepted Start and after every queued trigger. Implemented by
// scheduler.Adapter.
type Waker interface {
	RequestWake(id ir.MachineID)
}

// WakerFunc adapts a function to Waker.
type WakerFunc func(id ir.MachineID)

func (f WakerFunc) RequestWake(id ir.MachineID) { f(id) }

type nopWaker struct{}

func (nopWaker) RequestWake(ir.MachineID) {}

// Machine is one state machine and its phase engine.
//
// Thread-safety model:
//   - Declare*: before Start only; safe from any goroutine
//   - Start, Fire, accessors: safe from any goroutine, including callbacks
//   - Run: one caller at a time; nested calls are rejected
//
// All state mutations other than queue appends and the Start seeding happen
// inside Run.
type Machine struct {
	id       ir.MachineID
	clock    clock.Clock
	born     time.Time
	waker    Waker
	observer Observer
	seq      *Sequence
	queue    *triggerQueue
	queueCap int

	running atomic.Bool

	// mu guards the fields below. It is never held while an action or
	// observer runs.
	mu           sync.Mutex
	started      bool
	phase        ir.Phase
	defaultState ir.StateID
	state        ir.StateID
	pendingFrom  ir.StateID
	pendingTo    ir.StateID
	halt         error
	reg          registry

	// Owned by Run.
	active activeSet
}

// Option configures a Machine.
type Option func(*Machine)

// WithID sets the machine id reported to the Waker. Default 0.
func WithID(id ir.MachineID) Option {
	return func(m *Machine) {
		m.id = id
	}
}

// WithClock sets the time source for DO timers. Default clock.System.
func WithClock(c clock.Clock) Option {
	return func(m *Machine) {
		m.clock = c
	}
}

// WithWaker sets the wake sink. Default discards wake requests.
func WithWaker(w Waker) Option {
	return func(m *Machine) {
		m.waker = w
	}
}

// WithQueueCapacity bounds the trigger queue. n <= 0 means unbounded.
// Default DefaultQueueCapacity.
func WithQueueCapacity(n int) Option {
	return func(m *Machine) {
		m.queueCap = n
	}
}

// WithObserver installs a trace observer.
func WithObserver(o Observer) Option {
	return func(m *Machine) {
		m.observer = o
	}
}

// New creates an idle machine with no declarations.
func New(opts ...Option) *Machine {
	m := &Machine{
		clock:        clock.NewSystem(),
		seq:          NewSequence(),
		waker:        nopWaker{},
		observer:     nopObserver{},
		queueCap:     DefaultQueueCapacity,
		phase:        ir.PhaseIdle,
		defaultState: ir.StateInitial,
		state:        ir.StateInitial,
		pendingFrom:  ir.StateInitial,
		pendingTo:    ir.StateInitial,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}
	if m.waker == nil {
		m.waker = nopWaker{}
	}
	m.queue = newTriggerQueue(m.queueCap)
	m.born = m.clock.Now()
	return m
}

// SetWaker replaces the wake sink. Intended for adapters that are
// constructed after the machine; call before Start.
func (m *Machine) SetWaker(w Waker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waker = w
}

// ID returns the machine id.
func (m *Machine) ID() ir.MachineID {
	return m.id
}

// State returns the current state. ir.StateInitial before the first Into,
// ir.StateFinal after termination.
func (m *Machine) State() ir.StateID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Phase returns the phase Run will execute next.
func (m *Machine) Phase() ir.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Pending returns the endpoints of the transition in flight.
func (m *Machine) Pending() (from, to ir.StateID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingFrom, m.pendingTo
}

// QueueLen returns the number of queued triggers.
func (m *Machine) QueueLen() int {
	return m.queue.Len()
}

// Err returns the halting error, or nil when the machine is not in
// PhasePanic.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halt
}

func (m *Machine) declareError(code RuntimeErrorCode, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Machine: m.id,
		State:   m.state,
		Phase:   m.phase,
	}
}

// checkDeclare must be called with mu held.
func (m *Machine) checkDeclare(state ir.StateID) error {
	if m.started {
		return m.declareError(ErrCodeDeclareAfterStart, "declaration for %s after start", state)
	}
	if state.IsTerminal() {
		return m.declareError(ErrCodeInvalidDeclaration, "cannot declare actions on %s", state)
	}
	return nil
}

// DeclareEntry registers an entry action for state.
func (m *Machine) DeclareEntry(state ir.StateID, action EntryAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkDeclare(state); err != nil {
		return err
	}
	if action == nil {
		return m.declareError(ErrCodeInvalidDeclaration, "nil entry action for %s", state)
	}
	m.reg.entries = append(m.reg.entries, entryDecl{state: state, action: action})
	return nil
}

// DeclareDo registers a DO action for state, polled every interval.
func (m *Machine) DeclareDo(state ir.StateID, interval time.Duration, action DoAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkDeclare(state); err != nil {
		return err
	}
	if action == nil {
		return m.declareError(ErrCodeInvalidDeclaration, "nil do action for %s", state)
	}
	if interval < 0 {
		return m.declareError(ErrCodeInvalidDeclaration, "negative interval %s for %s", interval, state)
	}
	m.reg.dos = append(m.reg.dos, &doTimer{state: state, interval: interval, action: action})
	return nil
}

// DeclareExit registers an exit action for state.
func (m *Machine) DeclareExit(state ir.StateID, action ExitAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkDeclare(state); err != nil {
		return err
	}
	if action == nil {
		return m.declareError(ErrCodeInvalidDeclaration, "nil exit action for %s", state)
	}
	m.reg.exits = append(m.reg.exits, exitDecl{state: state, action: action})
	return nil
}

// DeclareTransition registers from --trigger--> to. ir.TriggerNone
// declares a completion transition; to may be ir.StateFinal.
func (m *Machine) DeclareTransition(from, to ir.StateID, trigger ir.TriggerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkDeclare(from); err != nil {
		return err
	}
	if to == ir.StateInitial {
		return m.declareError(ErrCodeInvalidDeclaration, "transition from %s targets INITIAL", from)
	}
	m.reg.transitions = append(m.reg.transitions, Transition{From: from, To: to, Trigger: trigger})
	return nil
}

// Start seeds the machine with its default state and requests a wake. It
// fails, returning false, unless the machine is idle. A machine that
// reached FINAL is idle again and may be restarted.
func (m *Machine) Start(initial ir.StateID) bool {
	m.mu.Lock()
	if m.phase != ir.PhaseIdle {
		phase := m.phase
		m.mu.Unlock()
		slog.Warn("start rejected: machine not idle",
			"machine", m.id,
			"phase", phase.String(),
		)
		return false
	}
	m.started = true
	m.defaultState = initial
	m.phase = ir.PhaseStart
	waker := m.waker
	m.mu.Unlock()

	slog.Debug("machine started", "machine", m.id, "initial", initial.String())
	waker.RequestWake(m.id)
	return true
}

// Fire queues trigger and requests a wake. It performs no phase work.
// A full queue rejects the trigger with ErrCodeQueueFull and requests no
// wake.
func (m *Machine) Fire(trigger ir.TriggerID) error {
	if trigger == ir.TriggerNone {
		return m.lockedError(ErrCodeInvalidTrigger, "completion trigger cannot be fired", nil)
	}
	if !m.queue.Enqueue(trigger) {
		err := m.lockedError(ErrCodeQueueFull,
			fmt.Sprintf("trigger queue full (capacity %d)", m.queueCap), nil)
		slog.Warn("trigger rejected",
			"machine", m.id,
			"trigger", trigger.String(),
			"capacity", m.queueCap,
		)
		m.emit(ir.TraceReject, err.State, ir.StateInitial, trigger, "")
		return err
	}

	m.mu.Lock()
	state := m.state
	waker := m.waker
	m.mu.Unlock()

	m.emit(ir.TraceFire, state, ir.StateInitial, trigger, "")
	waker.RequestWake(m.id)
	return nil
}

func (m *Machine) lockedError(code RuntimeErrorCode, msg string, cause error) *RuntimeError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &RuntimeError{
		Code:    code,
		Message: msg,
		Machine: m.id,
		State:   m.state,
		Phase:   m.phase,
		Err:     cause,
	}
}

// Run advances the machine until it suspends and reports when it needs to
// run again. A halted machine returns its halting error on every call.
func (m *Machine) Run() (ir.Wake, error) {
	if !m.running.CompareAndSwap(false, true) {
		return ir.NoWake, m.lockedError(ErrCodeReentrantRun, "run called while running", nil)
	}
	defer m.running.Store(false)

	for {
		wake, suspend, err := m.step()
		if err != nil {
			return ir.NoWake, err
		}
		if suspend {
			return wake, nil
		}
	}
}

// step executes one phase. It returns suspend=true when Run should return.
func (m *Machine) step() (ir.Wake, bool, error) {
	switch phase := m.Phase(); phase {
	case ir.PhaseIdle:
		return ir.NoWake, true, nil

	case ir.PhaseStart:
		m.mu.Lock()
		m.pendingFrom = ir.StateInitial
		m.pendingTo = m.defaultState
		m.phase = ir.PhaseInto
		to := m.pendingTo
		m.mu.Unlock()
		m.emit(ir.TraceStart, ir.StateInitial, to, ir.TriggerNone, "")
		return ir.NoWake, false, nil

	case ir.PhaseInto:
		m.into()
		return ir.NoWake, false, nil

	case ir.PhaseEnter:
		if err := m.enter(); err != nil {
			return ir.NoWake, true, err
		}
		return ir.NoWake, false, nil

	case ir.PhaseDo:
		if err := m.do(); err != nil {
			return ir.NoWake, true, err
		}
		m.setPhase(ir.PhaseTransit)
		return m.nextWake(), true, nil

	case ir.PhaseTransit:
		m.transit()
		return ir.NoWake, false, nil

	case ir.PhaseExit:
		if err := m.exit(); err != nil {
			return ir.NoWake, true, err
		}
		return ir.NoWake, false, nil

	case ir.PhasePanic:
		return ir.NoWake, true, m.Err()

	default:
		err := m.lockedError(ErrCodePanic, fmt.Sprintf("invalid phase %s", phase), nil)
		return ir.NoWake, true, m.fail(err)
	}
}

func (m *Machine) setPhase(p ir.Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

// into makes the pending target current and recomputes the active
// subsets. Reaching a sentinel state terminates the machine.
func (m *Machine) into() {
	m.mu.Lock()
	from, to := m.pendingFrom, m.pendingTo
	m.state = to
	m.active = m.reg.activate(to)
	if to.IsTerminal() {
		m.phase = ir.PhaseIdle
	} else {
		m.phase = ir.PhaseEnter
	}
	m.mu.Unlock()

	if to.IsTerminal() {
		slog.Debug("machine terminated", "machine", m.id, "from", from.String())
		m.emit(ir.TraceTerminate, to, from, ir.TriggerNone, "")
		return
	}
	m.emit(ir.TraceInto, to, from, ir.TriggerNone, "")
}

func (m *Machine) enter() error {
	from, _ := m.Pending()
	state := m.State()
	for _, a := range m.active.entries {
		m.emit(ir.TraceEnter, state, from, ir.TriggerNone, "")
		if err := a.OnEntry(from); err != nil {
			return m.fail(m.actionError("entry", err))
		}
	}
	m.setPhase(ir.PhaseDo)
	return nil
}

func (m *Machine) do() error {
	state := m.State()
	now := m.clock.Now()
	for _, d := range m.active.dos {
		if !d.due(now) {
			continue
		}
		d.fired(now)
		m.emit(ir.TraceDo, state, ir.StateInitial, ir.TriggerNone, "")
		if err := d.action.OnDo(); err != nil {
			return m.fail(m.actionError("do", err))
		}
	}
	return nil
}

func (m *Machine) exit() error {
	_, to := m.Pending()
	state := m.State()
	for _, a := range m.active.exits {
		m.emit(ir.TraceExit, state, to, ir.TriggerNone, "")
		if err := a.OnExit(to); err != nil {
			return m.fail(m.actionError("exit", err))
		}
	}
	m.setPhase(ir.PhaseInto)
	return nil
}

// transit drains the trigger queue in arrival order. The first active
// transition matching a trigger is adopted; unmatched triggers are
// discarded. With the queue empty the completion transition, if any, is
// adopted. Without a match the machine goes back to Do.
func (m *Machine) transit() {
	state := m.State()
	for {
		trigger, ok := m.queue.TryDequeue()
		if !ok {
			break
		}
		if t, ok := m.active.match(trigger); ok {
			m.adopt(t)
			return
		}
		slog.Debug("trigger discarded",
			"machine", m.id,
			"state", state.String(),
			"trigger", trigger.String(),
		)
		m.emit(ir.TraceDiscard, state, ir.StateInitial, trigger, "")
	}
	if m.active.completion != nil {
		m.adopt(*m.active.completion)
		return
	}
	m.setPhase(ir.PhaseDo)
}

func (m *Machine) adopt(t Transition) {
	m.mu.Lock()
	m.pendingFrom = t.From
	m.pendingTo = t.To
	m.phase = ir.PhaseExit
	m.mu.Unlock()
	m.emit(ir.TraceTransit, t.From, t.To, t.Trigger, "")
}

// nextWake computes the directive returned when Do suspends.
func (m *Machine) nextWake() ir.Wake {
	if m.queue.Len() > 0 || m.active.completion != nil {
		return ir.ImmediateWake
	}
	if len(m.active.dos) == 0 {
		return ir.NoWake
	}
	now := m.clock.Now()
	earliest := m.active.dos[0].remaining(now)
	for _, d := range m.active.dos[1:] {
		earliest = min(earliest, d.remaining(now))
	}
	return ir.WakeIn(earliest)
}

func (m *Machine) actionError(kind string, cause error) *RuntimeError {
	return m.lockedError(ErrCodeActionFailed, kind+" action failed", cause)
}

// fail moves the machine to PhasePanic and records err as its halting
// error.
func (m *Machine) fail(err *RuntimeError) error {
	m.mu.Lock()
	m.phase = ir.PhasePanic
	m.halt = err
	state := m.state
	m.mu.Unlock()

	slog.Error("machine halted",
		"machine", m.id,
		"code", string(err.Code),
		"state", state.String(),
		"phase", err.Phase.String(),
		"error", err,
	)
	m.emit(ir.TracePanic, state, ir.StateInitial, ir.TriggerNone, err.Error())
	return err
}

func (m *Machine) emit(kind ir.TraceKind, state, other ir.StateID, trigger ir.TriggerID, detail string) {
	m.observer.Observe(ir.TraceEvent{
		Seq:     m.seq.Next(),
		Machine: m.id,
		Kind:    kind,
		State:   state,
		Other:   other,
		Trigger: trigger,
		Phase:   m.Phase(),
		AtMS:    m.clock.Now().Sub(m.born).Milliseconds(),
		Detail:  detail,
	})
}
