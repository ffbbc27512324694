// Package binding declares a compiled machine definition on an engine
// machine. It owns the name table and implements the built-in actions
// (log, fire, count).
package binding

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/mstate/internal/engine"
	"github.com/roach88/mstate/internal/ir"
	"github.com/roach88/mstate/internal/names"
)

// Program is a machine definition bound to an engine machine.
type Program struct {
	machine *engine.Machine
	spec    ir.MachineSpec
	names   *names.Table
	initial ir.StateID

	mu       sync.Mutex
	counters map[string]int
}

// Option configures Declare.
type Option func(*Program)

// WithNames uses tbl instead of a fresh table, e.g. to share trigger ids
// between machines.
func WithNames(tbl *names.Table) Option {
	return func(p *Program) {
		p.names = tbl
	}
}

// Declare registers every state action and transition of spec on m, in
// definition order. m must not have been started. spec should have passed
// compiler.Validate.
//
// State ids are assigned in state order, then trigger ids in transition
// order followed by triggers only named by fire actions.
func Declare(m *engine.Machine, spec ir.MachineSpec, opts ...Option) (*Program, error) {
	p := &Program{
		machine:  m,
		spec:     spec,
		counters: make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.names == nil {
		p.names = names.New()
	}

	seen := make(map[ir.StateID]bool, len(spec.States))
	for _, s := range spec.States {
		id := p.names.State(s.Name)
		if seen[id] {
			return nil, fmt.Errorf("declare %s: state %q duplicates an earlier state", spec.Name, s.Name)
		}
		seen[id] = true
	}
	for _, tr := range spec.Transitions {
		p.names.Trigger(tr.Trigger)
	}

	initial, ok := p.names.LookupState(spec.Initial)
	if !ok || initial.IsTerminal() {
		return nil, fmt.Errorf("declare %s: initial state %q is not declared", spec.Name, spec.Initial)
	}
	p.initial = initial

	for _, s := range spec.States {
		state := p.names.State(s.Name)
		for i, a := range s.Entry {
			act, err := p.action(state, a)
			if err != nil {
				return nil, fmt.Errorf("declare %s: state %s entry[%d]: %w", spec.Name, s.Name, i, err)
			}
			if err := m.DeclareEntry(state, act); err != nil {
				return nil, fmt.Errorf("declare %s: %w", spec.Name, err)
			}
		}
		for i, d := range s.Do {
			act, err := p.action(state, d.Action)
			if err != nil {
				return nil, fmt.Errorf("declare %s: state %s do[%d]: %w", spec.Name, s.Name, i, err)
			}
			if err := m.DeclareDo(state, d.Every, act); err != nil {
				return nil, fmt.Errorf("declare %s: %w", spec.Name, err)
			}
		}
		for i, a := range s.Exit {
			act, err := p.action(state, a)
			if err != nil {
				return nil, fmt.Errorf("declare %s: state %s exit[%d]: %w", spec.Name, s.Name, i, err)
			}
			if err := m.DeclareExit(state, act); err != nil {
				return nil, fmt.Errorf("declare %s: %w", spec.Name, err)
			}
		}
	}

	for _, tr := range spec.Transitions {
		from, ok := p.names.LookupState(tr.From)
		if !ok {
			return nil, fmt.Errorf("declare %s: transition from undeclared state %q", spec.Name, tr.From)
		}
		to, ok := p.names.LookupState(tr.To)
		if !ok {
			return nil, fmt.Errorf("declare %s: transition to undeclared state %q", spec.Name, tr.To)
		}
		if err := m.DeclareTransition(from, to, p.names.Trigger(tr.Trigger)); err != nil {
			return nil, fmt.Errorf("declare %s: %w", spec.Name, err)
		}
	}

	slog.Debug("machine declared",
		"machine", spec.Name,
		"states", len(spec.States),
		"transitions", len(spec.Transitions),
	)
	return p, nil
}

func (p *Program) action(state ir.StateID, a ir.ActionSpec) (*builtin, error) {
	b := &builtin{p: p, state: state, kind: a.Kind()}
	switch b.kind {
	case "log":
		b.arg = a.Log
	case "fire":
		b.arg = a.Fire
		b.trigger = p.names.Trigger(a.Fire)
	case "count":
		b.arg = a.Count
	default:
		return nil, fmt.Errorf("action must set exactly one of log, fire, count")
	}
	return b, nil
}

// Machine returns the underlying engine machine.
func (p *Program) Machine() *engine.Machine {
	return p.machine
}

// Spec returns the bound definition.
func (p *Program) Spec() ir.MachineSpec {
	return p.spec
}

// Names returns the name table.
func (p *Program) Names() *names.Table {
	return p.names
}

// Initial returns the id of the definition's initial state.
func (p *Program) Initial() ir.StateID {
	return p.initial
}

// Start starts the machine in the definition's initial state.
func (p *Program) Start() bool {
	return p.machine.Start(p.initial)
}

// StartIn starts the machine in the named state.
func (p *Program) StartIn(state string) (bool, error) {
	id, ok := p.names.LookupState(state)
	if !ok || id.IsTerminal() {
		return false, fmt.Errorf("unknown state %q", state)
	}
	return p.machine.Start(id), nil
}

// Fire queues the named trigger. Names not used by any transition are
// assigned an id and will be discarded when dequeued.
func (p *Program) Fire(trigger string) error {
	if trigger == ir.CompletionTriggerName {
		return fmt.Errorf("fire: empty trigger name")
	}
	return p.machine.Fire(p.names.Trigger(trigger))
}

// StateName returns the name of the current state, "*" before the first
// entry and after termination.
func (p *Program) StateName() string {
	return p.names.StateName(p.machine.State())
}

// Counter returns the value of a count action's counter.
func (p *Program) Counter(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters[name]
}

// Counters returns a copy of all counters.
func (p *Program) Counters() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.counters))
	for k, v := range p.counters {
		out[k] = v
	}
	return out
}

// CounterNames returns counter names in sorted order.
func (p *Program) CounterNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.counters))
	for k := range p.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *Program) inc(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters[name]++
}
