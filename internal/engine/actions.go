package engine

import "github.com/roach88/mstate/internal/ir"

// EntryAction runs when its state is entered. prev is the state the
// machine came from, ir.StateInitial on the first entry.
type EntryAction interface {
	OnEntry(prev ir.StateID) error
}

// DoAction runs periodically while its state is current.
type DoAction interface {
	OnDo() error
}

// ExitAction runs when its state is left. next is the transition target,
// possibly ir.StateFinal.
type ExitAction interface {
	OnExit(next ir.StateID) error
}

// EntryFunc adapts a function to EntryAction.
type EntryFunc func(prev ir.StateID) error

func (f EntryFunc) OnEntry(prev ir.StateID) error { return f(prev) }

// DoFunc adapts a function to DoAction.
type DoFunc func() error

func (f DoFunc) OnDo() error { return f() }

// ExitFunc adapts a function to ExitAction.
type ExitFunc func(next ir.StateID) error

func (f ExitFunc) OnExit(next ir.StateID) error { return f(next) }

// Transition is a declared edge. Trigger ir.TriggerNone marks a completion
// transition, adopted when no queued trigger matches.
type Transition struct {
	From    ir.StateID
	To      ir.StateID
	Trigger ir.TriggerID
}

// IsCompletion reports whether t fires without a trigger.
func (t Transition) IsCompletion() bool {
	return t.Trigger == ir.TriggerNone
}
