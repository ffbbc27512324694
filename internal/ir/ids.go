package ir

import (
	"fmt"
	"time"
)

// StateID identifies a declared state. Ids are opaque and compared by
// equality only; negative values are reserved sentinels.
type StateID int

// TriggerID identifies a trigger. TriggerNone is the completion trigger.
type TriggerID int

// MachineID identifies a machine instance towards the scheduling layer.
// Several machines may share one event loop as long as their ids differ.
type MachineID int

// Reserved identifiers.
const (
	// StateInitial is the pseudo-state a machine is in before it has
	// entered any declared state.
	StateInitial StateID = -2

	// StateFinal is the pseudo-state that terminates a machine. A
	// transition targeting StateFinal returns the machine to PhaseIdle.
	StateFinal StateID = -1

	// TriggerNone keys completion transitions. It is never queued.
	TriggerNone TriggerID = 0
)

// IsTerminal reports whether the state is one of the reserved sentinels.
func (s StateID) IsTerminal() bool {
	return s < 0
}

func (s StateID) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateFinal:
		return "FINAL"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (t TriggerID) String() string {
	if t == TriggerNone {
		return "NONE"
	}
	return fmt.Sprintf("trigger(%d)", int(t))
}

// Phase is the position of the phase engine in its control loop.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStart
	PhaseInto
	PhaseEnter
	PhaseDo
	PhaseExit
	PhaseTransit
	PhasePanic
)

var phaseNames = [...]string{
	PhaseIdle:    "Idle",
	PhaseStart:   "Start",
	PhaseInto:    "Into",
	PhaseEnter:   "Enter",
	PhaseDo:      "Do",
	PhaseExit:    "Exit",
	PhaseTransit: "Transit",
	PhasePanic:   "Panic",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// ParsePhase resolves a phase by its String() name.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// WakeKind tells the scheduling layer when the phase engine needs to run
// again.
type WakeKind int

const (
	// WakeNone: no wake is needed. The machine is idle, terminated, halted,
	// or waiting for an external trigger.
	WakeNone WakeKind = iota
	// WakeImmediate: run again as soon as possible.
	WakeImmediate
	// WakeAfter: run again once Wake.After has elapsed.
	WakeAfter
)

func (k WakeKind) String() string {
	switch k {
	case WakeNone:
		return "none"
	case WakeImmediate:
		return "immediate"
	case WakeAfter:
		return "after"
	}
	return fmt.Sprintf("WakeKind(%d)", int(k))
}

// Wake is the reschedule directive returned by a run-to-suspension.
type Wake struct {
	Kind  WakeKind
	After time.Duration
}

// Convenience constructors.
var (
	NoWake        = Wake{Kind: WakeNone}
	ImmediateWake = Wake{Kind: WakeImmediate}
)

// WakeIn returns a delayed wake directive.
func WakeIn(d time.Duration) Wake {
	if d <= 0 {
		return ImmediateWake
	}
	return Wake{Kind: WakeAfter, After: d}
}

func (w Wake) String() string {
	if w.Kind == WakeAfter {
		return fmt.Sprintf("after(%s)", w.After)
	}
	return w.Kind.String()
}
