package engine

import (
	"github.com/roach88/mstate/internal/ir"
)

type entryDecl struct {
	state  ir.StateID
	action EntryAction
}

type exitDecl struct {
	state  ir.StateID
	action ExitAction
}

// registry holds every declaration in declaration order.
type registry struct {
	entries     []entryDecl
	dos         []*doTimer
	exits       []exitDecl
	transitions []Transition
}

// activeSet is the subset of the registry relevant to the current state.
type activeSet struct {
	entries     []EntryAction
	dos         []*doTimer
	exits       []ExitAction
	transitions []Transition

	// completion is the first completion transition out of the state.
	completion *Transition
}

// activate computes the active subsets for state, preserving declaration
// order, and arms every DO timer of the state so it fires on the next Do.
// Sentinel states have no declarations and yield an empty set.
func (r *registry) activate(state ir.StateID) activeSet {
	var a activeSet
	if state.IsTerminal() {
		return a
	}
	for _, e := range r.entries {
		if e.state == state {
			a.entries = append(a.entries, e.action)
		}
	}
	for _, d := range r.dos {
		if d.state == state {
			d.arm()
			a.dos = append(a.dos, d)
		}
	}
	for _, x := range r.exits {
		if x.state == state {
			a.exits = append(a.exits, x.action)
		}
	}
	for i, t := range r.transitions {
		if t.From != state {
			continue
		}
		a.transitions = append(a.transitions, t)
		if t.IsCompletion() && a.completion == nil {
			a.completion = &r.transitions[i]
		}
	}
	return a
}

// match returns the first active transition keyed by trigger.
func (a *activeSet) match(trigger ir.TriggerID) (Transition, bool) {
	for _, t := range a.transitions {
		if t.Trigger == trigger {
			return t, true
		}
	}
	return Transition{}, false
}
