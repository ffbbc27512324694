package compiler

import (
	"fmt"
	"math"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/mstate/internal/ir"
)

// CompileMachine parses a CUE value into a MachineSpec.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The value should be the machine struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`machine: Blinker: { ... }`)
//	spec, err := CompileMachine(v.LookupPath(cue.ParsePath("machine.Blinker")))
//
// States, their actions, and transitions keep source order. The result is
// not validated; call Validate.
func CompileMachine(v cue.Value) (*ir.MachineSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.MachineSpec{}

	// Machine name comes from the struct label
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	initialVal := v.LookupPath(cue.ParsePath("initial"))
	if !initialVal.Exists() {
		return nil, &CompileError{
			Field:   "initial",
			Message: "initial state is required",
			Pos:     v.Pos(),
		}
	}
	initial, err := initialVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Initial = initial

	stateVal := v.LookupPath(cue.ParsePath("state"))
	if !stateVal.Exists() {
		return nil, &CompileError{
			Field:   "state",
			Message: "at least one state is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := stateVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		state, transitions, err := parseState(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.States = append(spec.States, state)
		spec.Transitions = append(spec.Transitions, transitions...)
	}

	return spec, nil
}

// CompileMachines compiles every machine under the top-level "machine"
// struct, in source order.
func CompileMachines(root cue.Value) ([]*ir.MachineSpec, error) {
	machinesVal := root.LookupPath(cue.ParsePath("machine"))
	if !machinesVal.Exists() {
		return nil, &CompileError{
			Field:   "machine",
			Message: "no machine definitions found",
			Pos:     root.Pos(),
		}
	}
	iter, err := machinesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var specs []*ir.MachineSpec
	for iter.Next() {
		spec, err := CompileMachine(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseState(name string, v cue.Value) (ir.StateSpec, []ir.TransitionSpec, error) {
	state := ir.StateSpec{Name: name}
	field := "state." + name

	var err error
	if state.Entry, err = parseActionList(v, "entry", field); err != nil {
		return state, nil, err
	}
	if state.Exit, err = parseActionList(v, "exit", field); err != nil {
		return state, nil, err
	}

	doVal := v.LookupPath(cue.ParsePath("do"))
	if doVal.Exists() {
		list, err := doVal.List()
		if err != nil {
			return state, nil, formatCUEError(err)
		}
		for i := 0; list.Next(); i++ {
			item := list.Value()
			itemField := fmt.Sprintf("%s.do[%d]", field, i)
			everyVal := item.LookupPath(cue.ParsePath("every"))
			if !everyVal.Exists() {
				return state, nil, &CompileError{
					Field:   itemField + ".every",
					Message: "do action requires an interval",
					Pos:     item.Pos(),
				}
			}
			every, err := cueDuration(everyVal)
			if err != nil {
				return state, nil, &CompileError{Field: itemField + ".every", Message: err.Error(), Pos: everyVal.Pos()}
			}
			action, err := parseAction(item, itemField)
			if err != nil {
				return state, nil, err
			}
			state.Do = append(state.Do, ir.DoSpec{Every: every, Action: action})
		}
	}

	var transitions []ir.TransitionSpec
	trVal := v.LookupPath(cue.ParsePath("transitions"))
	if trVal.Exists() {
		list, err := trVal.List()
		if err != nil {
			return state, nil, formatCUEError(err)
		}
		for i := 0; list.Next(); i++ {
			item := list.Value()
			to, err := item.LookupPath(cue.ParsePath("to")).String()
			if err != nil {
				return state, nil, &CompileError{
					Field:   fmt.Sprintf("%s.transitions[%d].to", field, i),
					Message: "transition target is required",
					Pos:     item.Pos(),
				}
			}
			tr := ir.TransitionSpec{From: name, To: to}
			onVal := item.LookupPath(cue.ParsePath("on"))
			if onVal.Exists() {
				if tr.Trigger, err = onVal.String(); err != nil {
					return state, nil, formatCUEError(err)
				}
			}
			transitions = append(transitions, tr)
		}
	}

	return state, transitions, nil
}

func parseActionList(v cue.Value, key, field string) ([]ir.ActionSpec, error) {
	listVal := v.LookupPath(cue.ParsePath(key))
	if !listVal.Exists() {
		return nil, nil
	}
	list, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var actions []ir.ActionSpec
	for i := 0; list.Next(); i++ {
		action, err := parseAction(list.Value(), fmt.Sprintf("%s.%s[%d]", field, key, i))
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// parseAction reads the built-in action fields of v. Exactly-one checking
// is left to Validate so all problems are reported together.
func parseAction(v cue.Value, field string) (ir.ActionSpec, error) {
	var a ir.ActionSpec
	fields := []struct {
		key string
		dst *string
	}{{"log", &a.Log}, {"fire", &a.Fire}, {"count", &a.Count}}
	for _, f := range fields {
		key, dst := f.key, f.dst
		val := v.LookupPath(cue.ParsePath(key))
		if !val.Exists() {
			continue
		}
		s, err := val.String()
		if err != nil {
			return a, &CompileError{
				Field:   field + "." + key,
				Message: "must be a string",
				Pos:     val.Pos(),
			}
		}
		*dst = s
	}
	return a, nil
}

// cueDuration accepts a Go duration string ("500ms") or an integer number
// of milliseconds.
func cueDuration(v cue.Value) (time.Duration, error) {
	switch v.IncompleteKind() {
	case cue.IntKind:
		ms, err := v.Int64()
		if err != nil {
			return 0, err
		}
		return millis(ms)
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return 0, err
		}
		return time.ParseDuration(s)
	case cue.FloatKind, cue.NumberKind:
		return 0, fmt.Errorf("float intervals are forbidden - use integer milliseconds or a duration string")
	default:
		return 0, fmt.Errorf("unsupported interval kind: %v", v.IncompleteKind())
	}
}

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// millis converts an integer millisecond interval to a duration.
func millis(ms int64) (time.Duration, error) {
	if ms > maxMillis || ms < -maxMillis {
		return 0, fmt.Errorf("interval of %d ms is out of range (max %d)", ms, maxMillis)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
