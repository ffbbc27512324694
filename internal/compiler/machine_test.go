package compiler

import (
	"errors"
	"testing"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mstate/internal/ir"
)

const blinkerCUE = `
machine: Blinker: {
	initial: "Off"

	state: Off: {
		entry: [{log: "lights off"}]
		transitions: [{to: "On", on: "toggle"}]
	}

	state: On: {
		entry: [{count: "switched_on"}]
		do: [{every: "500ms", count: "blinks"}, {every: 250, log: "tick"}]
		exit: [{log: "leaving"}]
		transitions: [
			{to: "Off", on: "toggle"},
			{to: "*", on: "stop"},
		]
	}
}
`

func compileBlinker(t *testing.T) *ir.MachineSpec {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(blinkerCUE)
	require.NoError(t, v.Err())

	spec, err := CompileMachine(v.LookupPath(cue.ParsePath("machine.Blinker")))
	require.NoError(t, err)
	return spec
}

func TestCompileMachineBasic(t *testing.T) {
	spec := compileBlinker(t)

	assert.Equal(t, "Blinker", spec.Name)
	assert.Equal(t, "Off", spec.Initial)
	require.Len(t, spec.States, 2)
	assert.Equal(t, "Off", spec.States[0].Name, "source order preserved")
	assert.Equal(t, "On", spec.States[1].Name)

	on := spec.States[1]
	assert.Equal(t, []ir.ActionSpec{{Count: "switched_on"}}, on.Entry)
	assert.Equal(t, []ir.DoSpec{
		{Every: 500 * time.Millisecond, Action: ir.ActionSpec{Count: "blinks"}},
		{Every: 250 * time.Millisecond, Action: ir.ActionSpec{Log: "tick"}},
	}, on.Do)
	assert.Equal(t, []ir.ActionSpec{{Log: "leaving"}}, on.Exit)

	assert.Equal(t, []ir.TransitionSpec{
		{From: "Off", To: "On", Trigger: "toggle"},
		{From: "On", To: "Off", Trigger: "toggle"},
		{From: "On", To: "*", Trigger: "stop"},
	}, spec.Transitions)

	assert.Empty(t, Validate(spec))
}

func TestCompileMachineCompletionTransition(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		machine: Once: {
			initial: "Boot"
			state: Boot: transitions: [{to: "*"}]
		}
	`)
	require.NoError(t, v.Err())

	spec, err := CompileMachine(v.LookupPath(cue.ParsePath("machine.Once")))
	require.NoError(t, err)
	require.Len(t, spec.Transitions, 1)
	assert.Equal(t, ir.CompletionTriggerName, spec.Transitions[0].Trigger)
}

func TestCompileMachineMissingInitial(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		machine: Bad: {
			state: A: {}
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileMachine(v.LookupPath(cue.ParsePath("machine.Bad")))
	require.Error(t, err)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "initial", ce.Field)
}

func TestCompileMachineMissingStates(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		machine: Bad: initial: "A"
	`)
	require.NoError(t, v.Err())

	_, err := CompileMachine(v.LookupPath(cue.ParsePath("machine.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one state")
}

func TestCompileMachineDoWithoutInterval(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		machine: Bad: {
			initial: "A"
			state: A: do: [{log: "x"}]
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileMachine(v.LookupPath(cue.ParsePath("machine.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state.A.do[0].every")
}

func TestCompileMachineRejectsFloatInterval(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		machine: Bad: {
			initial: "A"
			state: A: do: [{every: 1.5, log: "x"}]
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileMachine(v.LookupPath(cue.ParsePath("machine.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float")
}

func TestCompileMachineBadDurationString(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		machine: Bad: {
			initial: "A"
			state: A: do: [{every: "soon", log: "x"}]
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileMachine(v.LookupPath(cue.ParsePath("machine.Bad")))
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Pos.IsValid(), "position points at the bad value")
}

func TestCompileMachinesInSourceOrder(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		machine: Second: { initial: "A", state: A: {} }
		machine: First: { initial: "B", state: B: {} }
	`)
	require.NoError(t, v.Err())

	specs, err := CompileMachines(v)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "Second", specs[0].Name)
	assert.Equal(t, "First", specs[1].Name)
}

func TestCompileMachinesNone(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`other: 1`)
	_, err := CompileMachines(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no machine definitions")
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "initial", Message: "initial state is required"}
	assert.Equal(t, "initial: initial state is required", err.Error())
}

func TestCompiledSpecHashIsStable(t *testing.T) {
	a, err := ir.SpecHash(*compileBlinker(t))
	require.NoError(t, err)
	b, err := ir.SpecHash(*compileBlinker(t))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCompileMachineIntervalOutOfRange(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		machine: Bad: {
			initial: "A"
			state: A: do: [{every: 18446744073710, log: "x"}]
		}
	`)
	require.NoError(t, v.Err())

	_, err := CompileMachine(v.LookupPath(cue.ParsePath("machine.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state.A.do[0].every")
	assert.Contains(t, err.Error(), "out of range")
}

func TestMillisBounds(t *testing.T) {
	d, err := millis(maxMillis)
	require.NoError(t, err)
	assert.Positive(t, d)

	_, err = millis(maxMillis + 1)
	assert.Error(t, err)
	_, err = millis(-maxMillis - 1)
	assert.Error(t, err)
}
