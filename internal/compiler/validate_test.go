package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/mstate/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateValid(t *testing.T) {
	assert.Empty(t, Validate(compileBlinker(t)))
}

func TestValidateEmptyMachine(t *testing.T) {
	errs := Validate(&ir.MachineSpec{})
	assert.ElementsMatch(t, []string{ErrMachineNameEmpty, ErrMachineNoStates, ErrInvalidInitial}, codes(errs))
}

func TestValidateCollectsAllErrors(t *testing.T) {
	spec := &ir.MachineSpec{
		Name:    "Bad",
		Initial: "Missing",
		States: []ir.StateSpec{
			{Name: "A", Entry: []ir.ActionSpec{{}}},
			{Name: "A"},
			{Name: "*"},
			{Name: "B", Do: []ir.DoSpec{{Every: 0, Action: ir.ActionSpec{Log: "x"}}}},
			{Name: "C", Exit: []ir.ActionSpec{{Log: "x", Fire: "y"}}},
			{Name: "D", Entry: []ir.ActionSpec{{Count: "9lives"}}},
		},
		Transitions: []ir.TransitionSpec{
			{From: "A", To: "Nowhere", Trigger: "go"},
			{From: "Ghost", To: "A", Trigger: "go"},
			{From: "A", To: "", Trigger: "go"},
			{From: "A", To: "*", Trigger: "stop"},
		},
	}

	assert.Equal(t, []string{
		ErrInvalidAction,      // A entry with no kind
		ErrDuplicateName,      // second A
		ErrReservedName,       // "*"
		ErrInvalidInterval,    // B do every 0
		ErrInvalidAction,      // C exit with two kinds
		ErrInvalidCounterName, // D count 9lives
		ErrInvalidInitial,
		ErrUndefinedState,      // to Nowhere
		ErrUndefinedState,      // from Ghost
		ErrInvalidTransitionTo, // to ""
	}, codes(Validate(spec)))
}

func TestValidateFinalIsNotInitial(t *testing.T) {
	spec := &ir.MachineSpec{
		Name:    "M",
		Initial: "*",
		States:  []ir.StateSpec{{Name: "A"}},
	}
	assert.Equal(t, []string{ErrInvalidInitial}, codes(Validate(spec)))
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "initial", Message: "bad", Code: ErrInvalidInitial}
	assert.Equal(t, "[E103] initial: bad", e.Error())

	e.Line = 4
	assert.Equal(t, "[E103] line 4: initial: bad", e.Error())
}

func TestValidateDuplicateAfterNormalisation(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"
	spec := &ir.MachineSpec{
		Name:    "M",
		Initial: composed,
		States: []ir.StateSpec{
			{Name: composed, Entry: []ir.ActionSpec{{Count: "a"}}},
			{Name: decomposed, Entry: []ir.ActionSpec{{Count: "b"}}},
		},
	}
	errs := Validate(spec)
	assert.Equal(t, []string{ErrDuplicateName}, codes(errs))
	assert.Equal(t, "states[1].name", errs[0].Field)
}

func TestValidateReferencesMatchAcrossNormalForms(t *testing.T) {
	spec := &ir.MachineSpec{
		Name:    "M",
		Initial: "cafe\u0301",
		States:  []ir.StateSpec{{Name: "caf\u00e9"}, {Name: "Bar"}},
		Transitions: []ir.TransitionSpec{
			{From: "Bar", To: "cafe\u0301", Trigger: "go"},
		},
	}
	assert.Empty(t, Validate(spec))
}
