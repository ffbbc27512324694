package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/mstate/internal/ir"
)

func TestFixedRunIDs_Sequence(t *testing.T) {
	gen := NewFixedRunIDs("run-1", "run-2")
	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
	assert.PanicsWithValue(t, "FixedRunIDs: all ids exhausted", func() { gen.Generate() })
}

func TestCallLog_RecordsInOrder(t *testing.T) {
	log := NewCallLog()
	a := log.Action("A")

	assert.NoError(t, a.OnEntry(ir.StateInitial))
	assert.NoError(t, a.OnDo())
	assert.NoError(t, a.OnExit(ir.StateFinal))

	assert.Equal(t, []string{"entry:A(-2)", "do:A", "exit:A(-1)"}, log.Calls())
	assert.Equal(t, 1, log.Count("do:A"))

	log.Reset()
	assert.Empty(t, log.Calls())
}

func TestRecordingAction_FailingAndHook(t *testing.T) {
	log := NewCallLog()
	boom := errors.New("boom")
	hooked := 0
	a := log.Action("B").Failing(boom).Then(func() { hooked++ })

	assert.ErrorIs(t, a.OnDo(), boom)
	assert.Equal(t, 1, hooked)
	assert.Equal(t, []string{"do:B"}, log.Calls(), "failing calls are still recorded")
}
