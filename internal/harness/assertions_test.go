package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	r := NewResult()
	r.Trace = []TraceEvent{
		{Seq: 1, Kind: "start", Other: "Off", Phase: "Into"},
		{Seq: 2, Kind: "into", State: "Off", Phase: "Enter"},
		{Seq: 3, Kind: "enter", State: "Off", Phase: "Enter"},
		{Seq: 4, Kind: "fire", State: "Off", Trigger: "toggle", Phase: "Transit"},
		{Seq: 5, Kind: "transit", State: "Off", Other: "On", Trigger: "toggle", Phase: "Exit"},
		{Seq: 6, Kind: "exit", State: "Off", Other: "On", Phase: "Exit"},
		{Seq: 7, Kind: "into", State: "On", Other: "Off", Phase: "Enter"},
		{Seq: 8, Kind: "enter", State: "On", Other: "Off", Phase: "Enter"},
		{Seq: 9, Kind: "do", State: "On", Phase: "Do"},
		{Seq: 10, Kind: "do", State: "On", Phase: "Do", AtMS: 501},
	}
	r.FinalState = "On"
	r.FinalPhase = "Transit"
	r.Counters = map[string]int{"blinks": 2}
	return r
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertFinalState, State: "On"},
		{Type: AssertFinalPhase, Phase: "Transit"},
		{Type: AssertTraceContains, Event: "transit", State: "Off", Trigger: "toggle"},
		{Type: AssertTraceOrder, Events: []string{"enter:Off", "exit:Off", "enter:On", "do", "do"}},
		{Type: AssertTraceCount, Event: "do", State: "On", Count: 2},
		{Type: AssertTraceCount, Event: "discard", Count: 0},
		{Type: AssertCounter, Name: "blinks", Count: 2},
		{Type: AssertCounter, Name: "never", Count: 0},
	})
	assert.Empty(t, errs)
}

func TestAssertTraceContains_FiltersByTrigger(t *testing.T) {
	err := assertTraceContains(sampleResult().Trace, Assertion{Event: "transit", Trigger: "stop"})
	require.Error(t, err)

	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Equal(t, "transit on stop", ae.Expected)
}

func TestAssertTraceOrder_WrongOrder(t *testing.T) {
	err := assertTraceOrder(sampleResult().Trace, Assertion{Events: []string{"enter:On", "exit:Off"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit:Off not found after [enter:On]")
}

func TestAssertTraceOrder_RepeatedTokenNeedsRepeatedEvents(t *testing.T) {
	err := assertTraceOrder(sampleResult().Trace, Assertion{Events: []string{"do:On", "do:On", "do:On"}})
	require.Error(t, err)
}

func TestAssertTraceOrder_Missing(t *testing.T) {
	err := assertTraceOrder(sampleResult().Trace, Assertion{Events: []string{"terminate"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: terminate not found")
}

func TestAssertTraceCount_Mismatch(t *testing.T) {
	err := assertTraceCount(sampleResult().Trace, Assertion{Event: "do", State: "On", Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 3 occurrences of do in On")
	assert.Contains(t, err.Error(), "Actual: 2 occurrences")
}

func TestAssertFinalPhase_ReportsHalt(t *testing.T) {
	r := sampleResult()
	r.FinalPhase = "Panic"
	r.Halt = "ACTION_FAILED: entry action failed"

	err := assertFinalPhase(r, Assertion{Phase: "Do"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phase Panic (halted: ACTION_FAILED: entry action failed)")
}

func TestAssertionError_RendersTrace(t *testing.T) {
	err := assertCounter(sampleResult(), Assertion{Name: "blinks", Count: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: counter blinks = 5")
	assert.NotContains(t, err.Error(), "Full trace", "counter failures carry no trace")

	err = assertFinalState(sampleResult(), Assertion{State: "Off"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[5] transit:Off other=On trigger=toggle phase=Exit at=0ms")
	assert.Contains(t, err.Error(), "[10] do:On phase=Do at=501ms")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{{Type: "eventually"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown assertion type "eventually"`)
}

func TestTraceEventToken(t *testing.T) {
	assert.Equal(t, "start", TraceEvent{Kind: "start"}.Token())
	assert.Equal(t, "enter:On", TraceEvent{Kind: "enter", State: "On"}.Token())
}
