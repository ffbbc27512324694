package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadAndRun(t *testing.T, path string) *Result {
	t.Helper()
	scenario, err := LoadScenario(path)
	require.NoError(t, err, "failed to load scenario from %s", path)
	result, err := Run(scenario)
	require.NoError(t, err)
	return result
}

// TestScenarioFiles runs every scenario under testdata/scenarios. Each
// one encodes a behavioural property of the phase engine.
func TestScenarioFiles(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(strings.TrimSuffix(path[len("testdata/scenarios/"):], ".yaml"), func(t *testing.T) {
			result := loadAndRun(t, path)
			assert.True(t, result.Pass, "scenario failed:\n%s", strings.Join(result.Errors, "\n"))
			assert.Empty(t, result.Halt)
		})
	}
}

func TestRun_GoldenOneShot(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/one_shot.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestRun_RecordsRenderedTrace(t *testing.T) {
	result := loadAndRun(t, "testdata/scenarios/one_shot.yaml")

	assert.Equal(t, "scenario-one_shot", result.RunID)
	require.Len(t, result.Trace, 5)

	kinds := make([]string, len(result.Trace))
	for i, ev := range result.Trace {
		kinds[i] = ev.Kind
		assert.Equal(t, int64(i+1), ev.Seq, "seq is dense and ordered")
	}
	assert.Equal(t, []string{"start", "into", "enter", "transit", "terminate"}, kinds)

	assert.Equal(t, "", result.Trace[0].State, "INITIAL renders empty")
	assert.Equal(t, "Ready", result.Trace[0].Other)
	assert.Equal(t, "*", result.Trace[3].Other)
	assert.Equal(t, map[string]int{"entered": 1}, result.Counters)
}

func TestRun_RestartAfterTermination(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: restart
description: "a terminated machine may be started again"
poll: "0"
machine:
  name: OneShot
  initial: Ready
  states:
    - name: Ready
      entry: [{count: entered}]
      transitions: [{to: "*"}]
steps:
  - start: ""
  - start: ""
    expect: false
  - run: {}
  - start: ""
  - run: {}
assertions:
  - type: counter
    name: entered
    count: 2
  - type: trace_count
    event: terminate
    count: 2
  - type: final_phase
    phase: Idle
`), "")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRun_StepExpectationFailure(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expect
description: "a start that succeeds while expected to fail"
machine: {name: M, initial: A, states: [{name: A}]}
steps:
  - start: ""
    expect: false
  - run: {}
assertions:
  - type: final_state
    state: A
`), "")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "returned true, expected false")
}

func TestRun_FailedAssertionIncludesTrace(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/one_shot.yaml")
	require.NoError(t, err)
	scenario.Assertions = []Assertion{{Type: AssertFinalState, State: "Ready"}}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: final_state")
	assert.Contains(t, result.Errors[0], "Expected: state Ready")
	assert.Contains(t, result.Errors[0], "Actual: state *")
	assert.Contains(t, result.Errors[0], "[5] terminate:*")
}

func TestRun_UnknownStartState(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad_start
description: "start in a state the machine does not declare"
machine: {name: M, initial: A, states: [{name: A}]}
steps:
  - start: Z
assertions:
  - type: final_state
    state: A
`), "")
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown state "Z"`)
}

func TestRun_Deterministic(t *testing.T) {
	first := loadAndRun(t, "testdata/scenarios/blink_three_times.yaml")
	second := loadAndRun(t, "testdata/scenarios/blink_three_times.yaml")

	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_DoTimingOnVirtualClock(t *testing.T) {
	result := loadAndRun(t, "testdata/scenarios/blink_three_times.yaml")

	var at []int64
	for _, ev := range result.Trace {
		if ev.Kind == "do" {
			at = append(at, ev.AtMS)
		}
	}
	// Entry forces the first tick; later ticks fire once the interval has
	// strictly elapsed.
	assert.Equal(t, []int64{0, 501, 1002}, at)
}
