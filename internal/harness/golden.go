package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/mstate/internal/ir"
)

// TraceSnapshot captures the complete observable outcome of a scenario.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	RunID        string         `json:"run_id"`
	Trace        []TraceEvent   `json:"trace"`
	FinalState   string         `json:"final_state"`
	FinalPhase   string         `json:"final_phase"`
	Counters     map[string]int `json:"counters"`
}

// NewSnapshot builds the snapshot of a finished run.
func NewSnapshot(name string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: name,
		RunID:        result.RunID,
		Trace:        result.Trace,
		FinalState:   result.FinalState,
		FinalPhase:   result.FinalPhase,
		Counters:     result.Counters,
	}
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"seq":   event.Seq,
			"kind":  event.Kind,
			"phase": event.Phase,
			"at_ms": event.AtMS,
		}
		if event.State != "" {
			eventMap["state"] = event.State
		}
		if event.Other != "" {
			eventMap["other"] = event.Other
		}
		if event.Trigger != "" {
			eventMap["trigger"] = event.Trigger
		}
		if event.Detail != "" {
			eventMap["detail"] = event.Detail
		}
		traceList[i] = eventMap
	}

	counters := make(map[string]any, len(s.Counters))
	for k, v := range s.Counters {
		counters[k] = v
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"run_id":        s.RunID,
		"trace":         traceList,
		"final_state":   s.FinalState,
		"final_phase":   s.FinalPhase,
		"counters":      counters,
	}
}

// Marshal renders the snapshot as canonical JSON.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := NewSnapshot(scenarioName, result)
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
