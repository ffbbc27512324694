package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/mstate/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func openPath(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// pragmaValue reads a pragma as text.
func pragmaValue(t *testing.T, s *Store, name string) string {
	t.Helper()
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		t.Fatalf("PRAGMA %s: %v", name, err)
	}
	return value
}

// blinkerSpec is a two-state definition with one DO action.
func blinkerSpec() ir.MachineSpec {
	return ir.MachineSpec{
		Name:    "Blinker",
		Initial: "Off",
		States: []ir.StateSpec{
			{
				Name:  "Off",
				Entry: []ir.ActionSpec{{Log: "lamp off"}},
				Exit:  []ir.ActionSpec{{Count: "off_exits"}},
			},
			{
				Name: "On",
				Do: []ir.DoSpec{
					{Every: 500 * time.Millisecond, Action: ir.ActionSpec{Count: "ticks"}},
				},
			},
		},
		Transitions: []ir.TransitionSpec{
			{From: "Off", To: "On", Trigger: "toggle"},
			{From: "On", To: "Off", Trigger: "toggle"},
			{From: "On", To: "*", Trigger: "stop"},
		},
	}
}

// createTestRun writes a blinker run and returns it.
func createTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run, err := NewRun(id, blinkerSpec())
	if err != nil {
		t.Fatalf("NewRun() failed: %v", err)
	}
	if err := s.WriteRun(context.Background(), run); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	return run
}

// traceEvent creates a trace event with minimal required fields.
func traceEvent(seq int64, kind ir.TraceKind, state ir.StateID) ir.TraceEvent {
	return ir.TraceEvent{
		Seq:   seq,
		Kind:  kind,
		State: state,
		Other: ir.StateInitial,
		Phase: ir.PhaseInto,
		AtMS:  seq * 10,
	}
}
