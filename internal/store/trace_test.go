package store

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/roach88/mstate/internal/ir"
	"github.com/roach88/mstate/internal/names"
)

func TestWriteNames_RestoresTable(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	tbl := names.New()
	tbl.State("Off")
	tbl.State("On")
	tbl.Trigger("toggle")
	tbl.Trigger("stop")

	if err := s.WriteNames(context.Background(), "run-1", tbl); err != nil {
		t.Fatalf("WriteNames() failed: %v", err)
	}
	// Repeating with a grown table only adds the new entries.
	tbl.Trigger("reset")
	if err := s.WriteNames(context.Background(), "run-1", tbl); err != nil {
		t.Fatalf("second WriteNames() failed: %v", err)
	}

	got, err := s.ReadNames(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ReadNames() failed: %v", err)
	}
	if !reflect.DeepEqual(got.States(), tbl.States()) {
		t.Errorf("States() = %v, want %v", got.States(), tbl.States())
	}
	if !reflect.DeepEqual(got.Triggers(), tbl.Triggers()) {
		t.Errorf("Triggers() = %v, want %v", got.Triggers(), tbl.Triggers())
	}
	if name := got.TriggerName(3); name != "reset" {
		t.Errorf("TriggerName(3) = %q, want reset", name)
	}
}

func TestWriteNames_UnknownRun(t *testing.T) {
	s := createTestStore(t)

	tbl := names.New()
	tbl.State("Off")
	err := s.WriteNames(context.Background(), "ghost", tbl)
	if err == nil {
		t.Fatal("WriteNames() for unknown run succeeded, want foreign key error")
	}
	if !strings.Contains(err.Error(), "FOREIGN KEY") {
		t.Errorf("error = %v, want foreign key violation", err)
	}
}

func TestReadNames_Empty(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	tbl, err := s.ReadNames(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ReadNames() failed: %v", err)
	}
	if len(tbl.States()) != 0 || len(tbl.Triggers()) != 0 {
		t.Errorf("expected empty table, got %v / %v", tbl.States(), tbl.Triggers())
	}
}

func TestWriteTrace_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	events := []ir.TraceEvent{
		traceEvent(3, ir.TraceEnter, 0),
		traceEvent(1, ir.TraceStart, 0),
		traceEvent(2, ir.TraceInto, 0),
	}
	events[0].Detail = "lamp off"
	events[0].Trigger = 2
	events[0].Machine = 7

	if err := s.WriteTrace(context.Background(), "run-1", events); err != nil {
		t.Fatalf("WriteTrace() failed: %v", err)
	}

	got, err := s.ReadTrace(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ReadTrace() failed: %v", err)
	}
	want := []ir.TraceEvent{events[1], events[2], events[0]}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ReadTrace() =\n %+v\nwant\n %+v", got, want)
	}
}

func TestWriteTraceEvent_Idempotent(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	ev := traceEvent(1, ir.TraceStart, 0)
	for i := 0; i < 2; i++ {
		if err := s.WriteTraceEvent(context.Background(), "run-1", ev); err != nil {
			t.Fatalf("WriteTraceEvent() #%d failed: %v", i, err)
		}
	}

	got, err := s.ReadTrace(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ReadTrace() failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d events, want 1", len(got))
	}
}

func TestReadTrace_Empty(t *testing.T) {
	s := createTestStore(t)

	got, err := s.ReadTrace(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("ReadTrace() failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ReadTrace() = %#v, want empty non-nil slice", got)
	}
}

func TestCountTraceKind(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	events := []ir.TraceEvent{
		traceEvent(1, ir.TraceStart, 0),
		traceEvent(2, ir.TraceDo, 1),
		traceEvent(3, ir.TraceDo, 1),
		traceEvent(4, ir.TraceExit, 1),
	}
	if err := s.WriteTrace(context.Background(), "run-1", events); err != nil {
		t.Fatalf("WriteTrace() failed: %v", err)
	}

	n, err := s.CountTraceKind(context.Background(), "run-1", ir.TraceDo)
	if err != nil {
		t.Fatalf("CountTraceKind() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("CountTraceKind(do) = %d, want 2", n)
	}
}

func TestRecorder_PersistsObservedEvents(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	rec := NewRecorder(s, "run-1")
	rec.Observe(traceEvent(1, ir.TraceStart, 0))
	rec.Observe(traceEvent(2, ir.TraceInto, 0))

	if err := rec.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if rec.Written() != 2 {
		t.Errorf("Written() = %d, want 2", rec.Written())
	}
	got, err := s.ReadTrace(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ReadTrace() failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d events, want 2", len(got))
	}
}

func TestRecorder_KeepsFirstError(t *testing.T) {
	s := createTestStore(t)

	rec := NewRecorder(s, "ghost")
	rec.Observe(traceEvent(1, ir.TraceStart, 0))
	first := rec.Err()
	if first == nil {
		t.Fatal("Err() = nil after write to unknown run")
	}
	rec.Observe(traceEvent(2, ir.TraceInto, 0))
	if rec.Err() != first {
		t.Errorf("Err() changed after second event: %v", rec.Err())
	}
	if rec.Written() != 0 || rec.Failed() != 2 {
		t.Errorf("Written() = %d, Failed() = %d, want 0 and 2", rec.Written(), rec.Failed())
	}
}
