package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/mstate/internal/ir"
	"github.com/roach88/mstate/internal/names"
)

// ReadRun returns the run with the given id.
// Returns sql.ErrNoRows (wrapped) if the run does not exist.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, machine, spec_hash, spec, engine_version, ir_version, seq
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns every run, optionally filtered by machine name.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context, machine string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, machine, spec_hash, spec, engine_version, ir_version, seq
		FROM runs
		WHERE ? = '' OR machine = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, machine, machine)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently written run.
// Returns sql.ErrNoRows (wrapped) if the store is empty.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, machine, spec_hash, spec, engine_version, ir_version, seq
		FROM runs
		ORDER BY seq DESC
		LIMIT 1
	`)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// ReadNames rebuilds the name table recorded for a run.
func (s *Store) ReadNames(ctx context.Context, runID string) (*names.Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT space, id, name
		FROM names
		WHERE run_id = ?
		ORDER BY space, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query names: %w", err)
	}
	defer rows.Close()

	var states, triggers []names.Entry
	for rows.Next() {
		var space string
		var e names.Entry
		if err := rows.Scan(&space, &e.ID, &e.Name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		switch space {
		case spaceState:
			states = append(states, e)
		case spaceTrigger:
			triggers = append(triggers, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate names: %w", err)
	}

	tbl, err := names.Restore(states, triggers)
	if err != nil {
		return nil, fmt.Errorf("read names %s: %w", runID, err)
	}
	return tbl, nil
}

// ReadTrace returns the trace events of a run ordered by seq.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadTrace(ctx context.Context, runID string) ([]ir.TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, machine, kind, state, other, trigger_id, phase, at_ms, detail
		FROM trace_events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	events := []ir.TraceEvent{}
	for rows.Next() {
		var (
			ev                                   ir.TraceEvent
			kind                                 string
			machine, state, other, trigger, phase int
		)
		if err := rows.Scan(&ev.Seq, &machine, &kind, &state, &other, &trigger, &phase, &ev.AtMS, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan trace event: %w", err)
		}
		ev.Machine = ir.MachineID(machine)
		ev.Kind = ir.TraceKind(kind)
		ev.State = ir.StateID(state)
		ev.Other = ir.StateID(other)
		ev.Trigger = ir.TriggerID(trigger)
		ev.Phase = ir.Phase(phase)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace: %w", err)
	}
	return events, nil
}

// CountTraceKind returns how many events of the given kind a run recorded.
// Uses idx_trace_events_kind.
func (s *Store) CountTraceKind(ctx context.Context, runID string, kind ir.TraceKind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trace_events WHERE run_id = ? AND kind = ?
	`, runID, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s events: %w", kind, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		specJSON string
	)
	if err := row.Scan(
		&run.ID,
		&run.Machine,
		&run.SpecHash,
		&specJSON,
		&run.EngineVersion,
		&run.IRVersion,
		&run.Seq,
	); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	spec, err := unmarshalSpec(specJSON)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	run.Spec = spec
	return run, nil
}
