package store

import (
	"context"
	"fmt"

	"github.com/roach88/mstate/internal/ir"
	"github.com/roach88/mstate/internal/names"
)

// Run describes one recorded execution of a machine definition.
type Run struct {
	ID            string
	Machine       string
	SpecHash      string
	Spec          ir.MachineSpec
	EngineVersion string
	IRVersion     string
	Seq           int64 // assigned by WriteRun
}

// NewRun builds a Run for spec stamped with the current engine and IR
// versions.
func NewRun(id string, spec ir.MachineSpec) (Run, error) {
	hash, err := ir.SpecHash(spec)
	if err != nil {
		return Run{}, fmt.Errorf("new run: %w", err)
	}
	return Run{
		ID:            id,
		Machine:       spec.Name,
		SpecHash:      hash,
		Spec:          spec,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}, nil
}

// WriteRun inserts a run record and assigns it the next run seq.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a duplicate id is
// silently ignored and keeps its original seq.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	specJSON, err := marshalSpec(run.Spec)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, machine, spec_hash, spec, engine_version, ir_version, seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs))
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Machine,
		run.SpecHash,
		specJSON,
		run.EngineVersion,
		run.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteNames stores the state and trigger tables of a run in one
// transaction. Existing entries are left untouched, so the call may be
// repeated as the table grows.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteNames(ctx context.Context, runID string, tbl *names.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write names: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	insert := func(space string, entries []names.Entry) error {
		for _, e := range entries {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO names (run_id, space, id, name)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(run_id, space, id) DO NOTHING
			`, runID, space, e.ID, e.Name)
			if err != nil {
				return fmt.Errorf("write names: %s %d: %w", space, e.ID, err)
			}
		}
		return nil
	}
	if err := insert(spaceState, tbl.States()); err != nil {
		return err
	}
	if err := insert(spaceTrigger, tbl.Triggers()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write names: commit: %w", err)
	}
	return nil
}

const (
	spaceState   = "state"
	spaceTrigger = "trigger"
)

// WriteTraceEvent appends one trace event to a run.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteTraceEvent(ctx context.Context, runID string, ev ir.TraceEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trace_events
		(run_id, seq, machine, kind, state, other, trigger_id, phase, at_ms, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		ev.Seq,
		int(ev.Machine),
		string(ev.Kind),
		int(ev.State),
		int(ev.Other),
		int(ev.Trigger),
		int(ev.Phase),
		ev.AtMS,
		ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("write trace event %d: %w", ev.Seq, err)
	}
	return nil
}

// WriteTrace appends events to a run in a single transaction.
func (s *Store) WriteTrace(ctx context.Context, runID string, events []ir.TraceEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write trace: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_events
		(run_id, seq, machine, kind, state, other, trigger_id, phase, at_ms, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write trace: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			runID, ev.Seq, int(ev.Machine), string(ev.Kind), int(ev.State),
			int(ev.Other), int(ev.Trigger), int(ev.Phase), ev.AtMS, ev.Detail,
		); err != nil {
			return fmt.Errorf("write trace: event %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write trace: commit: %w", err)
	}
	return nil
}
