package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/mstate/internal/binding"
	"github.com/roach88/mstate/internal/clock"
	"github.com/roach88/mstate/internal/engine"
	"github.com/roach88/mstate/internal/ir"
	"github.com/roach88/mstate/internal/names"
	"github.com/roach88/mstate/internal/scheduler"
	"github.com/roach88/mstate/internal/store"
	"github.com/roach88/mstate/internal/testutil"
)

// Harness is the test execution engine for one scenario.
// It runs the machine on a virtual clock and a manual scheduler.
type Harness struct {
	store    *store.Store
	program  *binding.Program
	machine  *engine.Machine
	adapter  *scheduler.Adapter
	sched    *scheduler.Manual
	recorder *store.Recorder
	runID    string
	logger   *slog.Logger

	mu   sync.Mutex
	halt error
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Compile and validate the definition
// 2. Declare it on a machine attached to a manual scheduler
// 3. Execute steps, checking start/fire expectations
// 4. Drain remaining work and read the recorded trace back
// 5. Evaluate assertions
//
// The returned error covers setup failures only; a halted machine or a
// failed assertion is reported through Result.
func Run(scenario *Scenario) (*Result, error) {
	spec, err := scenario.LoadDefinition()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	runID := scenario.RunID
	if runID == "" {
		runID = "scenario-" + scenario.Name
	}
	run, err := store.NewRun(testutil.NewFixedRunIDs(runID).Generate(), *spec)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := st.WriteRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	h := &Harness{
		store:    st,
		sched:    scheduler.NewManual(clock.NewVirtual(clock.Epoch)),
		recorder: store.NewRecorder(st, run.ID),
		runID:    run.ID,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	opts := []engine.Option{
		engine.WithClock(h.sched.Clock()),
		engine.WithObserver(h.recorder),
	}
	if scenario.Queue > 0 {
		opts = append(opts, engine.WithQueueCapacity(scenario.Queue))
	}
	h.machine = engine.New(opts...)

	h.program, err = binding.Declare(h.machine, *spec)
	if err != nil {
		return nil, err
	}

	adapterOpts := []scheduler.AdapterOption{
		scheduler.WithHaltHandler(h.onHalt),
	}
	if poll, ok, err := scenario.PollInterval(); err != nil {
		return nil, err
	} else if ok {
		adapterOpts = append(adapterOpts, scheduler.WithPollInterval(poll))
	}
	h.adapter = scheduler.NewAdapter(h.machine, h.sched, h.sched, adapterOpts...)
	if err := h.adapter.Attach(); err != nil {
		return nil, err
	}
	defer h.adapter.Detach()

	result := NewResult()
	result.RunID = run.ID

	if err := h.executeSteps(scenario.Steps, result); err != nil {
		return nil, err
	}
	if err := h.sched.Drain(); err != nil {
		return nil, fmt.Errorf("final drain: %w", err)
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// executeSteps plays the scenario steps in order. Start and fire only
// queue work; run and advance execute it.
func (h *Harness) executeSteps(steps []Step, result *Result) error {
	for i, step := range steps {
		switch step.Kind() {
		case StepStart:
			var (
				ok  bool
				err error
			)
			if *step.Start == "" {
				ok = h.program.Start()
			} else {
				ok, err = h.program.StartIn(*step.Start)
			}
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			if ok != step.Expected() {
				result.AddError(fmt.Sprintf("step %d: start %q returned %t, expected %t", i, *step.Start, ok, step.Expected()))
			}

		case StepFire:
			err := h.program.Fire(step.Fire)
			if err != nil && !engine.IsQueueFullError(err) {
				return fmt.Errorf("step %d: %w", i, err)
			}
			if accepted := err == nil; accepted != step.Expected() {
				result.AddError(fmt.Sprintf("step %d: fire %q accepted=%t, expected %t", i, step.Fire, accepted, step.Expected()))
			}

		case StepRun:
			if err := h.sched.Drain(); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}

		case StepAdvance:
			d, err := time.ParseDuration(step.Advance)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			if err := h.sched.Advance(d); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}

		h.logger.Info("scenario step completed",
			"step", i,
			"kind", step.Kind(),
			"state", h.program.StateName(),
			"phase", h.machine.Phase().String(),
		)
	}
	return nil
}

func (h *Harness) onHalt(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.halt == nil {
		h.halt = err
	}
}

// collect reads the recorded trace back from the store so that the
// assertions see exactly what was persisted.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	if err := h.recorder.Err(); err != nil {
		return fmt.Errorf("trace recording failed: %w", err)
	}
	if err := h.store.WriteNames(ctx, h.runID, h.program.Names()); err != nil {
		return err
	}

	events, err := h.store.ReadTrace(ctx, h.runID)
	if err != nil {
		return err
	}
	tbl, err := h.store.ReadNames(ctx, h.runID)
	if err != nil {
		return err
	}
	for _, ev := range events {
		result.Trace = append(result.Trace, Render(tbl, ev))
	}

	result.FinalState = RenderState(tbl, h.machine.State())
	result.FinalPhase = h.machine.Phase().String()
	result.Counters = h.program.Counters()

	h.mu.Lock()
	halt := h.halt
	h.mu.Unlock()
	if halt == nil {
		halt = h.machine.Err()
	}
	if halt != nil {
		result.Halt = halt.Error()
	}
	return nil
}

// Render resolves the ids of ev through tbl.
func Render(tbl *names.Table, ev ir.TraceEvent) TraceEvent {
	out := TraceEvent{
		Seq:    ev.Seq,
		Kind:   string(ev.Kind),
		State:  RenderState(tbl, ev.State),
		Other:  RenderState(tbl, ev.Other),
		Phase:  ev.Phase.String(),
		AtMS:   ev.AtMS,
		Detail: ev.Detail,
	}
	if ev.Trigger != ir.TriggerNone {
		out.Trigger = tbl.TriggerName(ev.Trigger)
	}
	return out
}

// RenderState names a state id. ir.StateInitial renders as "" since it
// marks "no state" in trace events.
func RenderState(tbl *names.Table, id ir.StateID) string {
	if id == ir.StateInitial {
		return ""
	}
	return tbl.StateName(id)
}
