package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/mstate/internal/binding"
	"github.com/roach88/mstate/internal/compiler"
	"github.com/roach88/mstate/internal/engine"
	"github.com/roach88/mstate/internal/harness"
	"github.com/roach88/mstate/internal/ir"
	"github.com/roach88/mstate/internal/scheduler"
	"github.com/roach88/mstate/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Machine  string
	Start    string
	Poll     time.Duration
	Queue    int

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	Machine    string         `json:"machine"`
	SpecHash   string         `json:"spec_hash"`
	FinalState string         `json:"final_state"`
	FinalPhase string         `json:"final_phase"`
	Terminated bool           `json:"terminated"`
	Events     int            `json:"events"`
	Unrecorded int            `json:"unrecorded,omitempty"`
	Counters   map[string]int `json:"counters,omitempty"`
	Halt       string         `json:"halt,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <definition>",
		Short: "Run a machine, reading triggers from stdin",
		Long: `Run a machine on a real-time event loop.

The machine starts in its initial state (or --start). Each line read from
stdin is fired as a trigger. Every phase is recorded to the SQLite
database under a new run id, printed on exit.

The run ends when the machine terminates, when it halts (exit code 1),
on Ctrl-C, or once stdin is closed and the machine has nothing left to
do.

Example:
  mstate run --db ./mstate.db ./blinker.cue
  printf 'toggle\nstop\n' | mstate run --db ./mstate.db ./blinker.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMachine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Machine, "machine", "", "machine to run when the definition holds several")
	cmd.Flags().StringVar(&opts.Start, "start", "", "start in this state instead of the initial one")
	cmd.Flags().DurationVar(&opts.Poll, "poll", scheduler.DefaultPollInterval, "background poll interval (0 disables)")
	cmd.Flags().IntVar(&opts.Queue, "queue", engine.DefaultQueueCapacity, "trigger queue capacity (0 = unbounded)")

	return cmd
}

// session holds the pieces of one run that the loop callbacks share.
type session struct {
	machine *engine.Machine
	program *binding.Program
	adapter *scheduler.Adapter
	loop    *scheduler.Loop

	mu         sync.Mutex
	halt       error
	terminated bool
	inputDone  bool

	// input guards Fire from stdin against the store closing once the
	// loop has stopped.
	input  sync.Mutex
	closed bool
}

// newSession declares spec on a fresh machine recording to observer and
// attaches it to a new real-time loop.
func newSession(spec ir.MachineSpec, observer engine.Observer, opts *RunOptions) (*session, error) {
	s := &session{loop: scheduler.NewLoop()}
	s.machine = engine.New(
		engine.WithObserver(observer),
		engine.WithQueueCapacity(opts.Queue),
	)
	program, err := binding.Declare(s.machine, spec)
	if err != nil {
		return nil, err
	}
	s.program = program
	s.adapter = scheduler.NewAdapter(s.machine, s.loop, s.loop,
		scheduler.WithPollInterval(opts.Poll),
		scheduler.WithHaltHandler(s.onHalt),
		scheduler.WithRunHook(s.onRun),
	)
	if err := s.adapter.Attach(); err != nil {
		return nil, err
	}
	return s, nil
}

// start starts the machine in state, or in its initial state when state
// is empty. On failure the adapter is detached.
func (s *session) start(state string) error {
	if state == "" {
		s.program.Start()
		return nil
	}
	if _, err := s.program.StartIn(state); err != nil {
		s.adapter.Detach()
		return err
	}
	return nil
}

// fire fires trigger unless input has been closed.
func (s *session) fire(trigger string) (bool, error) {
	s.input.Lock()
	defer s.input.Unlock()
	if s.closed {
		return false, nil
	}
	return true, s.program.Fire(trigger)
}

// closeInput makes later fire calls no-ops. It returns once any fire in
// progress has finished.
func (s *session) closeInput() {
	s.input.Lock()
	s.closed = true
	s.input.Unlock()
}

func (s *session) inputClosed() bool {
	s.input.Lock()
	defer s.input.Unlock()
	return s.closed
}

func runMachine(opts *RunOptions, path string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	formatter := newFormatter(opts.RootOptions, cmd)

	spec, err := LoadDefinition(path, opts.Machine)
	if err != nil {
		return commandError(formatter, err)
	}
	if verrs := compiler.Validate(spec); len(verrs) > 0 {
		result := &ValidationResult{Machines: []string{spec.Name}}
		for _, verr := range verrs {
			result.Errors = append(result.Errors, MachineError{Machine: spec.Name, ValidationError: verr})
		}
		return outputValidationErrors(formatter, result)
	}
	slog.Info("definition compiled", "machine", spec.Name, "states", len(spec.States))

	slog.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return commandError(formatter, WrapExitError(ExitCommandError, "failed to open database", err))
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	run, err := store.NewRun(runIDs.Generate(), *spec)
	if err != nil {
		return commandError(formatter, err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if err := st.WriteRun(ctx, run); err != nil {
		return commandError(formatter, WrapExitError(ExitCommandError, "failed to record run", err))
	}
	recorder := store.NewRecorder(st, run.ID)

	s, err := newSession(*spec, recorder, opts)
	if err != nil {
		return commandError(formatter, err)
	}
	defer s.loop.Stop()
	if err := s.start(opts.Start); err != nil {
		return commandError(formatter, WrapExitError(ExitCommandError, "failed to start", err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	go s.readTriggers(ctx, cmd.InOrStdin())

	slog.Info("machine running", "run", run.ID, "machine", spec.Name, "db", opts.Database)
	if !formatter.JSON() {
		fmt.Fprintf(formatter.Writer, "Run %s started (%s). Reading triggers from stdin.\n", run.ID, spec.Name)
		fmt.Fprintln(formatter.Writer, "Press Ctrl-C to stop.")
	}

	loopErr := s.loop.Run(ctx)
	s.closeInput()
	s.adapter.Detach()
	if loopErr != nil && loopErr != context.Canceled && loopErr != context.DeadlineExceeded {
		return WrapExitError(ExitFailure, "event loop error", loopErr)
	}
	cancel()

	// Names are written after the run so triggers first seen on stdin are
	// included.
	if err := st.WriteNames(context.Background(), run.ID, s.program.Names()); err != nil {
		return commandError(formatter, WrapExitError(ExitCommandError, "failed to record names", err))
	}
	if err := recorder.Err(); err != nil {
		slog.Warn("trace incomplete", "run", run.ID, "unrecorded", recorder.Failed(), "error", err)
	}

	summary := s.summary(run, recorder)
	slog.Info("run finished", "run", run.ID, "state", summary.FinalState, "events", summary.Events)
	if err := outputRunSummary(formatter, summary); err != nil {
		return err
	}
	if s.halted() != nil {
		return WrapExitError(ExitFailure, "machine halted", s.halted())
	}
	return nil
}

// readTriggers fires one trigger per non-empty input line. Lines starting
// with '#' are ignored.
func (s *session) readTriggers(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fired, err := s.fire(line)
		if !fired {
			slog.Debug("run stopped, ignoring remaining input")
			return
		}
		if err != nil {
			slog.Warn("trigger not queued", "trigger", line, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("reading triggers", "error", err)
	}
	slog.Debug("trigger input closed")
	if s.inputClosed() {
		return
	}

	// Checked on the loop goroutine, behind any wakes already raised.
	s.loop.After(0, func() {
		s.mu.Lock()
		s.inputDone = true
		s.mu.Unlock()
		if s.quiet(s.adapter.Last()) {
			s.loop.Stop()
		}
	})
}

// quiet reports whether the machine will not run again without a trigger.
func (s *session) quiet(last ir.Wake) bool {
	return s.adapter.Runs() > 0 && last.Kind == ir.WakeNone && s.machine.QueueLen() == 0
}

func (s *session) onRun(wake ir.Wake) {
	if s.machine.State() == ir.StateFinal && s.machine.Phase() == ir.PhaseIdle {
		s.mu.Lock()
		s.terminated = true
		s.mu.Unlock()
		slog.Info("machine terminated")
		s.loop.Stop()
		return
	}

	s.mu.Lock()
	inputDone := s.inputDone
	s.mu.Unlock()
	if inputDone && s.quiet(wake) {
		slog.Debug("input closed and machine quiet, stopping")
		s.loop.Stop()
	}
}

func (s *session) onHalt(err error) {
	s.mu.Lock()
	s.halt = err
	s.mu.Unlock()
	s.loop.Stop()
}

func (s *session) halted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halt
}

func (s *session) summary(run store.Run, recorder *store.Recorder) RunSummary {
	s.mu.Lock()
	terminated := s.terminated
	s.mu.Unlock()

	summary := RunSummary{
		RunID:      run.ID,
		Machine:    run.Machine,
		SpecHash:   run.SpecHash,
		FinalState: harness.RenderState(s.program.Names(), s.machine.State()),
		FinalPhase: s.machine.Phase().String(),
		Terminated: terminated,
		Events:     recorder.Written(),
		Unrecorded: recorder.Failed(),
		Counters:   s.program.Counters(),
	}
	if err := s.halted(); err != nil {
		summary.Halt = err.Error()
	}
	return summary
}

func outputRunSummary(formatter *OutputFormatter, summary RunSummary) error {
	if formatter.JSON() {
		return formatter.Response(CLIResponse{Status: "ok", Data: summary, RunID: summary.RunID})
	}

	w := formatter.Writer
	state := summary.FinalState
	if state == "" {
		state = "(not entered)"
	}
	fmt.Fprintf(w, "Run %s stopped in %s (%s)\n", summary.RunID, state, summary.FinalPhase)
	fmt.Fprintf(w, "  events recorded: %d\n", summary.Events)
	if summary.Unrecorded > 0 {
		fmt.Fprintf(w, "  events lost: %d\n", summary.Unrecorded)
	}
	if len(summary.Counters) > 0 {
		keys := make([]string, 0, len(summary.Counters))
		for k := range summary.Counters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%d", k, summary.Counters[k])
		}
		fmt.Fprintf(w, "  counters: %s\n", strings.Join(parts, ", "))
	}
	if summary.Halt != "" {
		fmt.Fprintf(w, "  halted: %s\n", summary.Halt)
	}
	return nil
}
