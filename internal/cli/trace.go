package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/mstate/internal/harness"
	"github.com/roach88/mstate/internal/ir"
	"github.com/roach88/mstate/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Latest   bool
	Machine  string // optional - filter the run list
	Kind     string // optional - filter events by kind
}

// RunInfo is one row of the run list.
type RunInfo struct {
	ID            string `json:"id"`
	Seq           int64  `json:"seq"`
	Machine       string `json:"machine"`
	SpecHash      string `json:"spec_hash"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
}

// TraceResult holds the trace of one run.
type TraceResult struct {
	Run       RunInfo              `json:"run"`
	TraceHash string               `json:"trace_hash"`
	Timeline  []harness.TraceEvent `json:"timeline"`
	Stats     map[string]int       `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "List recorded runs or print a run's trace",
		Long: `Query the runs recorded by "mstate run".

Without --run (or --latest) the recorded runs are listed in the order
they were written. With --run the run's trace is printed with state and
trigger names resolved, followed by per-kind event counts. The trace
hash ignores timestamps, so two runs that did the same work in the same
order share it.

Examples:
  mstate trace --db ./mstate.db
  mstate trace --db ./mstate.db --machine Blinker
  mstate trace --db ./mstate.db --run 0190b2c4-...
  mstate trace --db ./mstate.db --latest --kind transit --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to print")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "print the most recent run")
	cmd.Flags().StringVar(&opts.Machine, "machine", "", "list only runs of this machine")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "show only events of this kind")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.RunID != "" && opts.Latest {
		return commandError(formatter, &LoadError{Code: ErrCodeGeneric, Message: "--run and --latest are mutually exclusive"})
	}
	if _, err := os.Stat(opts.Database); err != nil {
		return commandError(formatter, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("database not found: %s", opts.Database)})
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return commandError(formatter, WrapExitError(ExitCommandError, "failed to open database", err))
	}
	defer st.Close()

	var run store.Run
	switch {
	case opts.Latest:
		run, err = st.LatestRun(ctx)
	case opts.RunID != "":
		run, err = st.ReadRun(ctx, opts.RunID)
	default:
		return listRuns(ctx, st, opts.Machine, formatter)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return commandError(formatter, &LoadError{Code: ErrCodeNotFound, Message: "no such run"})
	}
	if err != nil {
		return commandError(formatter, err)
	}

	result, err := buildTrace(ctx, st, run, opts.Kind)
	if err != nil {
		return commandError(formatter, err)
	}

	if formatter.JSON() {
		return formatter.Response(CLIResponse{Status: "ok", Data: result, RunID: run.ID})
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

func listRuns(ctx context.Context, st *store.Store, machine string, formatter *OutputFormatter) error {
	runs, err := st.ListRuns(ctx, machine)
	if err != nil {
		return commandError(formatter, err)
	}
	infos := make([]RunInfo, len(runs))
	for i, r := range runs {
		infos[i] = runInfo(r)
	}

	if formatter.JSON() {
		return formatter.Response(CLIResponse{Status: "ok", Data: infos})
	}

	w := formatter.Writer
	if len(infos) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range infos {
		fmt.Fprintf(w, "%4d  %s  %-16s %s\n", r.Seq, r.ID, r.Machine, truncateHash(r.SpecHash))
	}
	return nil
}

// buildTrace reads the run's trace and resolves its ids. kind, when set,
// filters the timeline; the trace hash and stats cover the whole trace.
func buildTrace(ctx context.Context, st *store.Store, run store.Run, kind string) (*TraceResult, error) {
	events, err := st.ReadTrace(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	tbl, err := st.ReadNames(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	hash, err := ir.TraceHash(events)
	if err != nil {
		return nil, err
	}

	result := &TraceResult{
		Run:       runInfo(run),
		TraceHash: hash,
		Timeline:  []harness.TraceEvent{},
		Stats:     make(map[string]int),
	}
	for _, ev := range events {
		result.Stats[string(ev.Kind)]++
		if kind != "" && string(ev.Kind) != kind {
			continue
		}
		result.Timeline = append(result.Timeline, harness.Render(tbl, ev))
	}
	return result, nil
}

func runInfo(r store.Run) RunInfo {
	return RunInfo{
		ID:            r.ID,
		Seq:           r.Seq,
		Machine:       r.Machine,
		SpecHash:      r.SpecHash,
		EngineVersion: r.EngineVersion,
		IRVersion:     r.IRVersion,
	}
}

func outputTraceText(w io.Writer, result *TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for run: %s (%s)\n", result.Run.ID, result.Run.Machine)
	fmt.Fprintf(w, "Spec hash:  %s\n", result.Run.SpecHash)
	fmt.Fprintf(w, "Trace hash: %s\n", result.TraceHash)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		formatTimelineEvent(w, ev, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	kinds := make([]string, 0, len(result.Stats))
	for k := range result.Stats {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-10s %d\n", k+":", result.Stats[k])
	}
}

// formatTimelineEvent writes one event. State and peer are shown as
// "state -> other" for events that move between states.
func formatTimelineEvent(w io.Writer, ev harness.TraceEvent, verbose bool) {
	line := fmt.Sprintf("  [%d] %6dms %-9s %s", ev.Seq, ev.AtMS, ev.Kind, ev.State)
	switch ev.Kind {
	case string(ir.TraceStart), string(ir.TraceExit), string(ir.TraceTransit):
		line += " -> " + ev.Other
	case string(ir.TraceInto), string(ir.TraceEnter), string(ir.TraceTerminate):
		if ev.Other != "" {
			line += " <- " + ev.Other
		}
	}
	if ev.Trigger != "" {
		line += " on " + ev.Trigger
	}
	fmt.Fprintln(w, line)
	if verbose {
		fmt.Fprintf(w, "       phase=%s", ev.Phase)
		if ev.Detail != "" {
			fmt.Fprintf(w, " detail=%s", ev.Detail)
		}
		fmt.Fprintln(w)
	}
}

func truncateHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
