package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mstate/internal/engine"
	"github.com/roach88/mstate/internal/ir"
	"github.com/roach88/mstate/internal/scheduler"
	"github.com/roach88/mstate/internal/store"
	"github.com/roach88/mstate/internal/testutil"
)

// executeRun runs the run command with stdin and a deadline. A run that
// never stops on its own is cut off by the deadline and fails its
// assertions instead of hanging the test.
func executeRun(t *testing.T, format, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRunCommand(&RunOptions{
		RootOptions: &RootOptions{Format: format},
		RunIDs:      testutil.NewFixedRunIDs("run-1"),
	})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRunTerminatesAndRecords(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := executeRun(t, "text", "toggle\n# comment\n\nstop\n", "--db", db, blinkerPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-1 started (Blinker)")
	assert.Contains(t, out, "Run run-1 stopped in * (Idle)")
	assert.Contains(t, out, "counters: off_exits=1, switched_on=1")

	st := openStore(t, db)
	run, err := st.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "Blinker", run.Machine)

	n, err := st.CountTraceKind(context.Background(), "run-1", ir.TraceTerminate)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tbl, err := st.ReadNames(context.Background(), "run-1")
	require.NoError(t, err)
	_, ok := tbl.LookupTrigger("toggle")
	assert.True(t, ok)
	_, ok = tbl.LookupTrigger("comment")
	assert.False(t, ok)
}

func TestRunJSONSummary(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := executeRun(t, "json", "toggle\nstop\n", "--db", db, blinkerPath)
	require.NoError(t, err)

	var summary RunSummary
	resp := decode(t, out, &summary)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	assert.True(t, summary.Terminated)
	assert.Equal(t, "*", summary.FinalState)
	assert.Equal(t, "Idle", summary.FinalPhase)
	assert.Equal(t, 1, summary.Counters["switched_on"])
	assert.Positive(t, summary.Events)
	assert.Zero(t, summary.Unrecorded)

	st := openStore(t, db)
	run, err := st.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.SpecHash, summary.SpecHash)

	events, err := st.ReadTrace(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Len(t, events, summary.Events)
}

func TestRunStopsAtEndOfInputWhenQuiet(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := executeRun(t, "json", "", "--db", db, relayPath)
	require.NoError(t, err)

	var summary RunSummary
	decode(t, out, &summary)
	assert.False(t, summary.Terminated)
	assert.Equal(t, "Done", summary.FinalState)
	assert.Equal(t, 1, summary.Counters["done"])
	assert.Zero(t, summary.Counters["busy"])
}

func TestRunStartIn(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := executeRun(t, "json", "stop\n", "--db", db, "--start", "On", blinkerPath)
	require.NoError(t, err)

	var summary RunSummary
	decode(t, out, &summary)
	assert.True(t, summary.Terminated)
	assert.Equal(t, 1, summary.Counters["switched_on"])
	assert.Zero(t, summary.Counters["off_exits"])
}

func TestRunStartInUnknownState(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	_, err := executeRun(t, "text", "", "--db", db, "--start", "Nope", blinkerPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown state")
}

func TestRunRequiresDatabase(t *testing.T) {
	_, err := executeRun(t, "text", "", blinkerPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}

func TestRunInvalidDefinition(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	path := writeFile(t, t.TempDir(), "broken.yaml", undeclaredInitialYAML)

	out, err := executeRun(t, "text", "", "--db", db, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.NoFileExists(t, db)
}

func TestRunMissingDefinition(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	_, err := executeRun(t, "text", "", "--db", db, "/nonexistent/blinker.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func blinkerSession(t *testing.T, observer engine.Observer) *session {
	t.Helper()
	s, err := newSession(*loadBlinker(t), observer, &RunOptions{
		Poll:  scheduler.DefaultPollInterval,
		Queue: engine.DefaultQueueCapacity,
	})
	require.NoError(t, err)
	t.Cleanup(s.loop.Stop)
	return s
}

func TestSessionStartUnknownStateDetaches(t *testing.T) {
	s := blinkerSession(t, nil)

	err := s.start("Nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown state")
	assert.True(t, s.adapter.Halted())
	assert.Equal(t, ir.PhaseIdle, s.machine.Phase())
}

func TestSessionIgnoresInputAfterClose(t *testing.T) {
	var fires int
	s := blinkerSession(t, engine.ObserverFunc(func(ev ir.TraceEvent) {
		if ev.Kind == ir.TraceFire {
			fires++
		}
	}))
	require.NoError(t, s.start(""))

	fired, err := s.fire("toggle")
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, 1, s.machine.QueueLen())

	s.closeInput()
	s.readTriggers(context.Background(), strings.NewReader("toggle\nstop\n"))

	assert.Equal(t, 1, s.machine.QueueLen())
	assert.Equal(t, 1, fires)
}
