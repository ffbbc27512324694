package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mstate/internal/harness"
)

const failingScenario = `
name: wrong_state
machine:
  name: OneShot
  initial: Ready
  states:
    - name: Ready
      transitions:
        - to: "*"
steps:
  - start: ""
  - run: {}
assertions:
  - type: final_state
    state: Ready
`

func TestTestCommandRunsSuite(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenarioPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ one_shot")
	assert.Contains(t, out, "Test Summary: 8 passed, 0 failed, 8 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandJSON(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), scenarioPath)
	require.NoError(t, err)

	var result harness.SuiteResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 8, result.Passed)
	assert.Equal(t, 8, result.Total)
}

func TestTestCommandFilter(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), "--filter", "one*", scenarioPath)
	require.NoError(t, err)

	var result harness.SuiteResult
	decode(t, out, &result)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "one_shot", result.Scenarios[0].Name)
}

func TestTestCommandFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong_state.yaml", failingScenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_state")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")

	out, err = execute(t, NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	resp := decode(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommandUpdateGolden(t *testing.T) {
	data, err := os.ReadFile(filepath.Join(scenarioPath, "one_shot.yaml"))
	require.NoError(t, err)
	dir := t.TempDir()
	writeFile(t, dir, "one_shot.yaml", string(data))

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "--update", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ one_shot (golden updated)")
	assert.FileExists(t, filepath.Join(dir, "golden", "one_shot.golden"))

	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ one_shot (golden)")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandMissingPath(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]")
}
