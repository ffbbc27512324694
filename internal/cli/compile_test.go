package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mstate/internal/compiler"
	"github.com/roach88/mstate/internal/ir"
)

func loadBlinker(t *testing.T) *ir.MachineSpec {
	t.Helper()
	spec, err := compiler.LoadFile(blinkerPath, "")
	require.NoError(t, err)
	return spec
}

func TestCompileText(t *testing.T) {
	hash, err := ir.SpecHash(*loadBlinker(t))
	require.NoError(t, err)

	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), blinkerPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled 1 machine(s)")
	assert.Contains(t, out, "Blinker: 2 state(s), 3 transition(s)")
	assert.Contains(t, out, "spec_hash: "+hash)
}

func TestCompileJSONIsCanonical(t *testing.T) {
	spec := loadBlinker(t)
	canonical, err := ir.MarshalCanonical(spec.ToIR())
	require.NoError(t, err)

	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "json"}), blinkerPath)
	require.NoError(t, err)

	var result CompilationResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ir.EngineVersion, result.EngineVersion)
	assert.Equal(t, ir.IRVersion, result.IRVersion)
	require.Len(t, result.Machines, 1)
	assert.Equal(t, "Blinker", result.Machines[0].Name)
	assert.JSONEq(t, string(canonical), string(result.Machines[0].Definition))
}

func TestCompileYAMLAndCUEHashAlike(t *testing.T) {
	yamlPath := writeFile(t, t.TempDir(), "blinker.yaml", `
name: Blinker
initial: "Off"
states:
  - name: "Off"
    entry:
      - log: lamp off
    exit:
      - count: off_exits
    transitions:
      - to: "On"
        on: toggle
  - name: "On"
    entry:
      - count: switched_on
    do:
      - every: 500ms
        count: blinks
    exit:
      - log: lamp on
    transitions:
      - to: "Off"
        on: toggle
      - to: "*"
        on: stop
`)

	var fromCUE, fromYAML CompilationResult
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "json"}), blinkerPath)
	require.NoError(t, err)
	decode(t, out, &fromCUE)

	out, err = execute(t, NewCompileCommand(&RootOptions{Format: "json"}), yamlPath)
	require.NoError(t, err)
	decode(t, out, &fromYAML)

	assert.Equal(t, fromCUE.Machines[0].SpecHash, fromYAML.Machines[0].SpecHash)
}

func TestCompileOutputFile(t *testing.T) {
	canonical, err := ir.MarshalCanonical(loadBlinker(t).ToIR())
	require.NoError(t, err)
	outPath := filepath.Join(t.TempDir(), "blinker.json")

	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), "-o", outPath, blinkerPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote canonical definition to "+outPath)

	written, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, canonical, written)
}

func TestCompileOutputNeedsOneMachine(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pair.cue", pairCUE)
	outPath := filepath.Join(dir, "out.json")

	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), "-o", outPath, path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeSelect+"]")
	assert.NoFileExists(t, outPath)

	_, err = execute(t, NewCompileCommand(&RootOptions{Format: "text"}), "-o", outPath, "--machine", "Door", path)
	require.NoError(t, err)
	assert.FileExists(t, outPath)
}

func TestCompileInvalidDefinition(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.yaml", undeclaredInitialYAML)

	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.NotContains(t, out, "Compiled")
}

func TestCompileMissingDefinition(t *testing.T) {
	_, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), "/nonexistent/blinker.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}
