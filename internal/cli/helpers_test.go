package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// Fixtures shared with the harness package.
var (
	blinkerPath  = filepath.Join("..", "harness", "testdata", "definitions", "blinker.cue")
	relayPath    = filepath.Join("..", "harness", "testdata", "definitions", "relay.yaml")
	scenarioPath = filepath.Join("..", "harness", "testdata", "scenarios")
)

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type rawResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
	RunID  string          `json:"run_id"`
}

// decode parses a JSON CLIResponse and, when data is non-nil, its payload.
func decode(t *testing.T, out string, data any) rawResponse {
	t.Helper()
	var resp rawResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp
}

const undeclaredInitialYAML = `
name: Broken
initial: Nope
states:
  - name: A
    transitions:
      - to: Missing
        on: go
`

const pairCUE = `
machine: Door: {
	initial: "Closed"
	state: Closed: {transitions: [{to: "Open", on: "open"}]}
	state: Open: {transitions: [{to: "Closed", on: "close"}]}
}

machine: Bell: {
	initial: "Silent"
	state: Silent: {}
}
`
