package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/mstate/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios>",
		Short: "Run scenario files against their machines",
		Long: `Run scenario files on a virtual clock and check their assertions.

<scenarios> is a scenario file or a directory searched recursively for
.yaml and .yml files. Each scenario names its definition relative to
itself. When <dir>/golden/<name>.golden exists next to a scenario its
trace must match it byte for byte; --update rewrites it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  mstate test ./scenarios
  mstate test ./scenarios --filter "blink*"
  mstate test ./scenarios --update
  mstate test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenarios string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(scenarios); os.IsNotExist(err) {
		return commandError(formatter, &LoadError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("scenarios not found: %s", scenarios),
		})
	}

	files, err := harness.FindScenarios(scenarios, opts.Filter)
	if err != nil {
		return commandError(formatter, &LoadError{Code: ErrCodeScanError, Message: err.Error()})
	}
	formatter.VerboseLog("Found %d scenario file(s) in %s", len(files), scenarios)

	result := harness.RunSuite(files, harness.SuiteOptions{Update: opts.Update})

	if formatter.JSON() {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter.Writer, result)
}

func outputTestJSON(formatter *OutputFormatter, result *harness.SuiteResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := formatter.Response(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func outputTestText(w io.Writer, result *harness.SuiteResult) error {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	for _, s := range result.Scenarios {
		if !s.Pass {
			fmt.Fprintf(w, "✗ %s\n", s.Name)
			for _, e := range s.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
			continue
		}
		switch s.Golden {
		case "updated":
			fmt.Fprintf(w, "✓ %s (golden updated)\n", s.Name)
		case "match":
			fmt.Fprintf(w, "✓ %s (golden)\n", s.Name)
		default:
			fmt.Fprintf(w, "✓ %s\n", s.Name)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
