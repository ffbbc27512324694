package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/mstate/internal/compiler"
	"github.com/roach88/mstate/internal/ir"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Machine string
}

// MachineError is a validation error attributed to one machine.
type MachineError struct {
	Machine string `json:"machine,omitempty"`
	compiler.ValidationError
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool           `json:"valid"`
	Machines []string       `json:"machines,omitempty"`
	Errors   []MachineError `json:"errors,omitempty"`

	specs []*ir.MachineSpec
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <definition>",
		Short: "Check machine definitions",
		Long: `Compile machine definitions and check them without running.

<definition> is a .cue, .yaml or .yml file, or a directory holding one
CUE package. Every machine is checked unless --machine selects one.

Exit codes:
  0 - All machines valid
  1 - One or more validation errors
  2 - Command error (definition not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Machine, "machine", "", "validate only this machine")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	result, err := ValidateDefinition(path, opts.Machine)
	if err != nil {
		return commandError(formatter, err)
	}
	for _, name := range result.Machines {
		formatter.VerboseLog("Validated machine: %s", name)
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// ValidateDefinition loads path and validates its machines. Compile
// errors in the definition are reported as validation errors; failures
// to reach the definition at all are returned as errors.
func ValidateDefinition(path, machine string) (*ValidationResult, error) {
	loaded, err := LoadDefinitions(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && isDefinitionError(loadErr.Code) {
			return &ValidationResult{
				Errors: []MachineError{{ValidationError: compiler.ValidationError{
					Field:   "definition",
					Message: loadErr.Message,
					Code:    loadErr.Code,
					Line:    lineOf(loadErr),
				}}},
			}, nil
		}
		return nil, err
	}

	specs := loaded.Machines
	if machine != "" {
		spec, err := compiler.Select(specs, machine)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeSelect, Message: err.Error()}
		}
		specs = []*ir.MachineSpec{spec}
	}

	result := &ValidationResult{specs: specs}
	for _, spec := range specs {
		result.Machines = append(result.Machines, spec.Name)
		for _, verr := range compiler.Validate(spec) {
			result.Errors = append(result.Errors, MachineError{Machine: spec.Name, ValidationError: verr})
		}
	}
	result.Valid = len(result.Errors) == 0
	return result, nil
}

// isDefinitionError reports whether a load error code describes a
// problem inside the definition rather than a problem reaching it.
func isDefinitionError(code string) bool {
	return code == ErrCodeSyntax || strings.HasPrefix(code, "E1")
}

func lineOf(e *LoadError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

func outputValidateSuccess(formatter *OutputFormatter, result *ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %d machine(s) valid: %s\n",
		len(result.Machines), strings.Join(result.Machines, ", "))
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, result *ValidationResult) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.JSON() {
		first := result.Errors[0]
		if err := formatter.Response(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range result.Errors {
		location := err.Field
		if err.Machine != "" {
			location = err.Machine + "." + location
		}
		if err.Line > 0 {
			location = fmt.Sprintf("%s (line %d)", location, err.Line)
		}
		fmt.Fprintln(formatter.Writer, location)
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return failure
}
