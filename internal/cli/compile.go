package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/mstate/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Machine string
	Output  string // output file path
}

// CompiledMachine is one machine in canonical form.
type CompiledMachine struct {
	Name        string          `json:"name"`
	SpecHash    string          `json:"spec_hash"`
	States      int             `json:"states"`
	Transitions int             `json:"transitions"`
	Definition  json.RawMessage `json:"definition"`
}

// CompilationResult holds the compiled machines.
type CompilationResult struct {
	EngineVersion string            `json:"engine_version"`
	IRVersion     string            `json:"ir_version"`
	Machines      []CompiledMachine `json:"machines"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <definition>",
		Short: "Compile machine definitions to canonical JSON",
		Long: `Compile machine definitions to canonical JSON.

Each machine is validated, then printed in canonical form together with
its spec hash. Runs recorded from the same definition carry the same hash.
With --output the canonical definition of a single machine is written to
a file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Machine, "machine", "", "compile only this machine")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the canonical definition to this file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	validation, err := ValidateDefinition(path, opts.Machine)
	if err != nil {
		return commandError(formatter, err)
	}
	if !validation.Valid {
		return outputValidationErrors(formatter, validation)
	}

	specs := validation.specs
	if opts.Output != "" && len(specs) != 1 {
		return commandError(formatter, &LoadError{
			Code:    ErrCodeSelect,
			Message: fmt.Sprintf("%d machines defined, choose one with --machine", len(specs)),
		})
	}

	result := &CompilationResult{
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	for _, spec := range specs {
		formatter.VerboseLog("Compiling machine: %s", spec.Name)
		compiled, err := compileMachine(spec)
		if err != nil {
			return commandError(formatter, err)
		}
		result.Machines = append(result.Machines, compiled)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, result.Machines[0].Definition, 0o644); err != nil {
			return commandError(formatter, &LoadError{
				Code:    ErrCodeWriteFailed,
				Message: fmt.Sprintf("writing output file: %v", err),
			})
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

func compileMachine(spec *ir.MachineSpec) (CompiledMachine, error) {
	canonical, err := ir.MarshalCanonical(spec.ToIR())
	if err != nil {
		return CompiledMachine{}, err
	}
	hash, err := ir.SpecHash(*spec)
	if err != nil {
		return CompiledMachine{}, err
	}
	return CompiledMachine{
		Name:        spec.Name,
		SpecHash:    hash,
		States:      len(spec.States),
		Transitions: len(spec.Transitions),
		Definition:  canonical,
	}, nil
}

func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d machine(s)\n\n", len(result.Machines))
	for _, m := range result.Machines {
		fmt.Fprintf(formatter.Writer, "%s: %d state(s), %d transition(s)\n", m.Name, m.States, m.Transitions)
		fmt.Fprintf(formatter.Writer, "  spec_hash: %s\n", m.SpecHash)
		fmt.Fprintf(formatter.Writer, "  %s\n\n", m.Definition)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote canonical definition to %s\n", outputFile)
	}
	return nil
}
