package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/mstate/internal/compiler"
	"github.com/roach88/mstate/internal/ir"
)

// LoadResult contains the machines loaded from a definition path.
type LoadResult struct {
	Machines  []*ir.MachineSpec
	FileCount int // Number of definition files read
}

// LoadError represents an error that occurred while loading definitions.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDefinitions loads every machine from path. A directory is loaded as
// one CUE package; a file is read by extension (.cue, .yaml, .yml).
func LoadDefinitions(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definition not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definition: %v", err)}
	}

	if !info.IsDir() {
		specs, err := compiler.LoadFileMachines(path)
		if err != nil {
			return nil, convertCompileError(err, path)
		}
		return &LoadResult{Machines: specs, FileCount: 1}, nil
	}

	cueFiles, err := FindCUEFiles(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	specs, err := compiler.CompileMachines(value)
	if err != nil {
		return nil, convertCompileError(err, path)
	}
	return &LoadResult{Machines: specs, FileCount: len(cueFiles)}, nil
}

// LoadDefinition loads path and selects one machine. machine may be empty
// when path defines exactly one.
func LoadDefinition(path, machine string) (*ir.MachineSpec, error) {
	result, err := LoadDefinitions(path)
	if err != nil {
		return nil, err
	}
	spec, err := compiler.Select(result.Machines, machine)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeSelect, Message: err.Error()}
	}
	return spec, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	if errors.Is(err, os.ErrNotExist) {
		return &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeSyntax      = "E008" // CUE or YAML syntax error
	ErrCodeSelect      = "E009" // Machine selection failed
)

// MapFieldToErrorCode maps a compiler error field to an error code. Fields
// that correspond to a validation rule share its code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue", field == "yaml":
		return ErrCodeSyntax
	case field == "initial":
		return compiler.ErrInvalidInitial
	case field == "state", field == "machine":
		return compiler.ErrMachineNoStates
	case strings.HasSuffix(field, ".every"):
		return compiler.ErrInvalidInterval
	case strings.HasSuffix(field, ".to"):
		return compiler.ErrUndefinedState
	case strings.HasPrefix(field, "state."):
		return compiler.ErrInvalidAction
	default:
		return ErrCodeGeneric
	}
}
