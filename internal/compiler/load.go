package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/mstate/internal/ir"
)

// CompileCUE compiles CUE source and returns its machines in source order.
// filename is only used for error positions.
func CompileCUE(filename string, src []byte) ([]*ir.MachineSpec, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileMachines(v)
}

// LoadFile reads a definition from a .cue, .yaml or .yml file. A CUE
// file may hold several machines; name selects one and may be empty when
// the file holds exactly one. YAML files hold a single machine and name,
// if set, must match it.
func LoadFile(path, name string) (*ir.MachineSpec, error) {
	specs, err := LoadFileMachines(path)
	if err != nil {
		return nil, err
	}
	return Select(specs, name)
}

// LoadFileMachines reads every machine defined in a .cue, .yaml or .yml
// file, in source order.
func LoadFileMachines(path string) ([]*ir.MachineSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		return CompileCUE(path, data)
	case ".yaml", ".yml":
		spec, err := ParseYAML(data)
		if err != nil {
			return nil, err
		}
		return []*ir.MachineSpec{spec}, nil
	default:
		return nil, fmt.Errorf("unsupported definition format %q: want .cue, .yaml or .yml", ext)
	}
}

// Select picks the machine called name, or the only machine when name is
// empty.
func Select(specs []*ir.MachineSpec, name string) (*ir.MachineSpec, error) {
	if name == "" {
		if len(specs) != 1 {
			return nil, fmt.Errorf("%d machines defined, choose one with --machine", len(specs))
		}
		return specs[0], nil
	}
	for _, s := range specs {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("machine %q not defined", name)
}
