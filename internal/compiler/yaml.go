package compiler

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mstate/internal/ir"
)

// yamlMachine mirrors the CUE layout. States are a list so that order is
// explicit.
type yamlMachine struct {
	Name    string      `yaml:"name"`
	Initial string      `yaml:"initial"`
	States  []yamlState `yaml:"states"`
}

type yamlState struct {
	Name        string           `yaml:"name"`
	Entry       []yamlAction     `yaml:"entry"`
	Do          []yamlDo         `yaml:"do"`
	Exit        []yamlAction     `yaml:"exit"`
	Transitions []yamlTransition `yaml:"transitions"`
}

type yamlAction struct {
	Log   string `yaml:"log"`
	Fire  string `yaml:"fire"`
	Count string `yaml:"count"`
}

type yamlDo struct {
	Every yaml.Node `yaml:"every"`
	Log   string    `yaml:"log"`
	Fire  string    `yaml:"fire"`
	Count string    `yaml:"count"`
}

type yamlTransition struct {
	To string `yaml:"to"`
	On string `yaml:"on"`
}

// ParseYAML decodes a machine definition from YAML. Unknown fields are
// rejected. The result is not validated; call Validate.
func ParseYAML(data []byte) (*ir.MachineSpec, error) {
	var doc yamlMachine
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, &CompileError{Field: "yaml", Message: err.Error()}
	}

	spec := &ir.MachineSpec{Name: doc.Name, Initial: doc.Initial}
	for i, s := range doc.States {
		state := ir.StateSpec{Name: s.Name}
		for _, a := range s.Entry {
			state.Entry = append(state.Entry, ir.ActionSpec(a))
		}
		for _, a := range s.Exit {
			state.Exit = append(state.Exit, ir.ActionSpec(a))
		}
		for j, d := range s.Do {
			every, err := yamlDuration(&d.Every)
			if err != nil {
				return nil, &CompileError{
					Field:   fmt.Sprintf("states[%d].do[%d].every", i, j),
					Message: fmt.Sprintf("line %d: %v", d.Every.Line, err),
				}
			}
			state.Do = append(state.Do, ir.DoSpec{
				Every:  every,
				Action: ir.ActionSpec{Log: d.Log, Fire: d.Fire, Count: d.Count},
			})
		}
		spec.States = append(spec.States, state)
		for _, tr := range s.Transitions {
			spec.Transitions = append(spec.Transitions, ir.TransitionSpec{
				From:    s.Name,
				To:      tr.To,
				Trigger: tr.On,
			})
		}
	}
	return spec, nil
}

// yamlDuration accepts a Go duration string or integer milliseconds.
func yamlDuration(n *yaml.Node) (time.Duration, error) {
	if n.Kind == 0 {
		return 0, fmt.Errorf("do action requires an interval")
	}
	if n.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("interval must be a scalar")
	}
	switch n.Tag {
	case "!!int":
		var ms int64
		if err := n.Decode(&ms); err != nil {
			return 0, err
		}
		return millis(ms)
	case "!!float":
		return 0, fmt.Errorf("float intervals are forbidden - use integer milliseconds or a duration string")
	}
	return time.ParseDuration(n.Value)
}
