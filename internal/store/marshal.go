package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/mstate/internal/ir"
)

// marshalSpec converts a definition to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON so the stored text hashes to spec_hash.
func marshalSpec(spec ir.MachineSpec) (string, error) {
	data, err := ir.MarshalCanonical(spec.ToIR())
	if err != nil {
		return "", fmt.Errorf("marshal spec: %w", err)
	}
	return string(data), nil
}

// storedSpec mirrors the canonical encoding of ir.MachineSpec, where DO
// intervals are integer milliseconds.
type storedSpec struct {
	Name        string              `json:"name"`
	Initial     string              `json:"initial"`
	States      []storedState       `json:"states"`
	Transitions []ir.TransitionSpec `json:"transitions"`
}

type storedState struct {
	Name  string          `json:"name"`
	Entry []ir.ActionSpec `json:"entry"`
	Do    []storedDo      `json:"do"`
	Exit  []ir.ActionSpec `json:"exit"`
}

type storedDo struct {
	EveryMS int64         `json:"every_ms"`
	Action  ir.ActionSpec `json:"action"`
}

// unmarshalSpec parses TEXT written by marshalSpec.
func unmarshalSpec(data string) (ir.MachineSpec, error) {
	var s storedSpec
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return ir.MachineSpec{}, fmt.Errorf("unmarshal spec: %w", err)
	}

	spec := ir.MachineSpec{
		Name:        s.Name,
		Initial:     s.Initial,
		Transitions: s.Transitions,
	}
	for _, st := range s.States {
		state := ir.StateSpec{
			Name:  st.Name,
			Entry: nilIfEmpty(st.Entry),
			Exit:  nilIfEmpty(st.Exit),
		}
		for _, d := range st.Do {
			state.Do = append(state.Do, ir.DoSpec{
				Every:  time.Duration(d.EveryMS) * time.Millisecond,
				Action: d.Action,
			})
		}
		spec.States = append(spec.States, state)
	}
	if len(spec.Transitions) == 0 {
		spec.Transitions = nil
	}
	return spec, nil
}

func nilIfEmpty(a []ir.ActionSpec) []ir.ActionSpec {
	if len(a) == 0 {
		return nil
	}
	return a
}
