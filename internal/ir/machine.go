package ir

import "time"

// FinalStateName is the reserved state name for both sentinels. As a
// transition target it means StateFinal.
const FinalStateName = "*"

// CompletionTriggerName is the reserved trigger name for TriggerNone.
const CompletionTriggerName = ""

// MachineSpec is a compiled, name-based machine definition. Order of
// States, their actions, and Transitions is declaration order and is
// significant: it is the order the engine runs actions and resolves
// transitions.
type MachineSpec struct {
	Name        string           `json:"name"`
	Initial     string           `json:"initial"`
	States      []StateSpec      `json:"states"`
	Transitions []TransitionSpec `json:"transitions"`
}

// StateSpec declares the actions of one state.
type StateSpec struct {
	Name  string       `json:"name"`
	Entry []ActionSpec `json:"entry,omitempty"`
	Do    []DoSpec     `json:"do,omitempty"`
	Exit  []ActionSpec `json:"exit,omitempty"`
}

// DoSpec is a DO action with its polling interval.
type DoSpec struct {
	Every  time.Duration `json:"every"`
	Action ActionSpec    `json:"action"`
}

// ActionSpec is one built-in action. Exactly one field is set.
type ActionSpec struct {
	Log   string `json:"log,omitempty"`
	Fire  string `json:"fire,omitempty"`
	Count string `json:"count,omitempty"`
}

// Kind returns the name of the set field, or "" when none or several are
// set.
func (a ActionSpec) Kind() string {
	kind := ""
	n := 0
	if a.Log != "" {
		kind, n = "log", n+1
	}
	if a.Fire != "" {
		kind, n = "fire", n+1
	}
	if a.Count != "" {
		kind, n = "count", n+1
	}
	if n != 1 {
		return ""
	}
	return kind
}

// TransitionSpec declares from --trigger--> to. An empty Trigger declares a
// completion transition.
type TransitionSpec struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Trigger string `json:"trigger,omitempty"`
}

// State returns the named state spec.
func (m *MachineSpec) State(name string) (StateSpec, bool) {
	for _, s := range m.States {
		if s.Name == name {
			return s, true
		}
	}
	return StateSpec{}, false
}

// ToIR converts the definition to an IRObject for canonical serialization.
// Durations are encoded as integer milliseconds.
func (m *MachineSpec) ToIR() IRObject {
	states := make(IRArray, len(m.States))
	for i, s := range m.States {
		states[i] = s.toIR()
	}
	transitions := make(IRArray, len(m.Transitions))
	for i, t := range m.Transitions {
		transitions[i] = IRObject{
			"from":    IRString(t.From),
			"to":      IRString(t.To),
			"trigger": IRString(t.Trigger),
		}
	}
	return IRObject{
		"name":        IRString(m.Name),
		"initial":     IRString(m.Initial),
		"states":      states,
		"transitions": transitions,
	}
}

func (s StateSpec) toIR() IRObject {
	entry := make(IRArray, len(s.Entry))
	for i, a := range s.Entry {
		entry[i] = a.toIR()
	}
	do := make(IRArray, len(s.Do))
	for i, d := range s.Do {
		do[i] = IRObject{
			"every_ms": IRInt(d.Every.Milliseconds()),
			"action":   d.Action.toIR(),
		}
	}
	exit := make(IRArray, len(s.Exit))
	for i, a := range s.Exit {
		exit[i] = a.toIR()
	}
	return IRObject{
		"name":  IRString(s.Name),
		"entry": entry,
		"do":    do,
		"exit":  exit,
	}
}

func (a ActionSpec) toIR() IRObject {
	obj := IRObject{}
	if a.Log != "" {
		obj["log"] = IRString(a.Log)
	}
	if a.Fire != "" {
		obj["fire"] = IRString(a.Fire)
	}
	if a.Count != "" {
		obj["count"] = IRString(a.Count)
	}
	return obj
}
