package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mstate/internal/compiler"
	"github.com/roach88/mstate/internal/ir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definition is a path to a .cue or .yaml definition, relative to the
	// scenario file. Exactly one of Definition and Machine is set.
	Definition string `yaml:"definition,omitempty"`

	// MachineName selects a machine from a CUE file defining several.
	MachineName string `yaml:"machine_name,omitempty"`

	// Machine is an inline definition in the YAML definition format.
	Machine *yaml.Node `yaml:"machine,omitempty"`

	// Queue overrides the trigger queue capacity.
	Queue int `yaml:"queue,omitempty"`

	// Poll overrides the adapter poll interval ("0" disables it).
	Poll string `yaml:"poll,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: final_state, final_phase, trace_contains,
	// trace_order, trace_count, counter
	Assertions []Assertion `yaml:"assertions"`

	// RunID is an optional fixed run id. Defaults to "scenario-<name>".
	RunID string `yaml:"run_id,omitempty"`
}

// Step is one scenario action. Exactly one of Start, Fire, Run, and
// Advance is set.
type Step struct {
	// Start enters the named state; "" uses the definition's initial state.
	Start *string `yaml:"start,omitempty"`

	// Fire queues the named trigger.
	Fire string `yaml:"fire,omitempty"`

	// Run drains pending wakes without moving the clock.
	Run *RunStep `yaml:"run,omitempty"`

	// Advance moves the virtual clock, e.g. "600ms".
	Advance string `yaml:"advance,omitempty"`

	// Expect is the expected acceptance of a start or fire step.
	// Defaults to true.
	Expect *bool `yaml:"expect,omitempty"`
}

// RunStep is the body of a run step. It has no options yet.
type RunStep struct{}

// Kind names the step's action.
func (s Step) Kind() string {
	switch {
	case s.Start != nil:
		return StepStart
	case s.Fire != "":
		return StepFire
	case s.Run != nil:
		return StepRun
	case s.Advance != "":
		return StepAdvance
	}
	return ""
}

// Expected reports whether the start or fire is expected to be accepted.
func (s Step) Expected() bool {
	return s.Expect == nil || *s.Expect
}

// Step kinds.
const (
	StepStart   = "start"
	StepFire    = "fire"
	StepRun     = "run"
	StepAdvance = "advance"
)

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type, one of the Assert* constants.
	Type string `yaml:"type"`

	// State is the expected final state (final_state) or the state filter
	// of a trace event (trace_contains, trace_count).
	State string `yaml:"state,omitempty"`

	// Phase is the expected final phase (final_phase), e.g. "Do".
	Phase string `yaml:"phase,omitempty"`

	// Event is a trace kind such as "enter" or "do".
	Event string `yaml:"event,omitempty"`

	// Trigger filters trace_contains and trace_count by trigger name.
	Trigger string `yaml:"trigger,omitempty"`

	// Events is the expected order of "kind" or "kind:state" tokens
	// (trace_order). Intervening events are allowed.
	Events []string `yaml:"events,omitempty"`

	// Name is the counter name (counter).
	Name string `yaml:"name,omitempty"`

	// Count is the expected number (trace_count, counter).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertFinalState    = "final_state"
	AssertFinalPhase    = "final_phase"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertCounter       = "counter"
)

var traceKinds = map[string]bool{
	string(ir.TraceStart):     true,
	string(ir.TraceInto):      true,
	string(ir.TraceEnter):     true,
	string(ir.TraceDo):        true,
	string(ir.TraceExit):      true,
	string(ir.TraceTransit):   true,
	string(ir.TraceDiscard):   true,
	string(ir.TraceFire):      true,
	string(ir.TraceReject):    true,
	string(ir.TraceTerminate): true,
	string(ir.TracePanic):     true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// The definition path is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving a relative definition
// path against baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Definition != "" && !filepath.IsAbs(scenario.Definition) && baseDir != "" {
		scenario.Definition = filepath.Join(baseDir, scenario.Definition)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDefinition compiles and validates the scenario's machine.
func (s *Scenario) LoadDefinition() (*ir.MachineSpec, error) {
	var (
		spec *ir.MachineSpec
		err  error
	)
	if s.Machine != nil {
		var data []byte
		data, err = yaml.Marshal(s.Machine)
		if err != nil {
			return nil, fmt.Errorf("inline machine: %w", err)
		}
		spec, err = compiler.ParseYAML(data)
	} else {
		spec, err = compiler.LoadFile(s.Definition, s.MachineName)
	}
	if err != nil {
		return nil, fmt.Errorf("load definition: %w", err)
	}

	if errs := compiler.Validate(spec); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid definition %s:\n  %s", spec.Name, strings.Join(msgs, "\n  "))
	}
	return spec, nil
}

// PollInterval returns the configured poll interval. ok is false when
// the scenario keeps the adapter default.
func (s *Scenario) PollInterval() (d time.Duration, ok bool, err error) {
	if s.Poll == "" {
		return 0, false, nil
	}
	if s.Poll == "0" {
		return 0, true, nil
	}
	d, err = time.ParseDuration(s.Poll)
	if err != nil {
		return 0, false, fmt.Errorf("poll: %w", err)
	}
	return d, true, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Definition == "" && s.Machine == nil:
		return fmt.Errorf("definition or machine is required")
	case s.Definition != "" && s.Machine != nil:
		return fmt.Errorf("definition and machine are mutually exclusive")
	}

	if s.Definition != "" {
		if _, err := os.Stat(s.Definition); os.IsNotExist(err) {
			return fmt.Errorf("definition file not found: %s", s.Definition)
		}
	}

	if s.Queue < 0 {
		return fmt.Errorf("queue must be non-negative")
	}
	if _, _, err := s.PollInterval(); err != nil {
		return err
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step Step) error {
	set := 0
	if step.Start != nil {
		set++
	}
	if step.Fire != "" {
		set++
	}
	if step.Run != nil {
		set++
	}
	if step.Advance != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of start, fire, run, advance is required", index)
	}

	switch step.Kind() {
	case StepAdvance:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: advance must be non-negative", index)
		}
	case StepRun:
	default:
		return nil
	}
	if step.Expect != nil {
		return fmt.Errorf("steps[%d]: expect applies to start and fire only", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
	case AssertFinalPhase:
		if _, err := ir.ParsePhase(a.Phase); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertTraceContains, AssertTraceCount:
		if !traceKinds[a.Event] {
			return fmt.Errorf("assertions[%d]: unknown trace event %q for %s", index, a.Event, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
		for _, tok := range a.Events {
			kind, _, _ := strings.Cut(tok, ":")
			if !traceKinds[kind] {
				return fmt.Errorf("assertions[%d]: unknown trace event %q in trace_order", index, kind)
			}
		}
	case AssertCounter:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for counter", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
