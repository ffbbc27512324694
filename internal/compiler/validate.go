package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/mstate/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrMachineNameEmpty    = "E101" // machine name is required
	ErrMachineNoStates     = "E102" // at least one state required
	ErrInvalidInitial      = "E103" // initial state missing or undeclared
	ErrDuplicateName       = "E104" // duplicate state name
	ErrReservedName        = "E105" // "*" or "" used as a state name
	ErrInvalidAction       = "E106" // action must set exactly one kind
	ErrInvalidInterval     = "E107" // do interval must be positive
	ErrUndefinedState      = "E108" // transition references an undeclared state
	ErrInvalidCounterName  = "E109" // count target is not an identifier
	ErrInvalidTransitionTo = "E110" // transition from a state to INITIAL
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// counterPattern matches counter names: identifiers with dots and dashes.
var counterPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// Validate checks a compiled machine definition.
// Returns all errors found (does not fail-fast).
func Validate(spec *ir.MachineSpec) []ValidationError {
	var errs []ValidationError

	// E101: name is required
	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "machine name is required and must be non-empty",
			Code:    ErrMachineNameEmpty,
		})
	}

	// E102: at least one state
	if len(spec.States) == 0 {
		errs = append(errs, ValidationError{
			Field:   "states",
			Message: "at least one state is required",
			Code:    ErrMachineNoStates,
		})
	}

	declared := make(map[string]bool)
	for i, state := range spec.States {
		field := fmt.Sprintf("states[%d]", i)

		// E105: reserved names
		if state.Name == ir.FinalStateName || strings.TrimSpace(state.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("state name %q is reserved", state.Name),
				Code:    ErrReservedName,
			})
		}

		// E104: duplicates, compared the way the name table resolves them
		key := norm.NFC.String(state.Name)
		if declared[key] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate state name: %q", state.Name),
				Code:    ErrDuplicateName,
			})
		}
		declared[key] = true

		for j, a := range state.Entry {
			errs = append(errs, validateAction(a, fmt.Sprintf("%s.entry[%d]", field, j))...)
		}
		for j, d := range state.Do {
			doField := fmt.Sprintf("%s.do[%d]", field, j)
			// E107: positive interval
			if d.Every <= 0 {
				errs = append(errs, ValidationError{
					Field:   doField + ".every",
					Message: fmt.Sprintf("interval must be positive, got %s", d.Every),
					Code:    ErrInvalidInterval,
				})
			}
			errs = append(errs, validateAction(d.Action, doField)...)
		}
		for j, a := range state.Exit {
			errs = append(errs, validateAction(a, fmt.Sprintf("%s.exit[%d]", field, j))...)
		}
	}

	// E103: initial must be a declared state
	if spec.Initial == "" || spec.Initial == ir.FinalStateName || !declared[norm.NFC.String(spec.Initial)] {
		errs = append(errs, ValidationError{
			Field:   "initial",
			Message: fmt.Sprintf("initial state %q is not a declared state", spec.Initial),
			Code:    ErrInvalidInitial,
		})
	}

	for i, tr := range spec.Transitions {
		field := fmt.Sprintf("transitions[%d]", i)

		// E108: from must be declared; "*" is never a source
		if !declared[norm.NFC.String(tr.From)] || tr.From == ir.FinalStateName {
			errs = append(errs, ValidationError{
				Field:   field + ".from",
				Message: fmt.Sprintf("transition source %q is not a declared state", tr.From),
				Code:    ErrUndefinedState,
			})
		}

		// E108: to must be declared or "*"
		if tr.To != ir.FinalStateName && !declared[norm.NFC.String(tr.To)] {
			code := ErrUndefinedState
			if tr.To == "" {
				code = ErrInvalidTransitionTo
			}
			errs = append(errs, ValidationError{
				Field:   field + ".to",
				Message: fmt.Sprintf("transition target %q is not a declared state", tr.To),
				Code:    code,
			})
		}
	}

	return errs
}

// validateAction checks one built-in action.
func validateAction(a ir.ActionSpec, field string) []ValidationError {
	var errs []ValidationError

	// E106: exactly one kind
	if a.Kind() == "" {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "action must set exactly one of log, fire, count",
			Code:    ErrInvalidAction,
		})
		return errs
	}

	// E109: counter names
	if a.Count != "" && !counterPattern.MatchString(a.Count) {
		errs = append(errs, ValidationError{
			Field:   field + ".count",
			Message: fmt.Sprintf("invalid counter name %q", a.Count),
			Code:    ErrInvalidCounterName,
		})
	}
	return errs
}
