package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", event.Seq, event.Token())
			if event.Other != "" {
				fmt.Fprintf(&buf, " other=%s", event.Other)
			}
			if event.Trigger != "" {
				fmt.Fprintf(&buf, " trigger=%s", event.Trigger)
			}
			fmt.Fprintf(&buf, " phase=%s at=%dms\n", event.Phase, event.AtMS)
		}
	}

	return buf.String()
}

// matches reports whether event satisfies the kind/state/trigger filter
// of an assertion. Empty filters match anything.
func matches(event TraceEvent, a Assertion) bool {
	if event.Kind != a.Event {
		return false
	}
	if a.State != "" && event.State != a.State {
		return false
	}
	if a.Trigger != "" && event.Trigger != a.Trigger {
		return false
	}
	return true
}

func describe(a Assertion) string {
	desc := a.Event
	if a.State != "" {
		desc += " in " + a.State
	}
	if a.Trigger != "" {
		desc += " on " + a.Trigger
	}
	return desc
}

func assertFinalState(result *Result, a Assertion) error {
	if result.FinalState == a.State {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("state %s", a.State),
		Actual:   fmt.Sprintf("state %s", result.FinalState),
		Trace:    result.Trace,
	}
}

func assertFinalPhase(result *Result, a Assertion) error {
	if result.FinalPhase == a.Phase {
		return nil
	}
	actual := fmt.Sprintf("phase %s", result.FinalPhase)
	if result.Halt != "" {
		actual += fmt.Sprintf(" (halted: %s)", result.Halt)
	}
	return &AssertionError{
		Type:     AssertFinalPhase,
		Expected: fmt.Sprintf("phase %s", a.Phase),
		Actual:   actual,
		Trace:    result.Trace,
	}
}

// assertTraceContains checks that at least one event matches.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if matches(event, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the tokens appear in the specified order.
// Tokens don't need to be consecutive, and each token is matched after
// the previous match, so repeated tokens require repeated events.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for i, want := range a.Events {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if tokenMatches(event, want) {
				found = true
				break
			}
		}
		if !found {
			actual := fmt.Sprintf("%s not found after %v", want, a.Events[:i])
			if i == 0 {
				actual = fmt.Sprintf("%s not found", want)
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual:   actual,
				Trace:    trace,
			}
		}
	}
	return nil
}

// tokenMatches compares against "kind" or "kind:state".
func tokenMatches(event TraceEvent, token string) bool {
	kind, state, hasState := strings.Cut(token, ":")
	if event.Kind != kind {
		return false
	}
	return !hasState || event.State == state
}

// assertTraceCount checks that exactly Count events match.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if matches(event, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertCounter(result *Result, a Assertion) error {
	got := result.Counters[a.Name]
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertCounter,
		Expected: fmt.Sprintf("counter %s = %d", a.Name, a.Count),
		Actual:   fmt.Sprintf("counter %s = %d", a.Name, got),
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertFinalPhase:
			err = assertFinalPhase(result, assertion)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertCounter:
			err = assertCounter(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
