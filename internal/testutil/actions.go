package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/mstate/internal/ir"
)

// CallLog records action invocations in call order.
//
// Thread-safety: safe for concurrent use.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// NewCallLog returns an empty log.
func NewCallLog() *CallLog {
	return &CallLog{}
}

func (l *CallLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

// Calls returns a copy of the recorded calls.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// Count returns how many recorded calls equal call.
func (l *CallLog) Count(call string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c == call {
			n++
		}
	}
	return n
}

// Reset clears the log.
func (l *CallLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// Action returns a recording action labelled label.
func (l *CallLog) Action(label string) *RecordingAction {
	return &RecordingAction{log: l, label: label}
}

// RecordingAction implements the engine's entry, DO, and exit action
// interfaces. Calls are recorded as "entry:<label>(<prev>)", "do:<label>",
// and "exit:<label>(<next>)" with state ids printed as integers.
type RecordingAction struct {
	log   *CallLog
	label string

	// Err, if set, is returned from every call after it is recorded.
	Err error

	// Hook, if set, runs after the call is recorded.
	Hook func()
}

// Failing sets the error the action returns and returns the action.
func (a *RecordingAction) Failing(err error) *RecordingAction {
	a.Err = err
	return a
}

// Then sets a hook run on every call and returns the action.
func (a *RecordingAction) Then(fn func()) *RecordingAction {
	a.Hook = fn
	return a
}

func (a *RecordingAction) done() error {
	if a.Hook != nil {
		a.Hook()
	}
	return a.Err
}

func (a *RecordingAction) OnEntry(prev ir.StateID) error {
	a.log.add(fmt.Sprintf("entry:%s(%d)", a.label, int(prev)))
	return a.done()
}

func (a *RecordingAction) OnDo() error {
	a.log.add("do:" + a.label)
	return a.done()
}

func (a *RecordingAction) OnExit(next ir.StateID) error {
	a.log.add(fmt.Sprintf("exit:%s(%d)", a.label, int(next)))
	return a.done()
}
