package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/mstate/internal/ir"
)

// RuntimeError represents an error detected while declaring, feeding, or
// running a machine.
//
// Halting errors (PANIC, ACTION_FAILED) leave the machine in PhasePanic;
// every later Run returns the same error. The others are returned to the
// caller and leave the machine untouched.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Machine identifies the affected machine.
	Machine ir.MachineID

	// State is the current state when the error was raised.
	State ir.StateID

	// Phase is the phase the engine was in.
	Phase ir.Phase

	// Err is the underlying cause, typically an action's error.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodePanic indicates the phase variable held an invalid value.
	ErrCodePanic RuntimeErrorCode = "PANIC"

	// ErrCodeActionFailed indicates an entry, DO, or exit action returned
	// an error.
	ErrCodeActionFailed RuntimeErrorCode = "ACTION_FAILED"

	// ErrCodeQueueFull indicates Fire found the trigger queue at capacity.
	ErrCodeQueueFull RuntimeErrorCode = "QUEUE_FULL"

	// ErrCodeDeclareAfterStart indicates a Declare call after Start.
	ErrCodeDeclareAfterStart RuntimeErrorCode = "DECLARE_AFTER_START"

	// ErrCodeInvalidDeclaration indicates a declaration on a reserved
	// state or with a nil action.
	ErrCodeInvalidDeclaration RuntimeErrorCode = "INVALID_DECLARATION"

	// ErrCodeInvalidTrigger indicates Fire was called with TriggerNone.
	ErrCodeInvalidTrigger RuntimeErrorCode = "INVALID_TRIGGER"

	// ErrCodeReentrantRun indicates Run was called while already running.
	ErrCodeReentrantRun RuntimeErrorCode = "REENTRANT_RUN"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s (machine=%d, state=%s, phase=%s)",
		e.Code, e.Message, e.Machine, e.State, e.Phase)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, codes ...RuntimeErrorCode) bool {
	var re *RuntimeError
	if !errors.As(err, &re) {
		return false
	}
	for _, c := range codes {
		if re.Code == c {
			return true
		}
	}
	return false
}

// IsHaltError reports whether err halted a machine (PANIC or
// ACTION_FAILED).
func IsHaltError(err error) bool {
	return hasCode(err, ErrCodePanic, ErrCodeActionFailed)
}

// IsQueueFullError reports whether err is a queue overflow.
func IsQueueFullError(err error) bool {
	return hasCode(err, ErrCodeQueueFull)
}

// IsDeclareError reports whether err rejected a declaration.
func IsDeclareError(err error) bool {
	return hasCode(err, ErrCodeDeclareAfterStart, ErrCodeInvalidDeclaration)
}

// IsReentrantError reports whether err is a nested Run.
func IsReentrantError(err error) bool {
	return hasCode(err, ErrCodeReentrantRun)
}
