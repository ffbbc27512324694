// Package engine implements the mstate phase engine.
//
// A Machine owns the declarations of one state machine (entry, DO, and exit
// actions, plus transitions), a FIFO trigger queue, and the phase variable
// that drives it through Start, Into, Enter, Do, Transit, and Exit.
//
// Run advances the machine until it suspends and returns an ir.Wake telling
// the caller when it needs to run again. The engine never sleeps and never
// spawns goroutines; package scheduler turns wake directives into timer and
// event-loop registrations.
//
// Concurrency: Fire and Start may be called from any goroutine, including
// from inside action callbacks. Run must not be called concurrently with
// itself; a nested call is rejected with ErrCodeReentrantRun. Declarations
// are closed once Start has been accepted.
//
// Ordering: actions of one kind run in declaration order, triggers are
// drained in arrival order, and the first declared transition that matches
// a trigger wins. Trace events carry a logical sequence number from
// Sequence; wall-clock time never orders anything.
package engine
