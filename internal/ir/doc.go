// Package ir provides the shared types of mstate: state, trigger and
// machine identifiers with their reserved sentinels, phases, wake
// directives, trace events, compiled machine definitions, and canonical
// JSON for hashing and golden traces.
//
// All other internal packages import ir; ir imports nothing internal.
//
// Key constraints:
//   - identifiers are opaque integers compared by equality only
//   - no float types: durations and clocks are integer milliseconds
//   - ordering of trace events uses the logical Seq, never AtMS
package ir
