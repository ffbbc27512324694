// Package harness runs conformance scenarios against machine definitions.
//
// A scenario binds one definition to a fresh engine machine driven by a
// deterministic scheduler, plays a list of steps, and checks assertions
// against the resulting trace, final state, and counters.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: blinker_toggles
//	description: "Toggle on, blink three times, toggle off"
//	definition: ../definitions/blinker.cue   # relative to the scenario
//	steps:
//	  - start: ""          # "" means the definition's initial state
//	  - fire: toggle
//	  - run: {}
//	  - advance: 1000ms
//	assertions:
//	  - type: final_state
//	    state: On
//	  - type: trace_order
//	    events: ["exit:Off", "enter:On"]
//	  - type: trace_count
//	    event: do
//	    state: On
//	    count: 3
//	  - type: counter
//	    name: blinks
//	    count: 3
//
// The definition may instead be given inline under "machine:" in the
// YAML definition format.
//
// # Steps
//
//   - start: enter the named state (or the initial state); expect: false
//     asserts the start is rejected
//   - fire: queue a trigger; expect: false asserts the queue rejects it
//   - run: run the machine until it needs nothing more without moving time
//   - advance: move the virtual clock, firing DO timers and polls on the way
//
// Start and fire only queue work; run and advance execute it. All pending
// work is drained once more after the last step.
//
// # Assertion Types
//
//   - final_state: the machine's state after the last step
//   - final_phase: the machine's phase after the last step
//   - trace_contains: an event of the given kind (and state/trigger) exists
//   - trace_order: "kind" or "kind:state" tokens appear in this order
//   - trace_count: exactly count events of the kind (and state) exist
//   - counter: a count action counter has the given value
//
// # Deterministic Testing
//
// Every scenario runs on a clock.Virtual starting at clock.Epoch, a
// scheduler.Manual, a fixed run id, and an in-memory store. Identical
// scenarios therefore produce byte-identical traces, which RunWithGolden
// compares against files under testdata/golden.
package harness
