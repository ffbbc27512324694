// Package scheduler turns the wake directives returned by engine.Machine.Run
// into event-loop work.
//
// The platform side is two small interfaces: Bus delivers per-machine wake
// events, Timers provides one-shot and periodic callbacks. Loop implements
// both on real time with a single goroutine; Manual implements both over a
// clock.Virtual for deterministic tests and the scenario harness.
//
// An Adapter binds one machine to a Bus and Timers. Several adapters, each
// with its own machine id, may share one Loop.
package scheduler
