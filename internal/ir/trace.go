package ir

// TraceKind names what the phase engine did.
type TraceKind string

const (
	TraceStart     TraceKind = "start"     // machine seeded with its default state
	TraceInto      TraceKind = "into"      // active subsets recomputed for State
	TraceEnter     TraceKind = "enter"     // entry action ran; Other = previous state
	TraceDo        TraceKind = "do"        // DO action fired
	TraceExit      TraceKind = "exit"      // exit action ran; Other = next state
	TraceTransit   TraceKind = "transit"   // transition adopted; State -> Other via Trigger
	TraceDiscard   TraceKind = "discard"   // dequeued trigger matched nothing
	TraceFire      TraceKind = "fire"      // trigger queued
	TraceReject    TraceKind = "reject"    // trigger refused by a full queue
	TraceTerminate TraceKind = "terminate" // machine reached FINAL and went idle
	TracePanic     TraceKind = "panic"     // machine halted
)

// TraceEvent is one observable step of a machine run.
//
// Seq is a logical sequence number, strictly increasing per machine. AtMS
// is the machine clock in milliseconds since the machine was created and
// is informational only; ordering always uses Seq.
type TraceEvent struct {
	Seq     int64     `json:"seq"`
	Machine MachineID `json:"machine"`
	Kind    TraceKind `json:"kind"`
	State   StateID   `json:"state"`
	Other   StateID   `json:"other"`
	Trigger TriggerID `json:"trigger"`
	Phase   Phase     `json:"phase"`
	AtMS    int64     `json:"at_ms"`
	Detail  string    `json:"detail,omitempty"`
}
