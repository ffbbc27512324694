package engine

import "github.com/roach88/mstate/internal/ir"

// Observer receives every trace event a machine emits.
//
// Observe is called synchronously from Run, and from Fire when triggers are
// queued; implementations must be safe for concurrent use when Fire is
// called from goroutines other than the one driving Run. Observe must not
// call back into the machine's Run.
type Observer interface {
	Observe(ev ir.TraceEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev ir.TraceEvent)

func (f ObserverFunc) Observe(ev ir.TraceEvent) { f(ev) }

// MultiObserver fans events out to each observer in order.
type MultiObserver []Observer

func (m MultiObserver) Observe(ev ir.TraceEvent) {
	for _, o := range m {
		if o != nil {
			o.Observe(ev)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(ir.TraceEvent) {}
