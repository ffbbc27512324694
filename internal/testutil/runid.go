package testutil

import "sync"

// FixedRunIDs returns predetermined run ids in order.
//
// This makes recorded runs deterministic so store contents and golden
// files can be compared byte for byte.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedRunIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedRunIDs creates a generator that returns ids in order.
//
//	gen := NewFixedRunIDs("run-1", "run-2")
//	gen.Generate() // "run-1"
//	gen.Generate() // "run-2"
//	gen.Generate() // panic: all ids exhausted
func NewFixedRunIDs(ids ...string) *FixedRunIDs {
	return &FixedRunIDs{ids: ids}
}

// Generate returns the next id. Panics once all ids have been consumed,
// which catches tests that record more runs than they expect.
func (g *FixedRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedRunIDs: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
