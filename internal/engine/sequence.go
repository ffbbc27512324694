package engine

import "sync/atomic"

// Sequence is a monotonic logical counter used to stamp trace events.
//
// Each Next call returns a value strictly greater than the previous one.
// Sequence numbers are the only ordering for trace events; AtMS is
// informational.
//
// Safe for concurrent use.
type Sequence struct {
	seq atomic.Int64
}

// NewSequence returns a sequence whose first Next is 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next increments and returns the next sequence number.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last value handed out, without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
