package sequence

import (
	"fmt"
	"sync/atomic"
)

// Sequencer hands out the journal sequence numbers. Numbers are strictly
// increasing and never reused; after replay it resumes past the last
// applied record.
type Sequencer struct {
	last atomic.Uint64
}

// New starts a sequencer whose first Next returns last+1.
func New(last uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(last)
	return s
}

// Next reserves the next sequence number.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current is the most recently reserved number, 0 if none.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Resume moves the sequencer forward to seq after a replay. Moving it
// backwards would hand out duplicate numbers, so that is refused.
func (s *Sequencer) Resume(seq uint64) error {
	for {
		cur := s.last.Load()
		if seq < cur {
			return fmt.Errorf("sequencer: resume to %d behind current %d", seq, cur)
		}
		if s.last.CompareAndSwap(cur, seq) {
			return nil
		}
	}
}
