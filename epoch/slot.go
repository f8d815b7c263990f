package epoch

import (
	"sync/atomic"

	"github.com/zeebo/smr/machine"
)

// unannounced marks a slot belonging to a released handle: the collector
// must never let a released slot pin the min-epoch computation forever.
const unannounced = ^uint64(0)

// slot is one per-core announce cell, padded to occupy its own cache
// line so a worker's announce is a private write in its own L1 and the
// collector's read traffic does not fight neighboring cores for the line.
type slot struct {
	machine.Padded[atomic.Uint64]
}

func (s *slot) init() {
	s.Value.Store(unannounced)
}
