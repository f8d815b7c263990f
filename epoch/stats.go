//go:build smrdebug

package epoch

import "sync/atomic"

// stats holds debug-mode counters mirroring LocalWriteEM's
// node_freed_count / node_left_count from the original C++ source. They
// only cost an atomic increment when the smrdebug build tag is set.
type stats struct {
	retired atomic.Uint64
	freed   atomic.Uint64
}

func (s *stats) addRetired(n int) { s.retired.Add(uint64(n)) }
func (s *stats) addFreed(n int)   { s.freed.Add(uint64(n)) }

// Stats reports how many entries have been retired and freed so far.
type Stats struct {
	Retired uint64
	Freed   uint64
}

// Stats returns a snapshot of the Manager's debug counters. Only
// meaningful when built with the smrdebug tag; otherwise both fields
// read zero.
func (m *Manager) Stats() Stats {
	return Stats{
		Retired: m.statsRec.retired.Load(),
		Freed:   m.statsRec.freed.Load(),
	}
}
