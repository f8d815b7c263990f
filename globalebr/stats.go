//go:build smrdebug

package globalebr

import "sync/atomic"

// stats counts retired and freed payloads, in the spirit of
// GlobalWriteEM's freed_count counter from the original C++ source,
// gated behind the smrdebug build tag. Epoch creation, freeing, joins
// and leaves are not counted.
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
func (m *Manager[G]) Stats() Stats {
	return Stats{
		Retired: m.statsRec.retired.Load(),
		Freed:   m.statsRec.freed.Load(),
	}
}
