//go:build smrdebug

package varlen

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash"
)

// stats holds debug-mode counters and, per retired chunk, a checksum of
// its bytes at the moment of retirement. The checksum has no role in
// correctness. It is only recorded: nothing in this package compares it
// against the chunk's contents later.
type stats struct {
	allocated atomic.Uint64
	freed     atomic.Uint64

	mu          sync.Mutex
	checksums   map[*Chunk]uint64
}

func (s *stats) addAllocated(n int) { s.allocated.Add(uint64(n)) }
func (s *stats) addFreed(n int)     { s.freed.Add(uint64(n)) }

func (s *stats) noteRetired(c *Chunk) {
	sum := xxhash.Sum64(c.data)
	s.mu.Lock()
	if s.checksums == nil {
		s.checksums = make(map[*Chunk]uint64)
	}
	s.checksums[c] = sum
	s.mu.Unlock()
}

// Stats reports how many allocations have been served and how many
// chunks have been freed so far.
type Stats struct {
	Allocated uint64
	Freed     uint64
}

// Stats returns a snapshot of the Pool's debug counters. Only
// meaningful when built with the smrdebug tag; otherwise both fields
// read zero.
func (p *Pool) Stats() Stats {
	return Stats{
		Allocated: p.statsRec.allocated.Load(),
		Freed:     p.statsRec.freed.Load(),
	}
}
