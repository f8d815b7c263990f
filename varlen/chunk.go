package varlen

import (
	"sync/atomic"
	"unsafe"

	"github.com/zeebo/smr/internal/debug"
	"github.com/zeebo/smr/internal/risky"
)

// backPtrSize is the width of the back-pointer word stashed immediately
// before every allocation's returned address, letting Release locate
// the owning Chunk without the caller tracking it.
const backPtrSize = uintptr(unsafe.Sizeof(uintptr(0)))

// allocAlign is the alignment every allocation's returned address is
// rounded up to preserve. Padding the requested size, rather than the
// backPtrSize-wide back-pointer slot ahead of it, keeps every bump
// offset an allocAlign multiple by induction from the chunk's offset
// starting at zero, so both the back-pointer word and the address
// handed back stay aligned across a run of odd-sized allocations.
const allocAlign = 8

// alignUp rounds n up to the next allocAlign multiple.
func alignUp(n uint64) uint64 {
	return (n + allocAlign - 1) &^ (allocAlign - 1)
}

// packHeader and unpackHeader fold the original C++ ChunkHeader's two
// CAS'd uint32 fields, plus a retired flag, into one uint64, since Go's
// atomic package has no native double-word compare-and-swap. Bit 63 is
// the retired flag, bits 32-62 are the reference count, and the low 32
// bits are the bump offset. Folding retired into the same word as the
// reference count, rather than tracking it in a separate atomic.Bool,
// makes "mark retired" and "bump the reference count" mutually
// exclusive: whichever happens first is the one the single CAS
// observes, so a chunk can never be marked retired out from under an
// allocation that is concurrently claiming its last free bytes.
func packHeader(retired bool, ref, offset uint32) uint64 {
	h := uint64(ref&0x7fffffff)<<32 | uint64(offset)
	if retired {
		h |= 1 << 63
	}
	return h
}

func unpackHeader(h uint64) (retired bool, ref, offset uint32) {
	retired = h&(1<<63) != 0
	ref = uint32((h >> 32) & 0x7fffffff)
	offset = uint32(h)
	return retired, ref, offset
}

// Chunk is one node of a pool's chunk list: a contiguous byte arena
// bump-allocated from the front, plus a header CAS'd on every Allocate
// and Release. Its data slice is nilled out by the reclaimer's free
// callback once it is safe to drop the last reference to the
// underlying array, at which point Go's GC reclaims the memory; the
// Chunk struct itself, being tiny and referenced by the list's next
// pointers, is left in place.
type Chunk struct {
	hdr  atomic.Uint64
	next atomic.Pointer[Chunk]

	data []byte
	size uint32
}

func newChunk(size uint32) *Chunk {
	return &Chunk{data: make([]byte, size), size: size}
}

// allocate carves backPtrSize+align(sz) bytes off the front of c,
// rounding sz up to allocAlign so the returned address stays aligned
// across a run of odd-sized allocations. On success it stashes a
// back-pointer to c immediately before the returned address and
// increments c's reference count in the same CAS as the bump. It
// returns ok=false, without side effects, if c does not have enough
// room, or if c has already been marked retired; either way the caller
// must retry against a fresh chunk.
func (c *Chunk) allocate(sz uint32) (ptr unsafe.Pointer, ok bool) {
	alignedSz := alignUp(uint64(sz))

	for {
		old := c.hdr.Load()
		retired, ref, offset := unpackHeader(old)
		if retired {
			return nil, false
		}

		need := uint64(offset) + alignedSz + uint64(backPtrSize)
		if need > uint64(c.size) {
			return nil, false
		}

		next := packHeader(false, ref+1, uint32(need))
		if !c.hdr.CompareAndSwap(old, next) {
			continue
		}

		slot := risky.Index(unsafe.Pointer(&c.data), 1, uintptr(offset))
		*slot = unsafe.Pointer(c)
		return risky.Advance(unsafe.Pointer(slot), backPtrSize), true
	}
}

// release decrements c's reference count and reports the count that
// resulted, so the caller can decide whether c has become eligible for
// retirement. It preserves c's retired flag unchanged: a chunk marked
// retired while allocations from before that point are still
// outstanding must stay retired as those allocations drain.
func (c *Chunk) release() uint32 {
	for {
		old := c.hdr.Load()
		retired, ref, offset := unpackHeader(old)
		debug.Assert("release balances a prior allocate", func() bool { return ref > 0 })
		next := packHeader(retired, ref-1, offset)
		if c.hdr.CompareAndSwap(old, next) {
			return ref - 1
		}
	}
}

// tryMarkRetired atomically marks c retired, but only if its reference
// count is currently zero and it is not already retired. It reports
// whether this call is the one that made the transition, so the caller
// hands c to a reclaimer at most once.
func (c *Chunk) tryMarkRetired() bool {
	for {
		old := c.hdr.Load()
		retired, ref, offset := unpackHeader(old)
		if retired || ref != 0 {
			return false
		}
		next := packHeader(true, ref, offset)
		if c.hdr.CompareAndSwap(old, next) {
			return true
		}
	}
}

func chunkOf(ptr unsafe.Pointer) *Chunk {
	bp := backPtrSize
	back := risky.Advance(ptr, 0-bp)
	return (*Chunk)(*(*unsafe.Pointer)(back))
}
