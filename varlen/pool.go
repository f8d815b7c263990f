// Package varlen implements a lock-free variable-length allocator (C5):
// a chunked bump allocator where each chunk hands out slices in a
// single CAS and tracks live references with a packed (count, offset)
// header. A chunk's backing storage is only handed to a Reclaimer once
// the chunk has been superseded as the pool's tail and its last
// allocation has been released, so a straggler holding a raw pointer
// into the chunk from before its retirement can never observe freed
// memory.
package varlen

import (
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zeebo/smr/errs"
)

// DefaultChunkSize is used by NewPool when a caller does not need
// unusually large individual allocations.
const DefaultChunkSize = 1 << 20 // 1 MiB

// Reclaimer is the subset of epoch.Manager's and globalebr.Adapter's
// interface Pool needs: hand a freed chunk to whichever reclamation
// scheme the caller has chosen and it will be dropped no sooner than
// safe.
type Reclaimer interface {
	Retire(ptr unsafe.Pointer, free func(unsafe.Pointer)) error
}

// Pool is a lock-free variable-length allocator. The zero value is not
// usable; construct one with NewPool.
type Pool struct {
	reclaimer Reclaimer
	chunkSize uint32
	logger    *zap.Logger

	tail atomic.Pointer[Chunk]

	statsRec stats
}

// Option configures a Pool at construction. See WithLogger.
type Option func(*Pool)

// WithLogger routes Debug-level chunk-retirement events to l instead of
// the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// NewPool constructs a Pool that allocates chunkSize-byte chunks (or
// larger, for individual allocations that would not otherwise fit) and
// hands retired chunks to reclaimer. It returns errs.ErrInvalidArgument
// if chunkSize cannot hold even the smallest allocation's overhead.
func NewPool(reclaimer Reclaimer, chunkSize uint32, opts ...Option) (*Pool, error) {
	if reclaimer == nil {
		return nil, errors.Wrap(errs.ErrInvalidArgument, "reclaimer must not be nil")
	}
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if uint64(chunkSize) <= uint64(backPtrSize) {
		return nil, errors.Wrap(errs.ErrInvalidArgument, "chunk size too small to hold any allocation")
	}

	p := &Pool{reclaimer: reclaimer, chunkSize: chunkSize, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	p.tail.Store(newChunk(chunkSize))
	return p, nil
}

// Allocate returns sz bytes of storage that remain valid until the
// corresponding Release, plus however long the configured Reclaimer
// takes to decide it is safe to drop the chunk they came from. It
// returns errs.ErrInvalidArgument for sz == 0.
func (p *Pool) Allocate(sz uint32) (unsafe.Pointer, error) {
	if sz == 0 {
		return nil, errors.Wrap(errs.ErrInvalidArgument, "allocation size must be positive")
	}

	for {
		tail := p.tail.Load()
		if ptr, ok := tail.allocate(sz); ok {
			p.statsRec.addAllocated(1)
			return ptr, nil
		}

		size := p.chunkSize
		if need := alignUp(uint64(sz)) + uint64(backPtrSize); need > uint64(size) {
			size = uint32(need)
		}
		fresh := newChunk(size)

		if tail.next.CompareAndSwap(nil, fresh) {
			p.tail.CompareAndSwap(tail, fresh)
			p.tryRetire(tail)
			continue
		}

		// another goroutine already linked a new chunk; help advance the
		// tail pointer before retrying the allocation
		if linked := tail.next.Load(); linked != nil {
			p.tail.CompareAndSwap(tail, linked)
			p.tryRetire(tail)
		}
	}
}

// Release gives back an allocation obtained from Allocate. Once every
// allocation from a chunk that has fallen behind the tail has been
// released, the chunk is handed to the Reclaimer.
func (p *Pool) Release(ptr unsafe.Pointer) {
	c := chunkOf(ptr)
	if remaining := c.release(); remaining == 0 {
		p.tryRetire(c)
	}
}

// tryRetire hands c to the reclaimer exactly once, and only once c is
// both fully released and no longer the tail. Both Allocate (when it
// supersedes a chunk as tail) and Release (when a chunk's count reaches
// zero) can be the event that makes c eligible, so both call this;
// Chunk.tryMarkRetired's single CAS against the same header word
// allocate and release use makes the actual hand-off idempotent
// regardless of which one wins the race, and closes the window where a
// stale allocate against a just-superseded chunk could otherwise
// succeed after the chunk was already handed to the reclaimer.
func (p *Pool) tryRetire(c *Chunk) {
	if p.tail.Load() == c {
		return
	}
	if !c.tryMarkRetired() {
		return
	}

	p.statsRec.noteRetired(c)
	p.logger.Debug("chunk retired", zap.Uint32("size", c.size))
	_ = p.reclaimer.Retire(unsafe.Pointer(c), func(ptr unsafe.Pointer) {
		cc := (*Chunk)(ptr)
		cc.data = nil
		p.statsRec.addFreed(1)
	})
}
