package machine

import (
	"unsafe"

	"github.com/zeebo/smr/internal/debug"
)

// Padded wraps a value no larger than a cache line so that it occupies an
// exclusive line: the tail padding guarantees no other Padded[T] in a
// containing array can be modified by a write to a neighbor. Callers that
// hold an array of Padded[T] should align the array's own backing storage
// to a cache line; the factory that does that is not part of this type.
type Padded[T any] struct {
	Value T
	_     [CacheLine]byte
}

// NewPadded constructs a Padded value, asserting in debug builds that T
// fits within a cache line.
func NewPadded[T any](v T) Padded[T] {
	p := Padded[T]{Value: v}
	debug.Assert("padded value fits in a cache line", func() bool {
		return unsafe.Sizeof(p.Value) <= CacheLine
	})
	return p
}

// Get returns the wrapped value.
func (p *Padded[T]) Get() T { return p.Value }

// Set overwrites the wrapped value.
func (p *Padded[T]) Set(v T) { p.Value = v }
