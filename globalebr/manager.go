// Package globalebr implements the global-counter epoch-based
// reclamation manager (C3): every joined worker increments a shared
// per-epoch reference count on join and decrements it on leave, and a
// single collector goroutine walks the epoch list from its head,
// locking and freeing any epoch whose count has fallen to zero before
// creating a fresh tail epoch. Unlike the local-write manager (see
// package epoch), C3 never has a per-core slot: contention concentrates
// on the current epoch's counter instead of being spread across cores.
package globalebr

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zeebo/smr/collector"
	"github.com/zeebo/smr/errs"
)

// Manager coordinates a global-counter epoch reclamation scheme for
// payloads of type G. The zero value is not usable; construct one with
// New.
type Manager[G any] struct {
	free func(*G)

	// headEpoch is only ever read or mutated by the collector goroutine
	// (Reclaim), so it needs no synchronization of its own.
	headEpoch *EpochNode[G]

	// currentEpoch is read by every Join and written only by the
	// collector (AdvanceEpoch), so it must be atomic.
	currentEpoch atomic.Pointer[EpochNode[G]]

	exited   atomic.Bool
	task     *collector.Task
	started  atomic.Bool
	statsRec stats
	logger   *zap.Logger
}

// Option configures a Manager at construction. See WithLogger.
type Option[G any] func(*Manager[G])

// WithLogger routes Debug-level collection events and Warn-level
// lifecycle events to l instead of the default no-op logger.
func WithLogger[G any](l *zap.Logger) Option[G] {
	return func(m *Manager[G]) { m.logger = l }
}

// New constructs a Manager whose collector calls free exactly once on
// each retired payload once it is safe to do so.
func New[G any](free func(*G), opts ...Option[G]) *Manager[G] {
	m := &Manager[G]{free: free, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	initial := newEpochNode[G]()
	m.headEpoch = initial
	m.currentEpoch.Store(initial)
	return m
}

// Join publishes intent to access the structure the Manager protects
// and returns a handle that must be passed to Leave exactly once. It
// loops if it observes a node the collector has locked for reclamation;
// see lockedCount in node.go for when that happens.
func (m *Manager[G]) Join() *EpochNode[G] {
	for {
		node := m.currentEpoch.Load()
		prev := node.activeCount.Add(1) - 1
		if prev >= 0 {
			return node
		}
	}
}

// Leave releases the handle returned by a prior Join.
func (m *Manager[G]) Leave(node *EpochNode[G]) {
	node.activeCount.Add(-1)
}

// Retire adds payload to the garbage list of the epoch current at the
// time of the call. It returns errs.ErrLifecycleMisuse once Close has
// been called.
func (m *Manager[G]) Retire(payload *G) error {
	if m.exited.Load() {
		m.logger.Warn("retire called after close")
		return errors.Wrap(errs.ErrLifecycleMisuse, "retire after close")
	}
	node := m.currentEpoch.Load()
	node.addGarbage(payload)
	m.statsRec.addRetired(1)
	return nil
}

// AdvanceEpoch appends a fresh epoch node and makes it the current
// epoch. It must only be called by the collector: it is not safe to
// call concurrently with itself.
func (m *Manager[G]) AdvanceEpoch() {
	next := newEpochNode[G]()
	old := m.currentEpoch.Load()
	old.next = next
	m.currentEpoch.Store(next)
}

// Reclaim walks the epoch list from the head, locking and freeing every
// epoch up to (but never including) the current epoch whose active
// count is exactly zero. It stops at the first epoch it cannot lock,
// since epochs are only ever created at the tail and freed from the
// head, so an unreclaimable epoch blocks everything behind it. It must
// only be called by the collector.
func (m *Manager[G]) Reclaim() {
	freed := 0
	for m.headEpoch != m.currentEpoch.Load() {
		head := m.headEpoch
		if !head.activeCount.CompareAndSwap(0, lockedCount) {
			break
		}

		gn := head.garbage.Load()
		for gn != nil {
			next := gn.next
			m.free(gn.payload)
			freed++
			gn = next
		}
		m.headEpoch = head.next
	}
	m.statsRec.addFreed(freed)
	if freed > 0 {
		m.logger.Debug("reclaimed garbage epochs", zap.Int("freed", freed))
	}
}

// Tick reclaims first and only then advances the epoch, the reverse of
// the local-write manager's order: reclaiming before advancing means
// the collector never locks the epoch a joiner just picked, since a
// joiner only ever picks the current epoch and Reclaim never touches
// it.
func (m *Manager[G]) Tick() {
	m.Reclaim()
	m.AdvanceEpoch()
}

// StartCollector launches an internal goroutine that calls Tick on the
// given interval. It returns errs.ErrInvalidArgument if interval is below
// one millisecond and errs.ErrLifecycleMisuse if a collector is already
// running.
func (m *Manager[G]) StartCollector(interval time.Duration) error {
	if interval < time.Millisecond {
		return errors.Wrapf(errs.ErrInvalidArgument, "tick interval must be >= %s, got %s", time.Millisecond, interval)
	}
	if !m.started.CompareAndSwap(false, true) {
		return errors.Wrap(errs.ErrLifecycleMisuse, "collector already started")
	}
	m.task = collector.Start(interval, m.Tick)
	return nil
}

// Close stops the internal collector if one was started, marks the
// Manager exited, and then unconditionally sweeps every remaining
// epoch's garbage regardless of its active count. After Close returns
// the Manager must not be used again.
func (m *Manager[G]) Close() {
	m.exited.Store(true)

	if m.task != nil {
		m.task.Stop()
	}

	freed := 0
	for node := m.headEpoch; node != nil; node = node.next {
		gn := node.garbage.Load()
		for gn != nil {
			next := gn.next
			m.free(gn.payload)
			freed++
			gn = next
		}
	}
	m.headEpoch = nil
	m.statsRec.addFreed(freed)
	m.logger.Debug("manager closed", zap.Int("freed", freed))
}
