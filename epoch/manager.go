// Package epoch implements the local-write epoch-based reclamation
// manager (C4): each worker publishes its current epoch into a private,
// cache-line-padded per-core slot on every operation (the only
// synchronizing write on the hot path), and a collector periodically
// advances a global epoch and frees retired payloads older than the
// oldest announced epoch.
package epoch

import (
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zeebo/smr/collector"
	"github.com/zeebo/smr/errs"
	"github.com/zeebo/smr/internal/debug"
)

type managerState int32

const (
	stateRunning managerState = iota
	stateExiting
	stateDrained
)

// Manager is a local-write epoch-based reclamation manager. The zero
// value is not usable; construct one with NewManager.
type Manager struct {
	cfg Config

	slots []slot
	used  []uint32

	globalEpoch atomic.Uint64

	// retiredSentinel is a permanent, never-freed node whose next field
	// is the true head of the CAS-prepended stack of real retired
	// entries; see collectHead for how Collect unlinks eligible entries
	// off of it without racing a concurrent Retire.
	retiredSentinel retiredEntry

	state    atomic.Int32
	task     *collector.Task
	started  atomic.Bool
	statsRec stats
}

// NewManager constructs a Manager with cfg.CoreNum per-core slots. It
// returns errs.ErrInvalidArgument if cfg is malformed.
func NewManager(cfg Config) (*Manager, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:   cfg,
		slots: make([]slot, cfg.CoreNum),
		used:  make([]uint32, cfg.CoreNum),
	}
	for i := range m.slots {
		m.slots[i].init()
	}
	m.globalEpoch.Store(1)
	m.state.Store(int32(stateRunning))

	return m, nil
}

// Announce publishes the current global epoch into h's slot. It must be
// called immediately before each logical operation on the structure the
// Manager protects, and never fails.
func (m *Manager) Announce(h Handle) uint64 {
	e := m.globalEpoch.Load()
	m.slots[h.id].Value.Store(e)
	return e
}

// Retire hands payload to the Manager, which promises to call free on it
// exactly once, no sooner than every worker that might still observe it
// has announced past the retiring epoch. It returns
// errs.ErrLifecycleMisuse once SignalExit has been called.
func (m *Manager) Retire(payload unsafe.Pointer, free func(unsafe.Pointer)) error {
	if managerState(m.state.Load()) != stateRunning {
		m.cfg.Logger.Warn("retire called after signal_exit")
		return errors.Wrap(errs.ErrLifecycleMisuse, "retire after signal_exit")
	}

	e := &retiredEntry{
		epoch:   m.globalEpoch.Load(),
		payload: payload,
		free:    free,
	}
	e.linkTo(&m.retiredSentinel.next)
	m.statsRec.addRetired(1)
	return nil
}

// AdvanceEpoch increments the global epoch. It is intended to be called
// only by the collector, but is exported so a custom collector loop can
// drive it directly.
func (m *Manager) AdvanceEpoch() uint64 {
	return m.globalEpoch.Add(1)
}

// Epoch returns the current global epoch.
func (m *Manager) Epoch() uint64 {
	return m.globalEpoch.Load()
}

// minEpoch returns the minimum announced epoch across all slots,
// ignoring slots belonging to released handles.
func (m *Manager) minEpoch() uint64 {
	min := m.globalEpoch.Load()
	for i := range m.slots {
		v := m.slots[i].Value.Load()
		if v != unannounced && v < min {
			min = v
		}
	}
	return min
}

// collectHead repeatedly CAS-unlinks and frees entries directly off the
// sentinel while they are eligible, retrying whenever a concurrent
// Retire wins the race to prepend a fresher entry first: a plain store
// here would risk clobbering a node a Retire just linked ahead of the
// one Collect read, silently dropping it from the list with its free
// never called. It returns the first node it settles on that is either
// nil or not yet eligible, which anchors the uncontended walk over the
// rest of the list the way the original's DoGC treats its list head.
func (m *Manager) collectHead(min uint64, freed *int) *retiredEntry {
	for {
		cur := m.retiredSentinel.next.Load()
		if cur == nil || cur.epoch >= min {
			return cur
		}
		next := cur.next.Load()
		if !m.retiredSentinel.next.CompareAndSwap(cur, next) {
			continue
		}
		cur.free(cur.payload)
		*freed++
	}
}

// Collect walks the retired list and frees every entry whose retirement
// epoch is strictly less than the minimum announced epoch. Only the
// sentinel's next pointer is ever raced against a concurrent Retire, so
// collectHead handles unlinking there with a CAS; everything past the
// node collectHead settles on is reached only by the collector, so
// unlinking a successor there is a plain store, matching the original's
// comment about not racing a concurrent prepend at the true head.
func (m *Manager) Collect() {
	min := m.minEpoch()
	freed := 0

	prev := m.collectHead(min, &freed)
	if prev != nil {
		cur := prev.next.Load()
		for cur != nil {
			next := cur.next.Load()
			if cur.epoch < min {
				prev.next.Store(next)
				cur.free(cur.payload)
				freed++
				cur = next
				continue
			}
			prev = cur
			cur = next
		}
	}

	m.statsRec.addFreed(freed)
	if freed > 0 {
		m.cfg.Logger.Debug("collected retired entries", zap.Int("freed", freed), zap.Uint64("min_epoch", min))
	}
}

// Tick advances the global epoch and then collects. This is the body a
// collector task or an externally driven caller invokes once per period.
func (m *Manager) Tick() {
	m.AdvanceEpoch()
	m.Collect()
}

// StartCollector launches an internal goroutine that calls Tick on
// cfg.TickInterval. It returns errs.ErrLifecycleMisuse if a collector is
// already running or CollectorMode is CollectorExternal.
func (m *Manager) StartCollector() error {
	if m.cfg.CollectorMode == CollectorExternal {
		return errors.Wrap(errs.ErrLifecycleMisuse, "start_collector with collector_mode external")
	}
	if !m.started.CompareAndSwap(false, true) {
		return errors.Wrap(errs.ErrLifecycleMisuse, "collector already started")
	}
	m.task = collector.Start(m.cfg.TickInterval, m.Tick)
	return nil
}

// SignalExit marks the Manager as exiting: no further Retire calls will
// be accepted. It is idempotent.
func (m *Manager) SignalExit() {
	m.state.CompareAndSwap(int32(stateRunning), int32(stateExiting))
}

// HasExited reports whether SignalExit has been called.
func (m *Manager) HasExited() bool {
	return managerState(m.state.Load()) != stateRunning
}

// Wait signals exit, stops the internal collector if one was started,
// and then runs a single-threaded drain that frees every remaining
// retired entry regardless of its epoch. After Wait returns the Manager
// is in the Drained state and must not be used again.
func (m *Manager) Wait() {
	m.SignalExit()

	if m.task != nil {
		m.task.Stop()
	}

	freed := 0
	cur := m.retiredSentinel.next.Load()
	for cur != nil {
		next := cur.next.Load()
		cur.free(cur.payload)
		freed++
		cur = next
	}
	m.retiredSentinel.next.Store(nil)
	m.statsRec.addFreed(freed)
	m.cfg.Logger.Debug("manager drained", zap.Int("freed", freed))

	debug.Assert("manager was running or exiting before drain", func() bool {
		return managerState(m.state.Load()) == stateExiting
	})
	m.state.Store(int32(stateDrained))
}
