package epoch

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/zeebo/smr/errs"
)

// Handle represents a worker's claim on one of the Manager's per-core
// announce slots. It should not cross goroutines for maximum performance:
// Announce and Retire calls using the same Handle must not happen
// concurrently.
type Handle struct {
	id int
}

// AcquireHandle claims a free slot for the calling worker. It returns
// errs.ErrLifecycleMisuse if every slot is currently claimed or the
// Manager has been signaled to exit.
func (m *Manager) AcquireHandle() (Handle, error) {
	if managerState(m.state.Load()) != stateRunning {
		return Handle{}, errors.Wrap(errs.ErrLifecycleMisuse, "acquire handle on a manager that is exiting")
	}

	for i := range m.used {
		if atomic.CompareAndSwapUint32(&m.used[i], 0, 1) {
			m.slots[i].Value.Store(m.globalEpoch.Load())
			return Handle{id: i}, nil
		}
	}
	return Handle{}, errors.Wrapf(errs.ErrLifecycleMisuse, "no free slot among %d cores", len(m.slots))
}

// ReleaseHandle frees the slot for reuse by another worker. The slot is
// marked unannounced so the collector never lets a released core hold
// back reclamation.
func (m *Manager) ReleaseHandle(h Handle) {
	m.slots[h.id].Value.Store(unannounced)
	atomic.StoreUint32(&m.used[h.id], 0)
}
