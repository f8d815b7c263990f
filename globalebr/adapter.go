package globalebr

import (
	"time"
	"unsafe"

	"go.uber.org/zap"
)

// retireItem carries a per-call free callback alongside its payload, so
// that Adapter can offer the same per-call Retire signature as package
// epoch's Manager even though Manager[G].free is fixed at construction.
type retireItem struct {
	ptr  unsafe.Pointer
	free func(unsafe.Pointer)
}

// Adapter wraps a Manager[retireItem] behind the unsafe.Pointer-based
// Retire signature that other packages (see varlen.Reclaimer) expect,
// so callers can choose global-counter or local-write reclamation
// interchangeably.
type Adapter struct {
	m *Manager[retireItem]
}

// NewAdapter constructs an Adapter over a fresh global-counter manager.
// AdapterOption values configure the underlying Manager; see WithAdapterLogger.
func NewAdapter(opts ...AdapterOption) *Adapter {
	var o []Option[retireItem]
	for _, opt := range opts {
		o = append(o, opt.o)
	}
	return &Adapter{
		m: New(func(item *retireItem) { item.free(item.ptr) }, o...),
	}
}

// AdapterOption configures an Adapter at construction. See WithAdapterLogger.
type AdapterOption struct{ o Option[retireItem] }

// WithAdapterLogger routes the underlying Manager's Debug-level collection
// events and Warn-level lifecycle events to l instead of the default
// no-op logger.
func WithAdapterLogger(l *zap.Logger) AdapterOption {
	return AdapterOption{o: WithLogger[retireItem](l)}
}

// Join publishes intent to access the structure the Adapter protects.
func (a *Adapter) Join() *EpochNode[retireItem] { return a.m.Join() }

// Leave releases the handle returned by a prior Join.
func (a *Adapter) Leave(h *EpochNode[retireItem]) { a.m.Leave(h) }

// Retire hands ptr to the underlying manager along with the free
// function that will be invoked on it exactly once.
func (a *Adapter) Retire(ptr unsafe.Pointer, free func(unsafe.Pointer)) error {
	return a.m.Retire(&retireItem{ptr: ptr, free: free})
}

// StartCollector launches the underlying manager's internal collector.
func (a *Adapter) StartCollector(interval time.Duration) error {
	return a.m.StartCollector(interval)
}

// Close stops the collector and drains all outstanding garbage.
func (a *Adapter) Close() { a.m.Close() }

// Stats returns the underlying manager's debug counters.
func (a *Adapter) Stats() Stats { return a.m.Stats() }
