package epoch

import (
	"sync/atomic"
	"unsafe"
)

// retiredEntry is one node of the retired list: a payload handed to
// Retire together with the free function that reclaims it, tagged with
// the epoch it was retired in. Retired entries form a single lock-free
// LIFO, CAS-prepended by workers onto a permanent sentinel entry (see
// Manager.retiredSentinel) and walked by the collector, which never
// unlinks the sentinel itself and unlinks the entries directly behind it
// only by CAS (see Manager.collectHead).
type retiredEntry struct {
	epoch   uint64
	payload unsafe.Pointer
	free    func(unsafe.Pointer)
	next    atomic.Pointer[retiredEntry]
}

// linkTo CAS-prepends e onto the list rooted at head.
func (e *retiredEntry) linkTo(head *atomic.Pointer[retiredEntry]) {
	for {
		cur := head.Load()
		e.next.Store(cur)
		if head.CompareAndSwap(cur, e) {
			return
		}
	}
}
