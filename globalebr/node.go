package globalebr

import (
	"math"
	"sync/atomic"

	"github.com/zeebo/smr/machine"
)

// lockedCount is the sentinel value CAS'd into an EpochNode's counter by
// the collector to keep new joiners from picking a node that is being
// reclaimed. It is only ever stored into a node that is not the current
// tail, since Reclaim never touches the current epoch. A joiner can still
// land on a locked node: Join may load the tail pointer, and before its
// increment the collector may advance past that node and lock it in a
// later Reclaim once its count is zero. Join's retry loop handles that
// case by reloading the current tail.
const lockedCount = math.MinInt64

// GarbageNode holds one payload retired into an epoch's garbage list.
// Nodes in the same epoch's list are singly linked and CAS-prepended.
type GarbageNode[G any] struct {
	payload *G
	next    *GarbageNode[G]
}

// EpochNode is one node of the epoch list threaded from headEpoch to
// currentEpoch. Only the collector mutates next and the tail pointer;
// activeCount and garbage are touched by any joined worker.
type EpochNode[G any] struct {
	activeCount atomic.Int64
	garbage     atomic.Pointer[GarbageNode[G]]
	next        *EpochNode[G]

	// every joined worker hits activeCount on the hot path; padding keeps
	// two neighboring epoch nodes from sharing a cache line
	_ machine.Pad64
}

func newEpochNode[G any]() *EpochNode[G] {
	return &EpochNode[G]{}
}

// addGarbage CAS-prepends a garbage node holding payload onto n's list.
func (n *EpochNode[G]) addGarbage(payload *G) {
	gn := &GarbageNode[G]{payload: payload}
	for {
		gn.next = n.garbage.Load()
		if n.garbage.CompareAndSwap(gn.next, gn) {
			return
		}
	}
}
