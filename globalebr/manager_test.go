package globalebr

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/smr/internal/assert"
)

func TestJoinLeaveThenRetireAndReclaim(t *testing.T) {
	var freed int32
	m := New(func(v *int) { atomic.AddInt32(&freed, 1) })

	h := m.Join()
	require.NoError(t, m.Retire(new(int)))
	m.Leave(h)

	// still current epoch: nothing to reclaim yet
	m.Reclaim()
	require.Equal(t, int32(0), atomic.LoadInt32(&freed))

	m.AdvanceEpoch()
	m.Reclaim()
	require.Equal(t, int32(1), atomic.LoadInt32(&freed))
}

func TestActiveJoinBlocksReclamation(t *testing.T) {
	var freed int32
	m := New(func(v *int) { atomic.AddInt32(&freed, 1) })

	h := m.Join()
	require.NoError(t, m.Retire(new(int)))
	m.AdvanceEpoch()

	// h is still active in the old (now head) epoch, so it can't be locked
	m.Reclaim()
	require.Equal(t, int32(0), atomic.LoadInt32(&freed))

	m.Leave(h)
	m.Reclaim()
	require.Equal(t, int32(1), atomic.LoadInt32(&freed))
}

func TestTickOrderReclaimsBeforeAdvancing(t *testing.T) {
	var freed int32
	m := New(func(v *int) { atomic.AddInt32(&freed, 1) })

	require.NoError(t, m.Retire(new(int)))
	m.Tick()
	require.Equal(t, int32(0), atomic.LoadInt32(&freed))

	m.Tick()
	require.Equal(t, int32(1), atomic.LoadInt32(&freed))
}

func TestCloseIsUnconditionalAndRejectsRetire(t *testing.T) {
	var freed int32
	m := New(func(v *int) { atomic.AddInt32(&freed, 1) })

	h := m.Join()
	require.NoError(t, m.Retire(new(int)))
	require.NoError(t, m.Retire(new(int)))
	m.Leave(h)

	m.Close()
	require.Equal(t, int32(2), atomic.LoadInt32(&freed))
	require.True(t, m.exited.Load())

	err := m.Retire(new(int))
	require.Error(t, err)
}

func TestAdapterMatchesUnsafePointerRetireContract(t *testing.T) {
	a := NewAdapter()
	defer a.Close()

	var freed int32
	h := a.Join()
	p := new(int)
	err := a.Retire(unsafe.Pointer(p), func(unsafe.Pointer) {
		atomic.AddInt32(&freed, 1)
	})
	require.NoError(t, err)
	a.Leave(h)

	a.m.AdvanceEpoch()
	a.m.Reclaim()
	require.Equal(t, int32(1), atomic.LoadInt32(&freed))
}

func TestConcurrentJoinRetireLeaveReclaimUnderCollector(t *testing.T) {
	var freed int64
	m := New(func(v *int) { atomic.AddInt64(&freed, 1) })
	require.NoError(t, m.StartCollector(time.Millisecond))
	defer m.Close()

	var wg sync.WaitGroup
	var retired int64
	wg.Add(16)
	for w := 0; w < 16; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				h := m.Join()
				err := m.Retire(new(int))
				assert.That(t, err == nil)
				atomic.AddInt64(&retired, 1)
				m.Leave(h)
			}
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&freed) < atomic.LoadInt64(&retired) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, atomic.LoadInt64(&retired), atomic.LoadInt64(&freed))
}
