package varlen

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/smr/epoch"
	"github.com/zeebo/smr/globalebr"
)

// fakeReclaimer frees synchronously so tests can observe retirement
// without needing to drive a real epoch manager to completion.
type fakeReclaimer struct {
	mu    sync.Mutex
	freed []unsafe.Pointer
}

func (f *fakeReclaimer) Retire(ptr unsafe.Pointer, free func(unsafe.Pointer)) error {
	free(ptr)
	f.mu.Lock()
	f.freed = append(f.freed, ptr)
	f.mu.Unlock()
	return nil
}

func TestAllocateWritesBackPointerAndReturnsUsableRegion(t *testing.T) {
	p, err := NewPool(&fakeReclaimer{}, DefaultChunkSize)
	require.NoError(t, err)

	ptr, err := p.Allocate(16)
	require.NoError(t, err)
	require.NotNil(t, ptr)

	region := unsafe.Slice((*byte)(ptr), 16)
	for i := range region {
		region[i] = byte(i)
	}
	for i := range region {
		require.Equal(t, byte(i), region[i])
	}
}

func TestRejectsZeroSizeAllocation(t *testing.T) {
	p, err := NewPool(&fakeReclaimer{}, DefaultChunkSize)
	require.NoError(t, err)

	_, err = p.Allocate(0)
	require.Error(t, err)
}

func TestOversizedAllocationGetsOwnChunk(t *testing.T) {
	p, err := NewPool(&fakeReclaimer{}, 128)
	require.NoError(t, err)

	ptr, err := p.Allocate(4096)
	require.NoError(t, err)
	require.NotNil(t, ptr)
}

func TestChunkNotRetiredWhileStillTail(t *testing.T) {
	rec := &fakeReclaimer{}
	p, err := NewPool(rec, 64)
	require.NoError(t, err)

	ptr, err := p.Allocate(8)
	require.NoError(t, err)
	p.Release(ptr)

	require.Empty(t, rec.freed)
}

func TestChunkRetiredOnceSupersededAndDrained(t *testing.T) {
	rec := &fakeReclaimer{}
	// chunk holds exactly one 8-byte allocation plus its back pointer
	p, err := NewPool(rec, 16)
	require.NoError(t, err)

	first, err := p.Allocate(8)
	require.NoError(t, err)

	// forces a new chunk to be linked, superseding the first as tail
	_, err = p.Allocate(8)
	require.NoError(t, err)

	require.Empty(t, rec.freed)
	p.Release(first)
	require.Len(t, rec.freed, 1)
}

func TestRetireIsIdempotentAcrossRaceWinners(t *testing.T) {
	rec := &fakeReclaimer{}
	p, err := NewPool(rec, 16)
	require.NoError(t, err)

	first, err := p.Allocate(8)
	require.NoError(t, err)
	p.Release(first)

	_, err = p.Allocate(8)
	require.NoError(t, err)

	require.Len(t, rec.freed, 1)
}

func TestConcurrentAllocateReleaseUnderRealEpochManager(t *testing.T) {
	m, err := epoch.NewManager(epoch.Config{CoreNum: 16})
	require.NoError(t, err)
	require.NoError(t, m.StartCollector())
	defer m.Wait()

	p, err := NewPool(m, 4096)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(16)
	for w := 0; w < 16; w++ {
		go func() {
			defer wg.Done()
			h, err := m.AcquireHandle()
			require.NoError(t, err)
			defer m.ReleaseHandle(h)

			for i := 0; i < 500; i++ {
				m.Announce(h)
				ptr, err := p.Allocate(32)
				require.NoError(t, err)
				b := unsafe.Slice((*byte)(ptr), 32)
				b[0] = 0xAB
				p.Release(ptr)
			}
		}()
	}
	wg.Wait()
}

func TestConcurrentAllocateReleaseUnderGlobalEBR(t *testing.T) {
	adapter := globalebr.NewAdapter()
	require.NoError(t, adapter.StartCollector(time.Millisecond))
	defer adapter.Close()

	p, err := NewPool(adapter, 4096)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var done int64
	wg.Add(8)
	for w := 0; w < 8; w++ {
		go func() {
			defer wg.Done()
			h := adapter.Join()
			defer adapter.Leave(h)
			for i := 0; i < 300; i++ {
				ptr, err := p.Allocate(24)
				require.NoError(t, err)
				p.Release(ptr)
				atomic.AddInt64(&done, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(8*300), done)
}
