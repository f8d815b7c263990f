package stack

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/smr/internal/assert"
	"github.com/zeebo/smr/internal/pcg"
)

func TestStackSingleThreadedLIFO(t *testing.T) {
	var s Stack[int]

	assert.That(t, s.Pop() == nil)

	s.Push(1)
	s.Push(2)
	s.Push(3)

	require.Equal(t, 3, s.Pop().Value)
	require.Equal(t, 2, s.Pop().Value)
	require.Equal(t, 1, s.Pop().Value)
	require.Nil(t, s.Pop())
}

func TestStackHundredPushPop(t *testing.T) {
	var s Stack[int]

	for i := 0; i < 100; i++ {
		s.Push(i)
	}
	for i := 99; i >= 0; i-- {
		n := s.Pop()
		require.NotNil(t, n)
		require.Equal(t, i, n.Value)
	}
	require.Nil(t, s.Pop())
}

func TestStackProducerConsumer(t *testing.T) {
	const producers = 16
	const perProducer = 1000

	var s Stack[int]
	var wg sync.WaitGroup

	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				s.Push(p*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	var (
		mu  sync.Mutex
		sum int64
		got int
	)

	wg.Add(producers)
	for c := 0; c < producers; c++ {
		go func() {
			defer wg.Done()
			for {
				n := s.Pop()
				if n == nil {
					return
				}
				mu.Lock()
				sum += int64(n.Value)
				got++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	const total = producers * perProducer
	require.Equal(t, total, got)
	require.Equal(t, int64(total-1)*total/2, sum)
}

func TestStackConcurrentPushPopNoUseAfterFree(t *testing.T) {
	// exercises the stack under the alternating push/pop pattern from the
	// end-to-end scenario; retirement itself is exercised in epoch's tests.
	var s Stack[int]
	var wg sync.WaitGroup

	const workers = 32
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			p := pcg.New(uint64(w), 0)
			for i := 0; i < 5000; i++ {
				if p.Intn(2) == 0 {
					s.Push(i)
				} else {
					s.Pop()
				}
			}
		}(w)
	}
	wg.Wait()
}
