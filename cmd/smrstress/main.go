// Command smrstress drives one of the package's data structures under
// concurrent load for a fixed duration and reports throughput. It
// exists to give a human a way to reproduce the concurrent scenarios
// the test suites already cover, at whatever thread count and duration
// they choose.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/zeebo/smr/epoch"
	"github.com/zeebo/smr/globalebr"
	"github.com/zeebo/smr/internal/affinity"
	"github.com/zeebo/smr/internal/pcg"
	"github.com/zeebo/smr/stack"
	"github.com/zeebo/smr/varlen"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("smrstress", flag.ContinueOnError)
	scenario := fs.String("scenario", "stack-local", "one of: stack-local, stack-global, varlen-local")
	threads := fs.Int("threads", runtime.NumCPU(), "number of concurrent worker goroutines")
	duration := fs.Duration("duration", time.Second, "how long to run the scenario")
	coreNum := fs.Int("core-num", runtime.NumCPU(), "number of epoch slots / cores to configure")
	seed := fs.Int64("seed", 1, "PRNG seed for workers that need randomness")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()

	var ops int64
	switch *scenario {
	case "stack-local":
		ops = runStackLocal(logger, *threads, *coreNum, *duration, *seed)
	case "stack-global":
		ops = runStackGlobal(logger, *threads, *duration, *seed)
	case "varlen-local":
		ops = runVarlenLocal(logger, *threads, *coreNum, *duration, *seed)
	default:
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n", *scenario)
		return 1
	}

	logger.Info("stress run complete",
		zap.String("scenario", *scenario),
		zap.Int("threads", *threads),
		zap.Duration("duration", *duration),
		zap.Int64("ops", ops),
	)
	return 0
}

func runStackLocal(logger *zap.Logger, threads, coreNum int, dur time.Duration, seed int64) int64 {
	m, err := epoch.NewManager(epoch.Config{CoreNum: coreNum})
	if err != nil {
		logger.Fatal("epoch manager", zap.Error(err))
	}
	if err := m.StartCollector(); err != nil {
		logger.Fatal("start collector", zap.Error(err))
	}
	defer m.Wait()

	s := &stack.Stack[int64]{}
	var ops int64
	deadline := time.Now().Add(dur)

	var wg sync.WaitGroup
	wg.Add(threads)
	for w := 0; w < threads; w++ {
		go func(w int) {
			defer wg.Done()
			runtime.LockOSThread()
			_ = affinity.Pin(w % affinity.NumCPU())

			h, err := m.AcquireHandle()
			if err != nil {
				return
			}
			defer m.ReleaseHandle(h)

			rnd := pcg.New(uint64(seed+int64(w)), uint64(w))
			for time.Now().Before(deadline) {
				m.Announce(h)
				if rnd.Intn(2) == 0 {
					s.Push(int64(rnd.Uint32()))
				} else if n := s.Pop(); n != nil {
					_ = m.Retire(unsafe.Pointer(n), func(unsafe.Pointer) {})
				}
				atomic.AddInt64(&ops, 1)
			}
		}(w)
	}
	wg.Wait()
	return atomic.LoadInt64(&ops)
}

func runStackGlobal(logger *zap.Logger, threads int, dur time.Duration, seed int64) int64 {
	adapter := globalebr.NewAdapter()
	if err := adapter.StartCollector(50 * time.Millisecond); err != nil {
		logger.Fatal("start collector", zap.Error(err))
	}
	defer adapter.Close()

	s := &stack.Stack[int64]{}
	var ops int64
	deadline := time.Now().Add(dur)

	var wg sync.WaitGroup
	wg.Add(threads)
	for w := 0; w < threads; w++ {
		go func(w int) {
			defer wg.Done()
			rnd := pcg.New(uint64(seed+int64(w)), uint64(w))
			for time.Now().Before(deadline) {
				h := adapter.Join()
				if rnd.Intn(2) == 0 {
					s.Push(int64(rnd.Uint32()))
				} else {
					_ = s.Pop()
				}
				adapter.Leave(h)
				atomic.AddInt64(&ops, 1)
			}
		}(w)
	}
	wg.Wait()
	return atomic.LoadInt64(&ops)
}

func runVarlenLocal(logger *zap.Logger, threads, coreNum int, dur time.Duration, seed int64) int64 {
	m, err := epoch.NewManager(epoch.Config{CoreNum: coreNum})
	if err != nil {
		logger.Fatal("epoch manager", zap.Error(err))
	}
	if err := m.StartCollector(); err != nil {
		logger.Fatal("start collector", zap.Error(err))
	}
	defer m.Wait()

	p, err := varlen.NewPool(m, varlen.DefaultChunkSize)
	if err != nil {
		logger.Fatal("varlen pool", zap.Error(err))
	}

	var ops int64
	deadline := time.Now().Add(dur)

	var wg sync.WaitGroup
	wg.Add(threads)
	for w := 0; w < threads; w++ {
		go func(w int) {
			defer wg.Done()
			h, err := m.AcquireHandle()
			if err != nil {
				return
			}
			defer m.ReleaseHandle(h)

			rnd := pcg.New(uint64(seed+int64(w)), uint64(w))
			for time.Now().Before(deadline) {
				m.Announce(h)
				ptr, err := p.Allocate(uint32(8 + rnd.Intn(256)))
				if err != nil {
					continue
				}
				p.Release(ptr)
				atomic.AddInt64(&ops, 1)
			}
		}(w)
	}
	wg.Wait()
	return atomic.LoadInt64(&ops)
}
