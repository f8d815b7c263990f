// Package collector implements C6, the periodic task shared by both
// reclamation managers: it wakes up on a fixed interval and invokes a
// tick function until told to stop. Neither manager runs this loop
// automatically; StartCollector on each wires it in, and either manager
// can instead be driven externally by calling its Tick method directly
// and never constructing a Task at all.
package collector

import (
	"sync"
	"time"
)

// Task runs fn on every tick until Stop is called. Stop blocks until the
// goroutine has observed the stop signal and exited, matching the
// destructor contract of both reclamation managers: they signal exit,
// join the collector, then run one final synchronous sweep.
type Task struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Start launches the collector goroutine. It is not safe to call Start
// twice on the same Task.
func Start(interval time.Duration, fn func()) *Task {
	t := &Task{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return t
}

// Stop signals the collector to exit at its next wake and waits for it
// to do so. Stop is idempotent.
func (t *Task) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}
