//go:build linux

// Package affinity pins the calling OS thread to a single CPU core, so
// a stress-test worker's epoch-slot accesses stay on the core the
// benchmark assigned it instead of migrating mid-run and skewing the
// false-sharing measurements the machine package's padding is meant to
// avoid.
package affinity

import "golang.org/x/sys/unix"

// Pin restricts the calling OS thread to core. It does not lock the
// goroutine to that thread; the caller must have already called
// runtime.LockOSThread.
func Pin(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}

// NumCPU reports how many cores are available to the process.
func NumCPU() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 1
	}
	return set.Count()
}
