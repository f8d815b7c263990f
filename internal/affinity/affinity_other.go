//go:build !linux

package affinity

import "runtime"

// Pin is a no-op on platforms without a scheduler affinity syscall.
func Pin(core int) error { return nil }

// NumCPU reports how many logical CPUs are available to the process.
func NumCPU() int { return runtime.NumCPU() }
