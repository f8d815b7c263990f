// Package errs defines the error taxonomy shared by the reclamation
// managers and the allocator: AllocationExhaustion and LifecycleMisuse
// propagate to the caller, InvalidArgument guards constructors, and
// benign CAS contention is never surfaced as an error at all.
package errs

import "github.com/pkg/errors"

var (
	// ErrAllocationExhaustion means the process cannot make progress: an
	// allocation needed to keep the structure's invariants failed.
	ErrAllocationExhaustion = errors.New("allocation exhaustion")

	// ErrInvalidArgument marks a precondition violation on a constructor
	// or configuration argument (out-of-range core id, zero tick
	// interval, and the like).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrLifecycleMisuse marks an API call made outside of the manager's
	// valid lifecycle: retiring after SignalExit, starting a second
	// collector, joining a manager that has already drained.
	ErrLifecycleMisuse = errors.New("lifecycle misuse")
)
