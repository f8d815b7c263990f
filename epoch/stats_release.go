//go:build !smrdebug

package epoch

type stats struct{}

func (*stats) addRetired(int) {}
func (*stats) addFreed(int)   {}

// Stats reports how many entries have been retired and freed so far.
type Stats struct {
	Retired uint64
	Freed   uint64
}

// Stats returns a snapshot of the Manager's debug counters. Only
// meaningful when built with the smrdebug tag; otherwise both fields
// read zero.
func (m *Manager) Stats() Stats {
	return Stats{}
}
