package buffer

// Stats is the cumulative counters of the pool since construction.
// the counters only grow, so two snapshots can be subtracted to get the
// activity in between.
type Stats struct {
	// Hits counts page fetches served from the pool
	Hits uint64
	// Misses counts page fetches which had to read the page from disk
	Misses uint64
	// Evictions counts pages pushed out of the pool by clock sweep
	Evictions uint64
	// Writebacks counts dirty pages written out to disk, whoever
	// triggered the write (eviction, flush, close or the background writer)
	Writebacks uint64
	// Allocations counts pages created through AllocatePage()
	Allocations uint64
	// Disposals counts pages deleted through DisposePage()
	Disposals uint64
}

// HitRatio returns Hits/(Hits+Misses), or 0 when nothing was fetched yet
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of the pool's counters
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
