package livecache

// Stats are cumulative operation counters since construction. Counter
// semantics: Hits counts reads served from a resolved or dirty entry,
// Coalesced counts reads that joined an in-flight fetch, Misses counts reads
// that had to start one. Superseded counts backend completions discarded by
// the version check.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Coalesced     uint64
	Fetches       uint64
	FetchFailures uint64
	Writes        uint64
	WriteFailures uint64
	Rollbacks     uint64
	Superseded    uint64
	Evictions     uint64
}

// Stats returns a copy of the current counters.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
