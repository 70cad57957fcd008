package livecache

import "context"

// fetchIfNeeded is the read path. It returns the entry snapshot the caller
// observes, hydrating absent keys and retrying failed ones as a side effect.
// Reads during an in-flight fetch coalesce onto it rather than issuing
// another backend call.
func (c *Cache[T]) fetchIfNeeded(key string) Entry[T] {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Entry[T]{Key: key, State: StateAbsent}
	}

	e := c.store.get(key)
	switch e.state {
	case StateResolved, StateDirty:
		c.stats.Hits++
		snap := c.store.snapshot(e)
		c.mu.Unlock()
		return snap
	case StatePending:
		c.stats.Coalesced++
		snap := c.store.snapshot(e)
		c.mu.Unlock()
		return snap
	}

	// Absent faults in; Error retries. A read is the embedder's explicit
	// retry signal, the cache never refetches failures on its own.
	c.stats.Misses++
	snap := c.startFetchLocked(e)
	c.mu.Unlock()

	c.dispatch()
	return snap
}

// startFetchLocked moves e to StatePending and launches the backend fetch.
// Callers must hold c.mu and dispatch after releasing it.
func (c *Cache[T]) startFetchLocked(e *entry[T]) Entry[T] {
	ev, err := c.store.transition(e, StatePending, nil)
	if err != nil {
		return c.store.snapshot(e)
	}
	c.stats.Fetches++

	ctx, cancel := c.opCtx(c.opts.fetchTimeout)
	e.fetchCancel = cancel
	go c.runFetch(ctx, cancel, e.key, e.version)

	snap := c.store.snapshot(e)
	c.publish(ev)
	return snap
}

// runFetch performs one backend fetch and commits its outcome, unless the
// entry moved on in the meantime: a version mismatch means eviction, a
// superseding write, or teardown already happened, and the result is
// discarded.
func (c *Cache[T]) runFetch(ctx context.Context, cancel context.CancelFunc, key string, version uint64) {
	defer cancel()
	value, ferr := c.accessor.Fetch(ctx, key)

	c.mu.Lock()
	e, ok := c.store.lookup(key)
	if !ok || e.version != version {
		c.stats.Superseded++
		c.mu.Unlock()
		return
	}
	e.fetchCancel = nil

	var ev Event[T]
	var terr error
	if ferr != nil {
		c.stats.FetchFailures++
		ev, terr = c.store.transition(e, StateError, func(en *entry[T]) {
			en.err = &RemoteError{Op: "fetch", Key: key, Err: ferr}
		})
	} else {
		ev, terr = c.store.transition(e, StateResolved, func(en *entry[T]) {
			en.value = value
			en.hasValue = true
		})
	}
	if terr != nil {
		c.stats.Superseded++
		c.mu.Unlock()
		return
	}
	c.publish(ev)
	c.mu.Unlock()

	c.dispatch()
}

// Refresh forces a refetch of key. It reports whether a fetch was started:
// absent and in-flight keys are left alone (reads already hydrate absent
// keys), as are keys with an unconfirmed write.
func (c *Cache[T]) Refresh(key string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	e, ok := c.store.lookup(key)
	if !ok || (e.state != StateResolved && e.state != StateError) {
		c.mu.Unlock()
		return false
	}
	c.startFetchLocked(e)
	c.mu.Unlock()

	c.dispatch()
	return true
}
