package livecache

import "context"

// write applies value optimistically and schedules the write-through. A key
// with a write already in flight queues the new value instead; queued values
// are issued one at a time, in submission order, each from the settled state
// the previous one left behind.
func (c *Cache[T]) write(key string, value T) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.stats.Writes++

	e := c.store.get(key)
	if e.writing {
		e.writeQueue = append(e.writeQueue, value)
		c.mu.Unlock()
		return nil
	}

	c.beginWriteLocked(e, value)
	c.mu.Unlock()

	c.dispatch()
	return nil
}

// beginWriteLocked commits the optimistic transition to StateDirty and
// launches the backend write. The entry must not have a write in flight.
// Callers must hold c.mu and dispatch after releasing it.
func (c *Cache[T]) beginWriteLocked(e *entry[T], value T) {
	// A write supersedes an in-flight fetch for the key.
	if e.fetchCancel != nil {
		e.fetchCancel()
		e.fetchCancel = nil
	}

	prev, hadPrev := e.value, e.hasValue
	ev, err := c.store.transition(e, StateDirty, func(en *entry[T]) {
		en.prev = prev
		en.hasPrev = hadPrev
		en.value = value
		en.hasValue = true
	})
	if err != nil {
		return
	}

	e.writing = true
	ctx, cancel := c.opCtx(c.opts.writeTimeout)
	e.writeCancel = cancel
	go c.runWrite(ctx, cancel, e.key, e.version, value)

	c.publish(ev)
}

// runWrite performs one backend write and settles the entry: success commits
// the confirmed value, failure rolls the entry back to the value it showed
// before the optimistic update (or to absent if it had none). A version
// mismatch means the entry was evicted or torn down mid-flight and the
// completion is discarded.
func (c *Cache[T]) runWrite(ctx context.Context, cancel context.CancelFunc, key string, version uint64, value T) {
	defer cancel()
	confirmed, werr := c.accessor.Write(ctx, key, value)

	c.mu.Lock()
	e, ok := c.store.lookup(key)
	if !ok || e.version != version {
		c.stats.Superseded++
		c.mu.Unlock()
		return
	}
	e.writeCancel = nil

	if werr == nil {
		ev, terr := c.store.transition(e, StateResolved, func(en *entry[T]) {
			en.value = confirmed
			en.hasValue = true
		})
		if terr == nil {
			c.publish(ev)
		}
	} else {
		c.rollbackLocked(e, key, werr)
	}

	// Issue the next queued write from the settled state. A failed write
	// does not drain the queue: later values were accepted independently.
	e.writing = false
	if len(e.writeQueue) > 0 {
		next := e.writeQueue[0]
		e.writeQueue = e.writeQueue[1:]
		c.beginWriteLocked(e, next)
	} else if e.state == StateAbsent {
		c.store.remove(key)
	}
	c.mu.Unlock()

	c.dispatch()
}

// rollbackLocked reverts a failed optimistic write. The failure is visible
// to listeners as exactly one transition into StateError carrying the
// reverted value; the entry then settles back to StateResolved (or to
// StateAbsent when the key had never resolved).
func (c *Cache[T]) rollbackLocked(e *entry[T], key string, werr error) {
	c.stats.WriteFailures++
	remoteErr := &RemoteError{Op: "write", Key: key, Err: werr}

	prev, hadPrev := e.prev, e.hasPrev
	ev, terr := c.store.transition(e, StateError, func(en *entry[T]) {
		en.err = remoteErr
		en.value = prev
		en.hasValue = hadPrev
	})
	if terr != nil {
		c.stats.Superseded++
		return
	}
	c.stats.Rollbacks++
	c.publish(ev)

	if hadPrev {
		if rev, rerr := c.store.transition(e, StateResolved, nil); rerr == nil {
			c.publish(rev)
		}
	} else {
		rev, rerr := c.store.transition(e, StateAbsent, func(en *entry[T]) {
			var zero T
			en.value = zero
			en.hasValue = false
		})
		if rerr == nil {
			c.publish(rev)
		}
	}
}
