// Package livecache is a lazy-hydrating, write-through cache that fronts a
// remote document store. Reads fault entries in on first touch, concurrent
// reads of a key share one backend fetch, writes apply optimistically and
// confirm (or roll back) asynchronously, and every committed state change is
// broadcast to subscribed listeners in commit order.
package livecache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Cache fronts a RemoteAccessor with lazily hydrated entries. The zero value
// is not usable; construct with New. All methods are safe for concurrent use.
type Cache[T any] struct {
	accessor RemoteAccessor[T]
	opts     *Options

	mu     sync.Mutex
	store  *entryStore[T]
	bus    *bus[T]
	events []Event[T]
	stats  Stats
	closed bool

	draining atomic.Bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New builds a cache over accessor. The accessor must be non-nil.
func New[T any](accessor RemoteAccessor[T], options ...Option) *Cache[T] {
	if accessor == nil {
		panic("livecache: nil accessor")
	}
	opts := defaultOptions()
	for _, option := range options {
		option(opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Cache[T]{
		accessor:   accessor,
		opts:       opts,
		store:      newEntryStore[T](opts.logger),
		bus:        newBus[T](),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Get returns the current value and state for key. A key with no settled
// value returns the zero T together with a non-resolved state: StatePending
// while the first fetch is in flight, StateError after a failure. Touching an
// absent key starts a fetch; touching a failed key retries it.
func (c *Cache[T]) Get(key string) (T, State) {
	snap := c.fetchIfNeeded(key)
	return snap.Value, snap.State
}

// GetState reports the lifecycle state of key without triggering a fetch.
func (c *Cache[T]) GetState(key string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.store.lookup(key); ok {
		return e.state
	}
	return StateAbsent
}

// Inspect returns a snapshot of key without side effects. Absent keys yield
// a zero-valued snapshot in StateAbsent.
func (c *Cache[T]) Inspect(key string) Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.store.lookup(key); ok {
		return c.store.snapshot(e)
	}
	return Entry[T]{Key: key, State: StateAbsent}
}

// Set records value for key immediately and writes it through to the backend
// in the background. Writes to a key already writing are queued and issued
// one at a time in submission order. The outcome lands on the notification
// bus; Settle can be used to block for it.
func (c *Cache[T]) Set(key string, value T) error {
	return c.write(key, value)
}

// Evict discards the record for key, cancelling any in-flight fetch or write
// and dropping queued writes. It reports whether a record existed. Listeners
// observe a transition to StateAbsent.
func (c *Cache[T]) Evict(key string) bool {
	c.mu.Lock()
	e, ok := c.store.lookup(key)
	if !ok {
		c.mu.Unlock()
		return false
	}

	c.stats.Evictions++
	if e.fetchCancel != nil {
		e.fetchCancel()
		e.fetchCancel = nil
	}
	if e.writeCancel != nil {
		e.writeCancel()
		e.writeCancel = nil
	}
	e.writing = false
	e.writeQueue = nil

	if e.state != StateAbsent {
		ev, err := c.store.transition(e, StateAbsent, func(en *entry[T]) {
			var zero T
			en.value = zero
			en.hasValue = false
		})
		if err == nil {
			c.publish(ev)
		}
	}
	c.store.remove(e.key)
	c.mu.Unlock()

	c.dispatch()
	return true
}

// Keys lists the keys with live records, in lexical order.
func (c *Cache[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.keys()
}

// Len reports the number of live records.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.size()
}

// Close tears the cache down: outstanding backend calls are cancelled, their
// completions discarded, all records dropped and queued events discarded.
// Further reads observe StateAbsent without fetching; further writes return
// ErrClosed. Close is idempotent.
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.baseCancel()
	c.store.entries.Each(func(_ string, e *entry[T]) {
		if e.fetchCancel != nil {
			e.fetchCancel()
			e.fetchCancel = nil
		}
		if e.writeCancel != nil {
			e.writeCancel()
			e.writeCancel = nil
		}
	})
	c.store = newEntryStore[T](c.opts.logger)
	c.events = nil
	c.mu.Unlock()
	return nil
}

// opCtx derives the context for one backend call. Cancelling the cache's
// base context (Close) cancels every outstanding call.
func (c *Cache[T]) opCtx(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(c.baseCtx, timeout)
	}
	return context.WithCancel(c.baseCtx)
}
