package livecache

import "sync"

// Wildcard subscribes a listener to transitions on every key.
const Wildcard = "*"

type (
	// bus keeps the listener registry. Registration order is preserved per
	// key; delivery for one event runs key-specific listeners before
	// wildcard listeners.
	bus[T any] struct {
		nextID   uint64
		byKey    map[string][]subscriber[T]
		wildcard []subscriber[T]
	}

	subscriber[T any] struct {
		id uint64
		fn Listener[T]
	}
)

// Subscription is a handle to one registered listener. Cancel is idempotent.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

func newBus[T any]() *bus[T] {
	return &bus[T]{byKey: make(map[string][]subscriber[T])}
}

func (b *bus[T]) add(key string, fn Listener[T]) uint64 {
	b.nextID++
	sub := subscriber[T]{id: b.nextID, fn: fn}
	if key == Wildcard {
		b.wildcard = append(b.wildcard, sub)
	} else {
		b.byKey[key] = append(b.byKey[key], sub)
	}
	return sub.id
}

func (b *bus[T]) removeSub(key string, id uint64) {
	if key == Wildcard {
		b.wildcard = dropSub(b.wildcard, id)
		return
	}
	if subs := dropSub(b.byKey[key], id); len(subs) > 0 {
		b.byKey[key] = subs
	} else {
		delete(b.byKey, key)
	}
}

func dropSub[T any](subs []subscriber[T], id uint64) []subscriber[T] {
	for i, sub := range subs {
		if sub.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// listeners snapshots the delivery set for key: specific subscribers first,
// then wildcards, each in registration order.
func (b *bus[T]) listeners(key string) []Listener[T] {
	specific := b.byKey[key]
	if len(specific) == 0 && len(b.wildcard) == 0 {
		return nil
	}
	fns := make([]Listener[T], 0, len(specific)+len(b.wildcard))
	for _, sub := range specific {
		fns = append(fns, sub.fn)
	}
	for _, sub := range b.wildcard {
		fns = append(fns, sub.fn)
	}
	return fns
}

// Subscribe registers fn for transitions on key (or every key when key is
// Wildcard). Events arrive one at a time, in commit order.
func (c *Cache[T]) Subscribe(key string, fn Listener[T]) *Subscription {
	c.mu.Lock()
	if c.closed || fn == nil {
		c.mu.Unlock()
		return &Subscription{cancel: func() {}}
	}
	id := c.bus.add(key, fn)
	c.mu.Unlock()

	return &Subscription{cancel: func() {
		c.mu.Lock()
		c.bus.removeSub(key, id)
		c.mu.Unlock()
	}}
}

// publish appends ev to the delivery queue. Callers must hold c.mu and must
// call dispatch after releasing it.
func (c *Cache[T]) publish(ev Event[T]) {
	c.events = append(c.events, ev)
}

// dispatch drains the event queue in commit order. Exactly one goroutine
// drains at a time; committers that lose the flag leave their events to the
// active drainer, which keeps delivery ordered even when a listener
// re-enters the cache and commits further transitions.
func (c *Cache[T]) dispatch() {
	for {
		if !c.draining.CompareAndSwap(false, true) {
			return
		}
		for {
			c.mu.Lock()
			if len(c.events) == 0 {
				c.mu.Unlock()
				break
			}
			ev := c.events[0]
			c.events = c.events[1:]
			fns := c.bus.listeners(ev.Key)
			c.mu.Unlock()

			for _, fn := range fns {
				fn(ev)
			}
		}
		c.draining.Store(false)

		// Re-check: an event may have been enqueued between the drain loop
		// ending and the flag clearing.
		c.mu.Lock()
		again := len(c.events) > 0
		c.mu.Unlock()
		if !again {
			return
		}
	}
}
