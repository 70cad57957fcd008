package livecache

import (
	"context"
	"log/slog"

	"github.com/zyedidia/generic"
	"github.com/zyedidia/generic/btree"
)

type (
	// entry is the mutable per-key record. All fields are guarded by the
	// owning cache's mutex.
	entry[T any] struct {
		key      string
		state    State
		value    T
		hasValue bool
		prev     T
		hasPrev  bool
		version  uint64
		err      error

		// in-flight operation handles
		fetchCancel context.CancelFunc
		writeCancel context.CancelFunc
		writing     bool
		writeQueue  []T
	}

	// entryStore owns the key -> entry table and the transition clock.
	// Versions are unique cache-wide and strictly increasing, so a completion
	// that captured version v can detect any later transition on its key.
	entryStore[T any] struct {
		entries *btree.Tree[string, *entry[T]]
		clock   uint64
		logger  *slog.Logger
	}
)

func newEntryStore[T any](logger *slog.Logger) *entryStore[T] {
	return &entryStore[T]{
		entries: btree.New[string, *entry[T]](generic.Less[string]),
		logger:  logger,
	}
}

func (s *entryStore[T]) lookup(key string) (*entry[T], bool) {
	return s.entries.Get(key)
}

// get returns the record for key, creating an absent one if needed.
func (s *entryStore[T]) get(key string) *entry[T] {
	if e, ok := s.entries.Get(key); ok {
		return e
	}
	e := &entry[T]{key: key, state: StateAbsent}
	s.entries.Put(key, e)
	return e
}

func (s *entryStore[T]) remove(key string) {
	s.entries.Remove(key)
}

func (s *entryStore[T]) keys() []string {
	keys := make([]string, 0, s.entries.Size())
	s.entries.Each(func(key string, _ *entry[T]) {
		keys = append(keys, key)
	})
	return keys
}

func (s *entryStore[T]) size() int {
	return s.entries.Size()
}

// canTransition is the lifecycle gate. Eviction (to absent) is allowed from
// every state; everything else follows the fetch/write protocol.
func canTransition(from, to State) bool {
	if to == StateAbsent {
		return true
	}
	switch from {
	case StateAbsent:
		return to == StatePending || to == StateDirty
	case StatePending:
		return to == StateResolved || to == StateError || to == StateDirty
	case StateResolved:
		return to == StateDirty || to == StatePending
	case StateDirty:
		return to == StateResolved || to == StateError
	case StateError:
		return to == StatePending || to == StateDirty || to == StateResolved
	}
	return false
}

// transition moves e to the target state, applying the state payload via
// apply, and returns the resulting change event. The version stamp advances
// on every commit; an illegal move commits nothing and returns
// InvalidTransitionError.
func (s *entryStore[T]) transition(e *entry[T], to State, apply func(*entry[T])) (Event[T], error) {
	if !canTransition(e.state, to) {
		err := &InvalidTransitionError{Key: e.key, From: e.state, To: to}
		s.logger.Warn("livecache: dropping invalid transition",
			slog.String("key", e.key),
			slog.String("from", e.state.String()),
			slog.String("to", to.String()),
		)
		return Event[T]{}, err
	}

	s.logger.Debug("livecache: transition",
		slog.String("key", e.key),
		slog.String("from", e.state.String()),
		slog.String("to", to.String()),
	)

	ev := Event[T]{
		Key:         e.key,
		OldState:    e.state,
		State:       to,
		OldValue:    e.value,
		OldHasValue: e.hasValue,
	}

	e.state = to
	if apply != nil {
		apply(e)
	}
	if to != StateError {
		e.err = nil
	}
	if to != StateDirty {
		var zero T
		e.prev = zero
		e.hasPrev = false
	}

	s.clock++
	e.version = s.clock

	ev.Value = e.value
	ev.HasValue = e.hasValue
	ev.Version = e.version
	ev.Err = e.err
	return ev, nil
}

func (s *entryStore[T]) snapshot(e *entry[T]) Entry[T] {
	return Entry[T]{
		Key:      e.key,
		State:    e.state,
		Value:    e.value,
		HasValue: e.hasValue,
		Version:  e.version,
		Err:      e.err,
	}
}
