// Package memory provides an in-process RemoteAccessor: a toy document store
// with injectable latency and failures. It backs examples and tests, and
// serves as the reference accessor implementation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zyedidia/generic"
	"github.com/zyedidia/generic/btree"

	"github.com/airheartdev/livecache"
)

type (
	// Store is an in-memory document store keyed by string. All methods are
	// safe for concurrent use. The zero value is not usable; construct with
	// New.
	Store[T any] struct {
		mu   sync.Mutex
		docs *btree.Tree[string, *document[T]]
		now  func() time.Time

		latency  time.Duration
		fetchErr func(key string) error
		writeErr func(key string) error

		fetches uint64
		writes  uint64
	}

	document[T any] struct {
		value      T
		version    uint64
		modifiedAt time.Time
	}
)

var _ livecache.RemoteAccessor[any] = &Store[any]{}

func New[T any]() *Store[T] {
	return &Store[T]{
		docs: btree.New[string, *document[T]](generic.Less[string]),
		now:  time.Now,
	}
}

// Seed loads values without counting as writes.
func (s *Store[T]) Seed(values map[string]T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range values {
		s.putLocked(key, value)
	}
}

// Fetch returns the stored value for key, or livecache.ErrNotFound.
func (s *Store[T]) Fetch(ctx context.Context, key string) (T, error) {
	var zero T
	if err := s.sleep(ctx); err != nil {
		return zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++

	if s.fetchErr != nil {
		if err := s.fetchErr(key); err != nil {
			return zero, err
		}
	}

	doc, ok := s.docs.Get(key)
	if !ok {
		return zero, livecache.ErrNotFound
	}
	return doc.value, nil
}

// Write stores value under key and returns it as confirmed.
func (s *Store[T]) Write(ctx context.Context, key string, value T) (T, error) {
	var zero T
	if err := s.sleep(ctx); err != nil {
		return zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++

	if s.writeErr != nil {
		if err := s.writeErr(key); err != nil {
			return zero, err
		}
	}

	s.putLocked(key, value)
	return value, nil
}

func (s *Store[T]) putLocked(key string, value T) {
	if doc, ok := s.docs.Get(key); ok {
		doc.value = value
		doc.version++
		doc.modifiedAt = s.now()
		return
	}
	s.docs.Put(key, &document[T]{
		value:      value,
		version:    1,
		modifiedAt: s.now(),
	})
}

// Get reads a stored value directly, bypassing latency and failure
// injection. Intended for test assertions.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs.Get(key); ok {
		return doc.value, true
	}
	var zero T
	return zero, false
}

// Delete removes a stored document. It reports whether one existed.
func (s *Store[T]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs.Get(key); !ok {
		return false
	}
	s.docs.Remove(key)
	return true
}

func (s *Store[T]) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs.Size()
}

// Fetches reports the number of Fetch calls observed, failures included.
func (s *Store[T]) Fetches() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// Writes reports the number of Write calls observed, failures included.
func (s *Store[T]) Writes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// SetLatency makes every Fetch and Write sleep for d before touching the
// store, to simulate a remote round trip.
func (s *Store[T]) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// FailFetches installs a per-key failure hook for Fetch. A nil hook (or a
// nil error from it) restores normal behavior.
func (s *Store[T]) FailFetches(fn func(key string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = fn
}

// FailWrites installs a per-key failure hook for Write.
func (s *Store[T]) FailWrites(fn func(key string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = fn
}

// SetClock overrides the timestamp source used for document modification
// times.
func (s *Store[T]) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

func (s *Store[T]) sleep(ctx context.Context) error {
	s.mu.Lock()
	latency := s.latency
	s.mu.Unlock()
	if latency <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
