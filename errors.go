package livecache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that the backend holds no value for the requested key.
	// Accessor implementations should return it (or wrap it) on a missing key so
	// embedders can distinguish absence from transport failure.
	ErrNotFound = errors.New("livecache: not found")

	// ErrClosed reports an operation against a cache after Close.
	ErrClosed = errors.New("livecache: cache closed")
)

// RemoteError wraps an accessor failure with the operation and key that
// produced it. It is what entries carry in the error state and what Wait and
// Settle return for failed keys.
type RemoteError struct {
	Op  string // "fetch" or "write"
	Key string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("livecache: remote %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// InvalidTransitionError reports a lifecycle transition the entry state machine
// does not allow. It never reaches callers: the cache logs it and drops the
// offending completion as superseded.
type InvalidTransitionError struct {
	Key  string
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("livecache: invalid transition %s -> %s for %q", e.From, e.To, e.Key)
}
