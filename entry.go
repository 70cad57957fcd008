package livecache

import "fmt"

type (
	// State is the lifecycle position of a cached entry.
	State uint8

	// Entry is a point-in-time snapshot of one cached key. Value is only
	// meaningful when HasValue is set; Err is non-nil only in StateError.
	Entry[T any] struct {
		Key      string
		State    State
		Value    T
		HasValue bool
		Version  uint64
		Err      error
	}

	// Event describes one committed state transition. OldValue carries the
	// value visible before the transition (zero when OldHasValue is false),
	// Value the one visible after it.
	Event[T any] struct {
		Key         string
		OldState    State
		State       State
		OldValue    T
		OldHasValue bool
		Value       T
		HasValue    bool
		Version     uint64
		Err         error
	}

	// Listener receives committed transitions for keys it subscribed to.
	// Listeners run on the delivery goroutine and may call back into the
	// cache; long work should be handed off.
	Listener[T any] func(Event[T])
)

const (
	// StateAbsent: no record, or a record being torn down. Reads fault.
	StateAbsent State = iota
	// StatePending: a fetch is in flight; readers share its outcome.
	StatePending
	// StateResolved: the backend value is cached and current.
	StateResolved
	// StateDirty: an optimistic local write awaits backend confirmation.
	StateDirty
	// StateError: the last backend operation failed; Err holds the cause.
	StateError
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateDirty:
		return "dirty"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// MarshalText renders the state name, so wire payloads carry "resolved"
// rather than an opaque ordinal.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "absent":
		*s = StateAbsent
	case "pending":
		*s = StatePending
	case "resolved":
		*s = StateResolved
	case "dirty":
		*s = StateDirty
	case "error":
		*s = StateError
	default:
		return fmt.Errorf("livecache: unknown state %q", text)
	}
	return nil
}

// Settled reports whether the state is quiescent, with no backend operation
// outstanding for the key.
func (s State) Settled() bool {
	return s != StatePending && s != StateDirty
}
