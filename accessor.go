package livecache

import "context"

// RemoteAccessor is the backend the cache hydrates from and writes through
// to. Implementations must be safe for concurrent use; the cache issues at
// most one Fetch and one Write per key at a time, but calls for different
// keys run in parallel.
//
// Fetch returns the current backend value for key, or ErrNotFound when the
// backend holds none. Write stores value and returns the confirmed value as
// the backend recorded it, which may differ from the submitted one (server
// stamps, normalization).
type RemoteAccessor[T any] interface {
	Fetch(ctx context.Context, key string) (T, error)
	Write(ctx context.Context, key string, value T) (T, error)
}
