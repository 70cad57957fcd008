package livecache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

type (
	// scriptedRemote is a RemoteAccessor the test drives call by call:
	// each Fetch/Write parks until the test resolves or fails it.
	scriptedRemote struct {
		calls chan *remoteCall
	}

	remoteCall struct {
		op    string
		key   string
		value string
		reply chan remoteResult
	}

	remoteResult struct {
		value string
		err   error
	}
)

var _ RemoteAccessor[string] = &scriptedRemote{}

func newScriptedRemote() *scriptedRemote {
	return &scriptedRemote{calls: make(chan *remoteCall, 64)}
}

func (r *scriptedRemote) Fetch(ctx context.Context, key string) (string, error) {
	call := &remoteCall{op: "fetch", key: key, reply: make(chan remoteResult, 1)}
	r.calls <- call
	select {
	case res := <-call.reply:
		return res.value, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *scriptedRemote) Write(ctx context.Context, key string, value string) (string, error) {
	call := &remoteCall{op: "write", key: key, value: value, reply: make(chan remoteResult, 1)}
	r.calls <- call
	select {
	case res := <-call.reply:
		return res.value, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// expect blocks until the next backend call arrives and asserts its shape.
func (r *scriptedRemote) expect(t *testing.T, op, key string) *remoteCall {
	t.Helper()
	select {
	case call := <-r.calls:
		if call.op != op || call.key != key {
			t.Fatalf("backend call %s %q, want %s %q", call.op, call.key, op, key)
		}
		return call
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for backend %s %q", op, key)
		return nil
	}
}

// expectAny blocks until any backend call arrives.
func (r *scriptedRemote) expectAny(t *testing.T) *remoteCall {
	t.Helper()
	select {
	case call := <-r.calls:
		return call
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a backend call")
		return nil
	}
}

// expectNone asserts no backend call arrives within d.
func (r *scriptedRemote) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case call := <-r.calls:
		t.Fatalf("unexpected backend call %s %q", call.op, call.key)
	case <-time.After(d):
	}
}

func (c *remoteCall) resolve(value string) {
	c.reply <- remoteResult{value: value}
}

func (c *remoteCall) fail(err error) {
	c.reply <- remoteResult{err: err}
}

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []Event[string]
}

func (r *recorder) listener() Listener[string] {
	return func(ev Event[string]) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	}
}

func (r *recorder) snapshot() []Event[string] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event[string], len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.State
	}
	return out
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// awaitEvents blocks until rec has seen at least n events and returns them.
// Settle only guarantees state quiescence, not that every listener ran, so
// event assertions go through here.
func awaitEvents(t *testing.T, rec *recorder, n int) []Event[string] {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= n
	}, testTimeout, 2*time.Millisecond)
	return rec.snapshot()
}
