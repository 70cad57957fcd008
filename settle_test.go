package livecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReturnsSettledValue(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	got := make(chan string, 1)
	go func() {
		value, err := c.Wait(testCtx(t), "doc")
		assert.NoError(t, err)
		got <- value
	}()

	remote.expect(t, "fetch", "doc").resolve("ready")
	select {
	case value := <-got:
		assert.Equal(t, "ready", value)
	case <-time.After(testTimeout):
		t.Fatal("Wait did not return")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Wait(ctx, "doc")
		errCh <- err
	}()

	remote.expect(t, "fetch", "doc") // hold the fetch open
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(testTimeout):
		t.Fatal("Wait did not observe cancellation")
	}
}

func TestWaitSurvivesEviction(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	got := make(chan string, 1)
	go func() {
		value, err := c.Wait(testCtx(t), "doc")
		assert.NoError(t, err)
		got <- value
	}()

	remote.expect(t, "fetch", "doc") // held, never answered
	require.True(t, c.Evict("doc"))

	// the eviction wakes the waiter, which rereads
	remote.expect(t, "fetch", "doc").resolve("second try")

	select {
	case value := <-got:
		assert.Equal(t, "second try", value)
	case <-time.After(testTimeout):
		t.Fatal("Wait did not recover from eviction")
	}
}

func TestWarmHydratesAllKeys(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		done <- c.Warm(testCtx(t), "a", "b", "c")
	}()

	for range 3 {
		select {
		case call := <-remote.calls:
			assert.Equal(t, "fetch", call.op)
			call.resolve("warmed:" + call.key)
		case <-time.After(testTimeout):
			t.Fatal("missing warm fetch")
		}
	}

	require.NoError(t, <-done)

	for _, key := range []string{"a", "b", "c"} {
		value, state := c.Get(key)
		assert.Equal(t, StateResolved, state)
		assert.Equal(t, "warmed:"+key, value)
	}
	assert.Equal(t, uint64(3), c.Stats().Fetches)
}

func TestWarmReportsFirstFailure(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		done <- c.Warm(testCtx(t), "ok", "broken")
	}()

	for range 2 {
		select {
		case call := <-remote.calls:
			if call.key == "broken" {
				call.fail(errors.New("no such document"))
			} else {
				call.resolve("fine")
			}
		case <-time.After(testTimeout):
			t.Fatal("missing warm fetch")
		}
	}

	err := <-done
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "broken", remoteErr.Key)
}

func TestWarmBoundsConcurrency(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote, WithWarmConcurrency(2))
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		done <- c.Warm(testCtx(t), "k1", "k2", "k3", "k4")
	}()

	first := remote.expectAny(t)
	second := remote.expectAny(t)
	remote.expectNone(t, 50*time.Millisecond) // only two slots

	first.resolve("v")
	third := remote.expectAny(t)
	second.resolve("v")
	fourth := remote.expectAny(t)
	third.resolve("v")
	fourth.resolve("v")

	require.NoError(t, <-done)
}

func TestSettleAggregatesFailures(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	c.Get("good")
	remote.expect(t, "fetch", "good").resolve("v")
	c.Get("bad-1")
	remote.expect(t, "fetch", "bad-1").fail(errors.New("boom 1"))
	c.Get("bad-2")
	remote.expect(t, "fetch", "bad-2").fail(errors.New("boom 2"))

	// no keys means settle everything cached
	err := c.Settle(testCtx(t))
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad-1")
	assert.ErrorContains(t, err, "bad-2")
	assert.NotContains(t, err.Error(), `"good"`)
}

func TestSettleOnQuietCache(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	require.NoError(t, c.Settle(testCtx(t)))
	require.NoError(t, c.Settle(testCtx(t), "never-seen"))
}

func TestSettleHonorsContext(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	c.Get("doc")
	remote.expect(t, "fetch", "doc") // held open

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := c.Settle(ctx, "doc")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
