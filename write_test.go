package livecache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteIsOptimisticThenConfirmed(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	rec := &recorder{}
	c.Subscribe("doc", rec.listener())

	require.NoError(t, c.Set("doc", "draft"))

	// visible immediately, before the backend answers
	value, state := c.Get("doc")
	assert.Equal(t, StateDirty, state)
	assert.Equal(t, "draft", value)

	// the backend may normalize the value it confirms
	call := remote.expect(t, "write", "doc")
	assert.Equal(t, "draft", call.value)
	call.resolve("draft (rev 1)")
	require.NoError(t, c.Settle(testCtx(t), "doc"))

	value, state = c.Get("doc")
	assert.Equal(t, StateResolved, state)
	assert.Equal(t, "draft (rev 1)", value)

	events := awaitEvents(t, rec, 2)
	assert.Equal(t, StateDirty, events[0].State)
	assert.Equal(t, StateResolved, events[1].State)
	assert.Equal(t, "draft (rev 1)", events[1].Value)
}

func TestWritesAreSerializedFIFO(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	require.NoError(t, c.Set("doc", "A"))
	first := remote.expect(t, "write", "doc")

	// B queues instead of racing A
	require.NoError(t, c.Set("doc", "B"))
	remote.expectNone(t, 50*time.Millisecond)

	// A's optimistic value stays visible until A settles
	value, state := c.Get("doc")
	assert.Equal(t, StateDirty, state)
	assert.Equal(t, "A", value)

	first.resolve("A")
	second := remote.expect(t, "write", "doc")
	assert.Equal(t, "B", second.value)
	second.resolve("B")

	require.NoError(t, c.Settle(testCtx(t), "doc"))
	value, state = c.Get("doc")
	assert.Equal(t, StateResolved, state)
	assert.Equal(t, "B", value, "last submitted write wins")
}

func TestFailedWriteRollsBackToPreviousValue(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	c.Get("doc")
	remote.expect(t, "fetch", "doc").resolve("stable")
	require.NoError(t, c.Settle(testCtx(t), "doc"))

	rec := &recorder{}
	c.Subscribe("doc", rec.listener())

	require.NoError(t, c.Set("doc", "risky"))
	remote.expect(t, "write", "doc").fail(errors.New("rejected"))
	require.NoError(t, c.Settle(testCtx(t), "doc"), "rollback settles the key cleanly")

	value, state := c.Get("doc")
	assert.Equal(t, StateResolved, state)
	assert.Equal(t, "stable", value)

	// dirty, error (exactly one failure), restored
	events := awaitEvents(t, rec, 3)
	assert.Equal(t, []State{StateDirty, StateError, StateResolved}, rec.states())
	assert.Equal(t, "risky", events[0].Value)

	failures := 0
	for _, ev := range events {
		if ev.Err != nil {
			failures++
			assert.Equal(t, "stable", ev.Value, "failure event carries the reverted value")
		}
	}
	assert.Equal(t, 1, failures)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.WriteFailures)
	assert.Equal(t, uint64(1), stats.Rollbacks)
}

func TestFailedWriteOnUnresolvedKeyRollsBackToAbsent(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	rec := &recorder{}
	c.Subscribe("doc", rec.listener())

	require.NoError(t, c.Set("doc", "orphan"))
	remote.expect(t, "write", "doc").fail(errors.New("rejected"))
	require.NoError(t, c.Settle(testCtx(t), "doc"))

	assert.Equal(t, StateAbsent, c.GetState("doc"))
	assert.Equal(t, 0, c.Len(), "record is dropped, not parked")

	awaitEvents(t, rec, 3)
	assert.Equal(t, []State{StateDirty, StateError, StateAbsent}, rec.states())
}

func TestWriteSupersedesInFlightFetch(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	c.Get("doc")
	stale := remote.expect(t, "fetch", "doc")

	// write arrives before the fetch resolves
	require.NoError(t, c.Set("doc", "written"))
	write := remote.expect(t, "write", "doc")

	// the late fetch result must not clobber the write
	stale.resolve("fetched")
	write.resolve("written")
	require.NoError(t, c.Settle(testCtx(t), "doc"))

	value, state := c.Get("doc")
	assert.Equal(t, StateResolved, state)
	assert.Equal(t, "written", value, "final state reflects the write, not the fetch")

	assert.GreaterOrEqual(t, c.Stats().Superseded, uint64(1))
}

func TestEvictDiscardsInFlightWrite(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	require.NoError(t, c.Set("doc", "doomed"))
	write := remote.expect(t, "write", "doc")

	require.True(t, c.Evict("doc"))
	write.resolve("doomed")

	// the confirmation lands on a dead record
	require.Eventually(t, func() bool {
		return c.Stats().Superseded >= 1
	}, testTimeout, 2*time.Millisecond)
	assert.Equal(t, StateAbsent, c.GetState("doc"))
	assert.Equal(t, 0, c.Len())
}

func TestEvictDropsQueuedWrites(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	require.NoError(t, c.Set("doc", "first"))
	write := remote.expect(t, "write", "doc")
	require.NoError(t, c.Set("doc", "queued-1"))
	require.NoError(t, c.Set("doc", "queued-2"))

	require.True(t, c.Evict("doc"))
	write.resolve("first")

	// neither queued value is ever issued
	remote.expectNone(t, 50*time.Millisecond)
	assert.Equal(t, StateAbsent, c.GetState("doc"))
}

func TestFailedWriteDoesNotDrainQueue(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	defer c.Close()

	c.Get("doc")
	remote.expect(t, "fetch", "doc").resolve("base")
	require.NoError(t, c.Settle(testCtx(t), "doc"))

	require.NoError(t, c.Set("doc", "bad"))
	first := remote.expect(t, "write", "doc")
	require.NoError(t, c.Set("doc", "good"))

	// the first write fails, the queued one still runs
	first.fail(errors.New("rejected"))
	second := remote.expect(t, "write", "doc")
	assert.Equal(t, "good", second.value)
	second.resolve("good")

	require.NoError(t, c.Settle(testCtx(t), "doc"))
	value, state := c.Get("doc")
	assert.Equal(t, StateResolved, state)
	assert.Equal(t, "good", value)
}

func TestSetOnClosedCache(t *testing.T) {
	remote := newScriptedRemote()
	c := New[string](remote)
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Set("doc", "v"), ErrClosed)
}
