package livecache

import (
	"context"
	"errors"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Wait reads key and blocks until it reaches a settled state, returning the
// resolved value or the failure that settled it. A key that settles in the
// error state is reported, never retried; an eviction while waiting triggers
// one fresh read.
func (c *Cache[T]) Wait(ctx context.Context, key string) (T, error) {
	var zero T

	notify := make(chan struct{}, 1)
	sub := c.Subscribe(key, func(Event[T]) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer sub.Cancel()

	snap := c.fetchIfNeeded(key)
	for {
		switch snap.State {
		case StateResolved:
			return snap.Value, nil
		case StateError:
			return snap.Value, snap.Err
		case StateAbsent:
			if c.isClosed() {
				return zero, ErrClosed
			}
			snap = c.fetchIfNeeded(key)
			continue
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-c.baseCtx.Done():
			return zero, ErrClosed
		case <-notify:
		}
		snap = c.Inspect(key)
	}
}

// Warm hydrates keys ahead of use, fetching at most WithWarmConcurrency keys
// at a time. It blocks until every key settles and returns the first
// failure, cancelling the remaining hydrations.
func (c *Cache[T]) Warm(ctx context.Context, keys ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.warmConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			_, err := c.Wait(gctx, key)
			return err
		})
	}
	return g.Wait()
}

// Settle blocks until each named key is quiescent (no fetch or write
// outstanding) and returns the failures of keys that settled in the error
// state, aggregated. With no keys it settles everything currently cached.
// Context cancellation and cache closure abort the whole call.
func (c *Cache[T]) Settle(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		keys = c.Keys()
	}

	var errs *multierror.Error
	for _, key := range keys {
		err := c.settleKey(ctx, key)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded),
			errors.Is(err, ErrClosed):
			return err
		default:
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (c *Cache[T]) settleKey(ctx context.Context, key string) error {
	notify := make(chan struct{}, 1)
	sub := c.Subscribe(key, func(Event[T]) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer sub.Cancel()

	for {
		snap := c.Inspect(key)
		if snap.State.Settled() {
			if snap.State == StateError {
				return snap.Err
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.baseCtx.Done():
			return ErrClosed
		case <-notify:
		}
	}
}

func (c *Cache[T]) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
