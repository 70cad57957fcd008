package livecache

import (
	"context"
	"log/slog"
	"time"
)

type (
	// Options is the cache configuration assembled by New.
	Options struct {
		logger          *slog.Logger
		authFn          AuthFn
		fetchTimeout    time.Duration
		writeTimeout    time.Duration
		warmConcurrency int
	}

	Option func(*Options)

	// AuthFn authorizes HTTP requests against the handler surface. It
	// receives the raw Authorization header value and returns false to
	// reject with 401.
	AuthFn func(ctx context.Context, authorization string) bool
)

const defaultWarmConcurrency = 8

func defaultOptions() *Options {
	return &Options{
		logger: slog.Default(),
		authFn: func(context.Context, string) bool {
			return true
		},
		warmConcurrency: defaultWarmConcurrency,
	}
}

// WithLogger routes cache diagnostics to l instead of slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAuth installs the authorization hook used by the HTTP handlers.
// The default accepts every request.
func WithAuth(fn func(ctx context.Context, authorization string) bool) Option {
	return func(o *Options) {
		if fn != nil {
			o.authFn = fn
		}
	}
}

// WithFetchTimeout bounds each backend fetch. Zero means no deadline.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.fetchTimeout = d
	}
}

// WithWriteTimeout bounds each backend write. Zero means no deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.writeTimeout = d
	}
}

// WithWarmConcurrency caps the number of keys Warm hydrates at once.
func WithWarmConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.warmConcurrency = n
		}
	}
}
