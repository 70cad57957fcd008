package livecache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

const DefaultReadEndpoint = "/livecache-read"
const DefaultWriteEndpoint = "/livecache-write"
const DefaultEvictEndpoint = "/livecache-evict"
const DefaultStateEndpoint = "/livecache-state"
const applicationJSON = "application/json"
const RequestIDHeader = "X-Livecache-RequestID"
const authorizationHeader = "Authorization"

// HandleRead serves GET ?key=...: it reads the key through the cache and
// returns the observed snapshot. With ?wait=1 the response is deferred until
// the key settles, so a cold read answers with the resolved value instead of
// a pending marker.
func (c *Cache[T]) HandleRead() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !validateRequest(w, req, http.MethodGet, c.opts.authFn) {
			return
		}

		key := req.URL.Query().Get("key")
		if key == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var snap Entry[T]
		if req.URL.Query().Get("wait") == "1" {
			if _, err := c.Wait(req.Context(), key); err != nil &&
				(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				w.WriteHeader(http.StatusGatewayTimeout)
				return
			}
			snap = c.Inspect(key)
		} else {
			snap = c.fetchIfNeeded(key)
		}

		w.Header().Set("Content-Type", applicationJSON)
		if err := json.NewEncoder(w).Encode(newReadResponse(snap)); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
}

// HandleWrite serves POST {key, value}: the write is applied optimistically
// and confirmed in the background, so the handler answers 202 with the dirty
// snapshot rather than blocking on the backend.
func (c *Cache[T]) HandleWrite() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !validateRequest(w, req, http.MethodPost, c.opts.authFn) {
			return
		}

		write := new(WriteRequest[T])
		if err := json.NewDecoder(req.Body).Decode(write); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if write.Key == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if err := c.Set(write.Key, write.Value); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", applicationJSON)
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(newReadResponse(c.Inspect(write.Key))); err != nil {
			return
		}
	}
}

// HandleEvict serves POST {key} and discards the key's record.
func (c *Cache[T]) HandleEvict() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !validateRequest(w, req, http.MethodPost, c.opts.authFn) {
			return
		}

		evict := new(EvictRequest)
		if err := json.NewDecoder(req.Body).Decode(evict); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if evict.Key == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		evicted := c.Evict(evict.Key)

		w.Header().Set("Content-Type", applicationJSON)
		if err := json.NewEncoder(w).Encode(EvictResponse{Key: evict.Key, Evicted: evicted}); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
}

// HandleState serves GET ?key=... and reports the key's lifecycle state
// without touching the backend.
func (c *Cache[T]) HandleState() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !validateRequest(w, req, http.MethodGet, c.opts.authFn) {
			return
		}

		key := req.URL.Query().Get("key")
		if key == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		snap := c.Inspect(key)
		w.Header().Set("Content-Type", applicationJSON)
		if err := json.NewEncoder(w).Encode(StateResponse{Key: key, State: snap.State, Version: snap.Version}); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
}

func validateRequest(w http.ResponseWriter, r *http.Request, method string, authFn AuthFn) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}

	if method == http.MethodPost {
		if r.Header.Get("Content-Type") != applicationJSON {
			w.WriteHeader(http.StatusBadRequest)
			return false
		}

		if requestID := r.Header.Get(RequestIDHeader); requestID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return false
		}
	}

	if authFn != nil {
		auth := r.Header.Get(authorizationHeader)
		if !authFn(r.Context(), auth) {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
	}

	return true
}
