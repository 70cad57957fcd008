// Command proxyd fronts a document origin with a livecache: reads hydrate
// lazily, writes confirm in the background, and every committed transition
// is streamed to SSE subscribers on /events.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/r3labs/sse/v2"

	"github.com/airheartdev/livecache"
	"github.com/airheartdev/livecache/internal/config"
	"github.com/airheartdev/livecache/internal/telemetry"
	"github.com/airheartdev/livecache/internal/token"
	"github.com/airheartdev/livecache/memory"
	"github.com/airheartdev/livecache/remotehttp"
)

func main() {
	configPath := flag.String("config", "livecache.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	shutdown, err := telemetry.Setup(context.Background(), "livecache-proxyd")
	if err != nil {
		log.Fatal(err)
	}
	defer shutdown(context.Background())

	accessor, err := buildAccessor(cfg)
	if err != nil {
		log.Fatal(err)
	}

	opts := []livecache.Option{
		livecache.WithLogger(logger),
		livecache.WithFetchTimeout(cfg.Proxy.FetchTimeout.Std()),
		livecache.WithWriteTimeout(cfg.Proxy.WriteTimeout.Std()),
	}
	if cfg.Shared.AuthSecret != "" {
		opts = append(opts, livecache.WithAuth(token.AuthFn([]byte(cfg.Shared.AuthSecret))))
	}

	cache := livecache.New(livecache.Traced(accessor), opts...)
	defer cache.Close()

	events := sse.New()
	events.CreateStream("changes")

	sub := cache.Subscribe(livecache.Wildcard, func(ev livecache.Event[json.RawMessage]) {
		payload, err := json.Marshal(livecache.NewChangeEvent(ev))
		if err != nil {
			logger.Error("proxyd: encode change event", "key", ev.Key, "err", err)
			return
		}
		events.Publish("changes", &sse.Event{Data: payload})
	})
	defer sub.Cancel()

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  func(r *http.Request, origin string) bool { return true },
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", livecache.RequestIDHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	router.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Access-Control-Allow-Origin", "*")
		events.ServeHTTP(w, r)
	})

	router.Get(livecache.DefaultReadEndpoint, cache.HandleRead())
	router.Post(livecache.DefaultWriteEndpoint, cache.HandleWrite())
	router.Post(livecache.DefaultEvictEndpoint, cache.HandleEvict())
	router.Get(livecache.DefaultStateEndpoint, cache.HandleState())

	log.Printf("proxyd listening on http://%s (mode=%s)", cfg.Proxy.Bind, cfg.Proxy.Mode)
	log.Fatal(http.ListenAndServe(cfg.Proxy.Bind, router))
}

func buildAccessor(cfg config.Config) (livecache.RemoteAccessor[json.RawMessage], error) {
	if cfg.Proxy.Mode == "memory" {
		store := memory.New[json.RawMessage]()
		store.SetLatency(250 * time.Millisecond)
		store.Seed(map[string]json.RawMessage{
			"greeting": json.RawMessage(`"hello from the seeded store"`),
			"motd":     json.RawMessage(`{"text":"edit me via /livecache-write"}`),
		})
		return store, nil
	}

	var opts []remotehttp.Option
	if cfg.Shared.AuthSecret != "" {
		bearer, err := token.Mint([]byte(cfg.Shared.AuthSecret), "proxyd", "origin", 24*time.Hour)
		if err != nil {
			return nil, err
		}
		opts = append(opts, remotehttp.WithBearerToken(bearer))
	}
	return remotehttp.New[json.RawMessage](cfg.Proxy.OriginURL, opts...)
}
