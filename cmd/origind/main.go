// Command origind is a reference document origin for proxyd: a JSON
// key/value service over SQLite exposing GET and PUT /docs/{key}.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	_ "modernc.org/sqlite"

	"github.com/airheartdev/livecache/internal/config"
	"github.com/airheartdev/livecache/internal/token"
)

func main() {
	configPath := flag.String("config", "livecache.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	store, err := openStore(cfg.Origin.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if cfg.Shared.AuthSecret != "" {
		e.Use(requireToken([]byte(cfg.Shared.AuthSecret)))
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/docs/:key", getDoc(store))
	e.PUT("/docs/:key", putDoc(store))

	log.Fatal(e.Start(cfg.Origin.Bind))
}

type docStore struct {
	db *sql.DB
}

func openStore(path string) (*docStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS documents (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &docStore{db: db}, nil
}

func (s *docStore) Close() error {
	return s.db.Close()
}

func (s *docStore) get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	row := s.db.QueryRowContext(ctx, `SELECT value FROM documents WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *docStore) put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	return err
}

func getDoc(store *docStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Param("key")
		value, err := store.get(c.Request().Context(), key)
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "no document for key")
		}
		if err != nil {
			return err
		}
		return c.JSONBlob(http.StatusOK, value)
	}
}

func putDoc(store *docStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Param("key")
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
		}
		if !json.Valid(body) {
			return echo.NewHTTPError(http.StatusBadRequest, "body must be JSON")
		}

		if err := store.put(c.Request().Context(), key, body); err != nil {
			return err
		}
		return c.JSONBlob(http.StatusOK, body)
	}
}

func requireToken(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/healthz" {
				return next(c)
			}

			raw, ok := token.Bearer(c.Request().Header.Get("Authorization"))
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			if _, err := token.Verify(secret, raw); err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			return next(c)
		}
	}
}
