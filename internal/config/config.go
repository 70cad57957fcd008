// Package config loads daemon configuration from an optional TOML file with
// environment-variable overrides layered on top.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

type (
	// Config carries settings for both daemons. A single file configures a
	// deployment; each binary reads its own section plus Shared.
	Config struct {
		Shared Shared `toml:"shared"`
		Proxy  Proxy  `toml:"proxy"`
		Origin Origin `toml:"origin"`
	}

	Shared struct {
		// AuthSecret, when set, turns on bearer-token auth between the
		// proxy, the origin, and their clients.
		AuthSecret string `toml:"auth_secret" env:"LIVECACHE_AUTH_SECRET"`
	}

	Proxy struct {
		Bind string `toml:"bind" env:"LIVECACHE_PROXY_BIND"`
		// Mode selects the accessor: "http" proxies OriginURL, "memory"
		// runs against a seeded in-process store.
		Mode         string   `toml:"mode" env:"LIVECACHE_PROXY_MODE"`
		OriginURL    string   `toml:"origin_url" env:"LIVECACHE_ORIGIN_URL"`
		FetchTimeout Duration `toml:"fetch_timeout" env:"LIVECACHE_FETCH_TIMEOUT"`
		WriteTimeout Duration `toml:"write_timeout" env:"LIVECACHE_WRITE_TIMEOUT"`
	}

	Origin struct {
		Bind   string `toml:"bind" env:"LIVECACHE_ORIGIN_BIND"`
		DBPath string `toml:"db_path" env:"LIVECACHE_ORIGIN_DB"`
	}

	// Duration accepts values like "10s" in both TOML and environment
	// layers.
	Duration time.Duration
)

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func defaults() Config {
	return Config{
		Proxy: Proxy{
			Bind:         "127.0.0.1:8480",
			Mode:         "http",
			OriginURL:    "http://127.0.0.1:8481",
			FetchTimeout: Duration(10 * time.Second),
			WriteTimeout: Duration(10 * time.Second),
		},
		Origin: Origin{
			Bind:   "127.0.0.1:8481",
			DBPath: "livecache-origin.db",
		},
	}
}

// Load reads path (missing file is fine, defaults apply) and then the
// LIVECACHE_* environment.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := toml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Proxy.Mode {
	case "http", "memory":
	default:
		return fmt.Errorf("config: unknown proxy mode %q", c.Proxy.Mode)
	}
	if c.Proxy.Mode == "http" && c.Proxy.OriginURL == "" {
		return errors.New("config: proxy mode http requires origin_url")
	}
	return nil
}
