// Package config loads activity-fetch configuration from defaults, an
// optional TOML file and SILO_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Sternrassler/silo-activity/pkg/batch"
	"github.com/Sternrassler/silo-activity/pkg/fetch"
	"github.com/Sternrassler/silo-activity/pkg/logging"
	"github.com/Sternrassler/silo-activity/pkg/ratelimit"
	"github.com/Sternrassler/silo-activity/pkg/transport"
)

// EnvPrefix prefixes environment overrides. Nested keys are separated by a
// double underscore: SILO_FETCH__MAX_COUNT sets fetch.max_count.
const EnvPrefix = "SILO_"

// Config represents the application configuration.
type Config struct {
	Log struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"log"`

	Fetch struct {
		DefaultCount     int           `koanf:"default_count"`
		MaxCount         int           `koanf:"max_count"`
		BatchConcurrency int           `koanf:"batch_concurrency"`
		BatchTimeout     time.Duration `koanf:"batch_timeout"`
	} `koanf:"fetch"`

	Transport struct {
		UserAgent         string        `koanf:"user_agent"`
		Timeout           time.Duration `koanf:"timeout"`
		RequestsPerSecond float64       `koanf:"requests_per_second"`
		Burst             int           `koanf:"burst"`
	} `koanf:"transport"`

	RateLimit struct {
		Window time.Duration `koanf:"window"`
		// Redis shares the guard state across processes when set.
		Redis string `koanf:"redis"`
	} `koanf:"rate_limit"`

	Cache struct {
		// RedisAddr enables the ETag cache when set.
		RedisAddr string        `koanf:"redis_addr"`
		TTL       time.Duration `koanf:"ttl"`
	} `koanf:"cache"`

	Metrics struct {
		Addr string `koanf:"addr"`
	} `koanf:"metrics"`

	// Catalog is an optional YAML endpoint catalog.
	Catalog string `koanf:"catalog"`

	// Platforms overrides per-platform settings, keyed by adapter name.
	Platforms map[string]Platform `koanf:"platforms"`
}

// Platform holds per-platform overrides.
type Platform struct {
	BaseURL string `koanf:"base_url"`
}

var defaults = map[string]interface{}{
	"log.level":                     "info",
	"log.pretty":                    false,
	"fetch.default_count":           fetch.DefaultConfig().DefaultCount,
	"fetch.max_count":               fetch.DefaultConfig().MaxCount,
	"fetch.batch_concurrency":       batch.DefaultConfig().MaxConcurrency,
	"fetch.batch_timeout":           batch.DefaultConfig().Timeout.String(),
	"transport.user_agent":          "silo-activity/0.1.0",
	"transport.timeout":             "30s",
	"transport.requests_per_second": 5.0,
	"transport.burst":               5,
	"rate_limit.window":             ratelimit.DefaultBackoffWindow.String(),
	"cache.ttl":                     "24h",
}

// Load loads the configuration. An empty path tries ./silo.toml and
// $HOME/.silo.toml; an explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, candidate := range []string{"./silo.toml", "$HOME/.silo.toml"} {
			candidate = os.ExpandEnv(candidate)
			if _, err := os.Stat(candidate); err == nil {
				if err := k.Load(file.Provider(candidate), toml.Parser()); err != nil {
					return nil, fmt.Errorf("error loading config %s: %w", candidate, err)
				}
				break
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Transport.UserAgent == "" {
		errs = append(errs, errors.New("transport.user_agent is required"))
	}
	if c.Transport.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("transport.requests_per_second must not be negative"))
	}
	if c.Fetch.DefaultCount <= 0 {
		errs = append(errs, errors.New("fetch.default_count must be positive"))
	}
	if c.Fetch.MaxCount < c.Fetch.DefaultCount {
		errs = append(errs, fmt.Errorf("fetch.max_count %d is below fetch.default_count %d", c.Fetch.MaxCount, c.Fetch.DefaultCount))
	}
	if c.Fetch.BatchConcurrency < 1 {
		errs = append(errs, errors.New("fetch.batch_concurrency must be at least 1"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}

	return errors.Join(errs...)
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	level, _ := logging.ParseLevel(c.Log.Level)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Pretty = c.Log.Pretty
	return cfg
}

// FetchConfig returns the orchestrator configuration.
func (c *Config) FetchConfig() fetch.Config {
	return fetch.Config{
		DefaultCount: c.Fetch.DefaultCount,
		MaxCount:     c.Fetch.MaxCount,
		Batch: batch.Config{
			MaxConcurrency: c.Fetch.BatchConcurrency,
			Timeout:        c.Fetch.BatchTimeout,
		},
	}
}

// TransportConfig returns the HTTP transport configuration. Platform base
// URLs are applied to the adapters, so the transport has none.
func (c *Config) TransportConfig() transport.Config {
	cfg := transport.DefaultConfig("", c.Transport.UserAgent)
	cfg.Timeout = c.Transport.Timeout
	cfg.RequestsPerSecond = c.Transport.RequestsPerSecond
	cfg.Burst = c.Transport.Burst
	return cfg
}
