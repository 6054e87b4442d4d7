package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/Sternrassler/silo-activity/internal/config"
	"github.com/Sternrassler/silo-activity/pkg/activity"
	"github.com/Sternrassler/silo-activity/pkg/cache"
	"github.com/Sternrassler/silo-activity/pkg/fetch"
	"github.com/Sternrassler/silo-activity/pkg/logging"
	"github.com/Sternrassler/silo-activity/pkg/metrics"
	"github.com/Sternrassler/silo-activity/pkg/platform"
	"github.com/Sternrassler/silo-activity/pkg/ratelimit"
	"github.com/Sternrassler/silo-activity/pkg/transport"
)

// runtime holds the components shared by all commands.
type runtime struct {
	cfg       *config.Config
	logger    zerolog.Logger
	registry  *platform.Registry
	transport transport.Transport
	guard     *ratelimit.Guard

	// cache is nil when no ETag cache is configured.
	cache *cache.Manager

	metrics *metrics.Server
	clients map[string]*redis.Client
}

// setup loads configuration and builds the runtime from the global flags.
func setup(c *cli.Context) (*runtime, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if addr := c.String("metrics-addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Service = c.App.Name
	logger := logging.Setup(logCfg)
	return newRuntime(c.Context, cfg, logger)
}

func newRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*runtime, error) {
	r := &runtime{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*redis.Client),
	}

	r.registry = platform.DefaultRegistry(logging.NewLogger("platform"))
	if cfg.Catalog != "" {
		catalog, err := platform.LoadCatalogFile(cfg.Catalog)
		if err != nil {
			return nil, err
		}
		if err := r.registry.Apply(catalog); err != nil {
			return nil, err
		}
	}
	if len(cfg.Platforms) > 0 {
		overrides := platform.Catalog{Platforms: make(map[string]platform.Endpoints, len(cfg.Platforms))}
		for name, p := range cfg.Platforms {
			overrides.Platforms[name] = platform.Endpoints{BaseURL: p.BaseURL}
		}
		if err := r.registry.Apply(overrides); err != nil {
			return nil, fmt.Errorf("platform overrides: %w", err)
		}
	}

	tr, err := transport.New(cfg.TransportConfig(), logging.NewLogger("transport"))
	if err != nil {
		return nil, err
	}
	r.transport = tr

	guardLogger := logging.NewLogger("ratelimit")
	if cfg.RateLimit.Redis != "" {
		client, err := r.redisClient(ctx, cfg.RateLimit.Redis)
		if err != nil {
			r.Close()
			return nil, err
		}
		store := ratelimit.NewRedisStore(client, cfg.RateLimit.Window)
		r.guard = ratelimit.NewGuard(store, cfg.RateLimit.Window, guardLogger)
	} else {
		r.guard = ratelimit.NewMemoryGuard(cfg.RateLimit.Window, guardLogger)
	}

	if cfg.Cache.RedisAddr != "" {
		client, err := r.redisClient(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.cache = cache.NewManager(client, cfg.Cache.TTL)
	}

	if cfg.Metrics.Addr != "" {
		r.metrics = metrics.NewServer(cfg.Metrics.Addr, logging.NewLogger("metrics"))
		if err := r.metrics.Start(); err != nil {
			r.Close()
			return nil, err
		}
	}

	return r, nil
}

// redisClient returns one client per address, connecting on first use.
func (r *runtime) redisClient(ctx context.Context, addr string) (*redis.Client, error) {
	if client, ok := r.clients[addr]; ok {
		return client, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	r.clients[addr] = client
	r.logger.Debug().Str("addr", addr).Msg("Connected to Redis")
	return client, nil
}

// orchestrator builds an orchestrator for adapter sharing the runtime's
// transport and guard.
func (r *runtime) orchestrator(adapter platform.Adapter) *fetch.Orchestrator {
	return fetch.New(adapter, r.transport, r.guard, r.cfg.FetchConfig(), logging.NewLogger("fetch"))
}

// fetch runs q, sending the cached ETag when the caller has none and
// recording the result. Cache failures never fail the fetch.
func (r *runtime) fetch(ctx context.Context, o *fetch.Orchestrator, q fetch.Query) (*activity.Response, error) {
	if r.cache == nil {
		return o.Fetch(ctx, q)
	}

	key := cache.Key{
		Platform:   o.Adapter().Name(),
		UserID:     q.UserID,
		ActivityID: q.ActivityID,
		StartIndex: q.StartIndex,
		Count:      q.Count,
	}

	if q.ETag == "" {
		entry, err := r.cache.Get(ctx, key)
		switch {
		case err == nil && entry.Usable():
			q.ETag = entry.ETag
			r.logger.Debug().Str("key", key.String()).Str("etag", entry.ETag).Msg("Using cached ETag")
		case err != nil && !errors.Is(err, cache.ErrCacheMiss):
			r.logger.Warn().Err(err).Str("key", key.String()).Msg("ETag cache read failed")
		}
	}

	resp, err := o.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Record(ctx, key, resp); err != nil {
		r.logger.Warn().Err(err).Str("key", key.String()).Msg("ETag cache write failed")
	}
	return resp, nil
}

// Close releases Redis connections and stops the metrics server.
func (r *runtime) Close() error {
	var errs []error
	if r.metrics != nil {
		errs = append(errs, r.metrics.Shutdown(context.Background()))
	}
	for _, client := range r.clients {
		errs = append(errs, client.Close())
	}
	return errors.Join(errs...)
}
