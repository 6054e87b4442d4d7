package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the throttling guard.
var (
	throttledGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "silo_rate_limit_throttled",
		Help: "1 while scrape fetches are inside a throttling backoff window",
	})

	tripsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "silo_rate_limit_trips_total",
		Help: "Total number of throttling signals that tripped the guard",
	})

	shortCircuitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "silo_rate_limit_short_circuits_total",
		Help: "Total number of scrape calls failed fast by the guard",
	})
)

// Guard gates scrape-style fetches on the shared throttling state. Every
// consult and update is serialized, so all callers sharing a Guard observe
// a single state.
type Guard struct {
	mu     sync.Mutex
	store  Store
	window time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// NewGuard creates a guard over store. A non-positive window uses
// DefaultBackoffWindow.
func NewGuard(store Store, window time.Duration, logger zerolog.Logger, opts ...Option) *Guard {
	if window <= 0 {
		window = DefaultBackoffWindow
	}
	g := &Guard{
		store:  store,
		window: window,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewMemoryGuard creates a guard with process-local state.
func NewMemoryGuard(window time.Duration, logger zerolog.Logger, opts ...Option) *Guard {
	return NewGuard(NewMemoryStore(), window, logger, opts...)
}

// Window returns the backoff window.
func (g *Guard) Window() time.Duration {
	return g.window
}

type checkOptions struct {
	ignore bool
}

// CheckOption configures a single Check call.
type CheckOption func(*checkOptions)

// IgnoreRateLimit lets one call through even while throttled.
func IgnoreRateLimit() CheckOption {
	return func(o *checkOptions) {
		o.ignore = true
	}
}

// Check returns a *ThrottledError if a scrape call must not go out now.
// An expired window is cleared here, on the first consult after it ends.
func (g *Guard) Check(ctx context.Context, opts ...CheckOption) error {
	var o checkOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.ignore {
		g.logger.Debug().Msg("Rate limit check skipped by caller")
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rate limit state: %w", err)
	}
	if state.IsClear() {
		return nil
	}

	now := g.now()
	if !state.Throttled(now, g.window) {
		if err := g.store.Save(ctx, State{}); err != nil {
			return fmt.Errorf("clear rate limit state: %w", err)
		}
		throttledGauge.Set(0)
		g.logger.Info().
			Time("throttled_at", state.LastThrottledAt).
			Msg("Rate limit backoff expired")
		return nil
	}

	shortCircuitsTotal.Inc()
	retryAfter := state.TimeUntilClear(now, g.window)
	g.logger.Warn().
		Time("throttled_at", state.LastThrottledAt).
		Dur("retry_after", retryAfter).
		Msg("Rate limited - failing scrape call fast")

	return &ThrottledError{
		Since:      state.LastThrottledAt,
		RetryAfter: retryAfter,
		Err:        state.LastError,
	}
}

// Observe records a throttling event if status (with its redirect Location)
// is in signals. It returns a *ThrottledError wrapping cause when the guard
// trips, and nil otherwise.
func (g *Guard) Observe(ctx context.Context, signals Signals, status int, location string, cause error) error {
	if !signals.Matches(status, location) {
		return nil
	}
	if cause == nil {
		cause = fmt.Errorf("throttling response: status %d", status)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if err := g.store.Save(ctx, State{LastThrottledAt: now, LastError: cause, LastStatus: status}); err != nil {
		return fmt.Errorf("store rate limit state: %w", err)
	}

	tripsTotal.Inc()
	throttledGauge.Set(1)
	g.logger.Warn().
		Int("status", status).
		Str("location", location).
		Dur("window", g.window).
		Err(cause).
		Msg("Throttling signal received - backing off scrape calls")

	return &ThrottledError{Since: now, RetryAfter: g.window, Err: cause}
}

// State returns the current stored state without clearing expired windows.
func (g *Guard) State(ctx context.Context) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Load(ctx)
}

// Reset clears the state.
func (g *Guard) Reset(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	throttledGauge.Set(0)
	return g.store.Save(ctx, State{})
}
