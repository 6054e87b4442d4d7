package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testSignals = Signals{Statuses: []int{429, 503}, LoginPaths: []string{"/accounts/login"}}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestGuard(window time.Duration) (*Guard, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewMemoryGuard(window, zerolog.Nop(), WithClock(clock.Now)), clock
}

func TestGuard_ClearAllowsCalls(t *testing.T) {
	g, _ := newTestGuard(time.Hour)
	if err := g.Check(context.Background()); err != nil {
		t.Fatalf("Check() on clear guard = %v", err)
	}
}

func TestGuard_ObserveIgnoresNonSignals(t *testing.T) {
	g, _ := newTestGuard(time.Hour)
	ctx := context.Background()

	for _, status := range []int{200, 304, 400, 404, 500} {
		if err := g.Observe(ctx, testSignals, status, "", nil); err != nil {
			t.Errorf("Observe(%d) = %v, want nil", status, err)
		}
	}
	if err := g.Check(ctx); err != nil {
		t.Errorf("Check() after non-signals = %v", err)
	}
}

func TestGuard_BackoffWindow(t *testing.T) {
	window := time.Hour
	g, clock := newTestGuard(window)
	ctx := context.Background()
	tripped := clock.Now()
	cause := errors.New("429 Too Many Requests")

	err := g.Observe(ctx, testSignals, 429, "", cause)
	if !errors.Is(err, ErrThrottled) || !errors.Is(err, cause) {
		t.Fatalf("Observe() = %v, want ThrottledError wrapping cause", err)
	}

	// Just inside the window: short circuit with the original error.
	clock.Set(tripped.Add(window - time.Millisecond))
	err = g.Check(ctx)
	var throttled *ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("Check() at T+W-e = %v, want *ThrottledError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Check() error does not wrap cause: %v", err)
	}
	if !throttled.Since.Equal(tripped) {
		t.Errorf("Since = %v, want %v", throttled.Since, tripped)
	}
	if throttled.RetryAfter != time.Millisecond {
		t.Errorf("RetryAfter = %v, want 1ms", throttled.RetryAfter)
	}

	// Just past the window: live again, and the state is cleared lazily.
	clock.Set(tripped.Add(window + time.Millisecond))
	if err := g.Check(ctx); err != nil {
		t.Fatalf("Check() at T+W+e = %v, want nil", err)
	}
	state, _ := g.State(ctx)
	if !state.IsClear() {
		t.Errorf("state after expiry = %+v, want clear", state)
	}
}

func TestGuard_IgnoreRateLimit(t *testing.T) {
	g, _ := newTestGuard(time.Hour)
	ctx := context.Background()

	_ = g.Observe(ctx, testSignals, 503, "", nil)
	if err := g.Check(ctx); !errors.Is(err, ErrThrottled) {
		t.Fatalf("Check() = %v, want ErrThrottled", err)
	}
	if err := g.Check(ctx, IgnoreRateLimit()); err != nil {
		t.Errorf("Check(IgnoreRateLimit) = %v, want nil", err)
	}
	// opting out for one call does not clear the state
	if err := g.Check(ctx); !errors.Is(err, ErrThrottled) {
		t.Errorf("Check() after opt-out = %v, want ErrThrottled", err)
	}
}

func TestGuard_LoginRedirectTrips(t *testing.T) {
	g, _ := newTestGuard(time.Hour)
	ctx := context.Background()

	err := g.Observe(ctx, testSignals, 302, "https://www.instagram.com/accounts/login/", nil)
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("Observe(login redirect) = %v, want ErrThrottled", err)
	}
	if err := g.Check(ctx); !errors.Is(err, ErrThrottled) {
		t.Errorf("Check() = %v, want ErrThrottled", err)
	}
}

func TestGuard_SharedAcrossCallers(t *testing.T) {
	g, _ := newTestGuard(time.Hour)
	ctx := context.Background()

	// Caller A trips the guard; every concurrent caller B short-circuits.
	_ = g.Observe(ctx, testSignals, 429, "", errors.New("caller A got 429"))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- g.Check(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrThrottled) {
			t.Errorf("concurrent Check() = %v, want ErrThrottled", err)
		}
	}
}

func TestGuard_IndependentInstances(t *testing.T) {
	a, _ := newTestGuard(time.Hour)
	b, _ := newTestGuard(time.Hour)
	ctx := context.Background()

	_ = a.Observe(ctx, testSignals, 429, "", nil)
	if err := b.Check(ctx); err != nil {
		t.Errorf("independent guard affected: %v", err)
	}
}

func TestGuard_Reset(t *testing.T) {
	g, _ := newTestGuard(time.Hour)
	ctx := context.Background()

	_ = g.Observe(ctx, testSignals, 429, "", nil)
	if err := g.Reset(ctx); err != nil {
		t.Fatalf("Reset() = %v", err)
	}
	if err := g.Check(ctx); err != nil {
		t.Errorf("Check() after Reset = %v", err)
	}
}

func TestNewGuard_DefaultWindow(t *testing.T) {
	g := NewMemoryGuard(0, zerolog.Nop())
	if g.Window() != DefaultBackoffWindow {
		t.Errorf("Window() = %v, want %v", g.Window(), DefaultBackoffWindow)
	}
}

type failingStore struct{}

func (failingStore) Load(context.Context) (State, error) { return State{}, errors.New("store down") }
func (failingStore) Save(context.Context, State) error   { return errors.New("store down") }

func TestGuard_StoreErrors(t *testing.T) {
	g := NewGuard(failingStore{}, time.Hour, zerolog.Nop())
	ctx := context.Background()

	if err := g.Check(ctx); err == nil || errors.Is(err, ErrThrottled) {
		t.Errorf("Check() = %v, want store error", err)
	}
	if err := g.Observe(ctx, testSignals, 429, "", nil); err == nil || errors.Is(err, ErrThrottled) {
		t.Errorf("Observe() = %v, want store error", err)
	}
}
