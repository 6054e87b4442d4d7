// Package ratelimit implements the throttling guard for scrape-style fetches.
// Once a platform signals throttling (429, 503, a login redirect, ...), every
// scrape call fails fast with the captured error until the backoff window
// has passed. One state is kept for the whole process, not per account.
package ratelimit

import (
	"net/http"
	"slices"
	"strings"
	"time"
)

// Redis keys for shared guard state.
const (
	RedisKeyLastThrottledAt = "silo:rate_limit:last_throttled_at"
	RedisKeyLastError       = "silo:rate_limit:last_error"
	RedisKeyLastStatus      = "silo:rate_limit:last_status"
)

// DefaultBackoffWindow is how long a throttling event blocks scrape calls.
const DefaultBackoffWindow = time.Hour

// State is the guard's single piece of state. A zero LastThrottledAt means
// Clear.
type State struct {
	// LastThrottledAt is when the most recent throttling signal was seen.
	LastThrottledAt time.Time `json:"last_throttled_at"`

	// LastError is the error captured with that signal. It is re-raised to
	// short-circuited callers.
	LastError error `json:"-"`

	// LastStatus is the HTTP status of that signal.
	LastStatus int `json:"last_status,omitempty"`
}

// IsClear returns true if no throttling event is recorded.
func (s State) IsClear() bool {
	return s.LastThrottledAt.IsZero()
}

// Throttled returns true while now is inside the backoff window.
func (s State) Throttled(now time.Time, window time.Duration) bool {
	return !s.IsClear() && now.Before(s.LastThrottledAt.Add(window))
}

// TimeUntilClear returns the remaining backoff, or 0 if already clear.
func (s State) TimeUntilClear(now time.Time, window time.Duration) time.Duration {
	if s.IsClear() {
		return 0
	}
	d := s.LastThrottledAt.Add(window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Signals is a platform's set of throttling responses.
type Signals struct {
	// Statuses are HTTP status codes that mean "throttled".
	Statuses []int

	// LoginPaths are substrings of a redirect Location that mean the
	// platform bounced us to a login page.
	LoginPaths []string
}

// Matches reports whether a response with status and Location header is a
// throttling signal.
func (s Signals) Matches(status int, location string) bool {
	if slices.Contains(s.Statuses, status) {
		return true
	}
	if !isRedirect(status) || location == "" {
		return false
	}
	for _, path := range s.LoginPaths {
		if strings.Contains(location, path) {
			return true
		}
	}
	return false
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
