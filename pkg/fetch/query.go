package fetch

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/silo-activity/pkg/activity"
	"github.com/Sternrassler/silo-activity/pkg/batch"
)

var (
	// ErrInvalidQuery is returned for negative paging parameters.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidNativeID is returned when a requested activity id matches
	// none of the platform's id formats.
	ErrInvalidNativeID = errors.New("invalid native id")
)

// Query selects what one fetch returns.
type Query struct {
	// UserID scopes a listing. Empty means the authenticated user ("me").
	UserID string

	// ActivityID selects a single item instead of a listing.
	ActivityID string

	StartIndex int

	// Count of items per page. 0 selects the configured default; values
	// above the configured maximum are clamped.
	Count int

	// ETag from a previous response, sent as a conditional request.
	ETag string

	FetchReplies   bool
	FetchReactions bool
	FetchShares    bool

	// IgnoreRateLimit bypasses the guard's short circuit for this call.
	IgnoreRateLimit bool
}

// Kinds returns the requested secondary kinds in fetch order.
func (q Query) Kinds() []activity.SecondaryKind {
	var kinds []activity.SecondaryKind
	if q.FetchReplies {
		kinds = append(kinds, activity.Replies)
	}
	if q.FetchReactions {
		kinds = append(kinds, activity.Reactions)
	}
	if q.FetchShares {
		kinds = append(kinds, activity.Shares)
	}
	return kinds
}

// Config holds orchestrator configuration.
type Config struct {
	DefaultCount int
	MaxCount     int

	// Batch configures secondary batch fetching.
	Batch batch.Config
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultCount: 20,
		MaxCount:     100,
		Batch:        batch.DefaultConfig(),
	}
}

// normalize validates paging and applies the count default and clamp.
func (c Config) normalize(q Query) (Query, error) {
	if q.StartIndex < 0 {
		return q, fmt.Errorf("%w: start index %d", ErrInvalidQuery, q.StartIndex)
	}
	if q.Count < 0 {
		return q, fmt.Errorf("%w: count %d", ErrInvalidQuery, q.Count)
	}
	if q.Count == 0 {
		q.Count = c.DefaultCount
	}
	if c.MaxCount > 0 && q.Count > c.MaxCount {
		q.Count = c.MaxCount
	}
	if q.UserID == "" {
		q.UserID = "me"
	}
	return q, nil
}

// fetchTimer times one fetch for silo_fetch_duration_seconds.
type fetchTimer struct {
	platform string
	scope    string
	start    time.Time
}

func (t fetchTimer) observe(outcome string) {
	fetchDuration.WithLabelValues(t.platform, t.scope, outcome).Observe(time.Since(t.start).Seconds())
}
