package cache

import "time"

// Entry is the stored freshness state of one fetch.
type Entry struct {
	// ETag for conditional requests (If-None-Match)
	ETag string `json:"etag"`

	// FetchedAt is when the content behind ETag was last fetched in full.
	FetchedAt time.Time `json:"fetched_at"`

	// ItemCount is the number of primary items that fetch returned.
	ItemCount int `json:"item_count"`

	// CheckedAt is when the ETag was last confirmed, by a full fetch or a 304.
	CheckedAt time.Time `json:"checked_at"`
}

// Age returns how long ago the content was fetched in full.
func (e *Entry) Age(now time.Time) time.Duration {
	if e.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(e.FetchedAt)
}

// Usable reports whether the entry carries a token worth sending.
func (e *Entry) Usable() bool {
	return e != nil && e.ETag != ""
}
