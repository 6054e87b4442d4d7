package cache

import (
	"fmt"
	"strings"
)

// Key identifies one fetch: a platform listing page or a single item.
type Key struct {
	Platform string

	// UserID scopes a listing. Ignored when ActivityID is set.
	UserID string

	// ActivityID selects a single item.
	ActivityID string

	StartIndex int
	Count      int
}

// String generates a deterministic cache key string.
// Format: silo:etag:platform:list:user:start:count or
// silo:etag:platform:item:activity
//
// Example:
//
//	silo:etag:graph:list:me:0:20
func (k Key) String() string {
	parts := []string{"silo", "etag", escape(k.Platform)}

	if k.ActivityID != "" {
		parts = append(parts, "item", escape(k.ActivityID))
	} else {
		user := k.UserID
		if user == "" {
			user = "me"
		}
		parts = append(parts, "list", escape(user),
			fmt.Sprintf("%d", k.StartIndex), fmt.Sprintf("%d", k.Count))
	}

	return strings.Join(parts, ":")
}

// escape keeps ids containing ':' from colliding with other keys.
func escape(s string) string {
	return strings.NewReplacer("%", "%25", ":", "%3A").Replace(s)
}
