// Package cache persists freshness tokens (ETags) between fetches so that
// repeated fetches of the same listing or item can be sent as conditional
// requests.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 24*time.Hour)
//
//	key := cache.Key{Platform: "graph", UserID: "me", Count: 20}
//	if entry, err := manager.Get(ctx, key); err == nil {
//		query.ETag = entry.ETag
//	}
//
//	resp, err := orchestrator.Fetch(ctx, query)
//	if err == nil {
//		_ = manager.Record(ctx, key, resp)
//	}
//
// A 304 answer carries no items and the same ETag; Record then only extends
// the entry's lifetime and keeps its item count.
//
// # Metrics
//
//   - silo_etag_cache_hits_total
//   - silo_etag_cache_misses_total
//   - silo_etag_not_modified_total
//   - silo_etag_cache_errors_total{operation}
package cache
