package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks ETag lookups that found an entry
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "silo_etag_cache_hits_total",
			Help: "Total number of ETag cache hits",
		},
	)

	// CacheMisses tracks ETag lookups that found nothing
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "silo_etag_cache_misses_total",
			Help: "Total number of ETag cache misses",
		},
	)

	// NotModified tracks fetches answered with 304 Not Modified
	NotModified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "silo_etag_not_modified_total",
			Help: "Total number of fetches answered with 304 Not Modified",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silo_etag_cache_errors_total",
			Help: "Total number of ETag cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "record"
	)
)
