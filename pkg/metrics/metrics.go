// Package metrics exposes the Prometheus metrics of the fetch pipeline.
// All metrics are defined in their respective packages (transport,
// ratelimit, fetch, cache) to maintain modularity and avoid circular
// dependencies; this package serves them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Transport Metrics (pkg/transport):
//   - silo_requests_total{host, status} (Counter): Platform requests by host and HTTP status
//   - silo_request_duration_seconds{host} (Histogram): Request duration by host
//   - silo_request_errors_total{class} (Counter): Errors by class (client, server, rate_limit, redirect, network)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - silo_rate_limit_throttled (Gauge): 1 while scrape calls are backing off
//   - silo_rate_limit_trips_total (Counter): Throttling signals received
//   - silo_rate_limit_short_circuits_total (Counter): Scrape calls refused without a request
//
// Fetch Metrics (pkg/fetch):
//   - silo_fetch_duration_seconds{platform, scope, outcome} (Histogram): Complete fetch duration
//   - silo_enrichment_batches_total{platform, kind, status} (Counter): Secondary batches by outcome
//   - silo_enriched_items_total{platform, kind} (Counter): Secondary items merged
//
// ETag Cache Metrics (pkg/cache):
//   - silo_etag_cache_hits_total (Counter)
//   - silo_etag_cache_misses_total (Counter)
//   - silo_etag_not_modified_total (Counter): Fetches answered with 304
//   - silo_etag_cache_errors_total{operation} (Counter)
//
// Example Prometheus Queries:
//
//   # Degraded enrichment rate
//   sum(rate(silo_enrichment_batches_total{status!="ok"}[5m])) /
//   sum(rate(silo_enrichment_batches_total[5m]))
//
//   # Currently backing off
//   silo_rate_limit_throttled == 1
//
//   # P95 fetch latency per platform
//   histogram_quantile(0.95, sum by (platform, le) (rate(silo_fetch_duration_seconds_bucket[5m])))

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves /metrics and /health.
type Server struct {
	addr   string
	logger zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a metrics server for addr, e.g. ":9090".
func NewServer(addr string, logger zerolog.Logger) *Server {
	return &Server{addr: addr, logger: logger}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("metrics server already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.listener = ln
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}(s.server)

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics server started")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	return err
}
