// Package transport provides the HTTP capability the fetch pipeline issues
// platform requests through. Platform adapters supply base URLs and
// headers; this package owns pacing, conditional requests, status
// classification and request metrics. It never retries.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silo_requests_total",
		Help: "Total platform requests by host and status",
	}, []string{"host", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "silo_request_duration_seconds",
		Help:    "Platform request duration in seconds by host",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"host"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silo_request_errors_total",
		Help: "Total platform request errors by class",
	}, []string{"class"})
)

// Transport issues one platform request.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req *Request) (*Response, error)

// Do implements Transport.
func (f Func) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Request is a parameterized platform call.
type Request struct {
	// Method defaults to GET.
	Method string

	// URL is absolute, or relative to the transport's base URL.
	URL string

	Header http.Header
	Body   []byte

	// ETag, if set, is sent as If-None-Match.
	ETag string
}

// Response is a platform response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Location is the redirect target for 3xx responses.
	Location string
}

// NotModified reports a 304 response to a conditional request.
func (r *Response) NotModified() bool {
	return r != nil && r.StatusCode == http.StatusNotModified
}

// ETag returns the response's ETag header.
func (r *Response) ETag() string {
	if r == nil {
		return ""
	}
	return r.Header.Get("ETag")
}

// Config holds the HTTP transport configuration.
type Config struct {
	// BaseURL is prepended to relative request URLs.
	BaseURL string

	// UserAgent header (required).
	UserAgent string

	// Timeout per request.
	Timeout time.Duration

	// RequestsPerSecond paces outgoing requests; 0 disables pacing.
	RequestsPerSecond float64
	Burst             int

	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:           baseURL,
		UserAgent:         userAgent,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		MaxBodyBytes:      10 << 20,
	}
}

// HTTPTransport is the net/http implementation of Transport. It does not
// follow redirects, so login redirects stay visible to the throttling guard.
type HTTPTransport struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates an HTTP transport.
func New(cfg Config, logger zerolog.Logger) (*HTTPTransport, error) {
	if cfg.UserAgent == "" {
		return nil, ErrUserAgentRequired
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &HTTPTransport{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter: limiter,
		config:  cfg,
		logger:  logger,
	}, nil
}

// Do performs the request. When a response arrives it is always returned;
// for statuses other than 2xx and 304 an *HTTPError is returned alongside it.
func (t *HTTPTransport) Do(ctx context.Context, r *Request) (*Response, error) {
	target, err := t.resolve(r.URL)
	if err != nil {
		return nil, err
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for request slot: %w", err)
		}
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", t.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if r.ETag != "" {
		req.Header.Set("If-None-Match", r.ETag)
	}

	host := target.Host
	start := time.Now()
	t.logger.Debug().
		Str("method", method).
		Str("url", target.Redacted()).
		Bool("conditional", r.ETag != "").
		Msg("Executing platform request")

	resp, err := t.httpClient.Do(req)
	requestDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(host, "network_error").Inc()
		return nil, &HTTPError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			URL:        target.Redacted(),
			Err:        err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.config.MaxBodyBytes))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			URL:        target.Redacted(),
			Err:        err,
		}
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Location:   resp.Header.Get("Location"),
	}
	requestsTotal.WithLabelValues(host, strconv.Itoa(resp.StatusCode)).Inc()

	class := classifyStatus(resp.StatusCode)
	if class == "" {
		return out, nil
	}

	errorsTotal.WithLabelValues(string(class)).Inc()
	t.logger.Warn().
		Str("url", target.Redacted()).
		Int("status", resp.StatusCode).
		Str("error_class", string(class)).
		Msg("Platform request error")

	return out, &HTTPError{
		StatusCode: resp.StatusCode,
		ErrorClass: class,
		Message:    http.StatusText(resp.StatusCode),
		URL:        target.Redacted(),
	}
}

func (t *HTTPTransport) resolve(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		if t.config.BaseURL == "" {
			return nil, fmt.Errorf("relative url %q without base url", raw)
		}
		raw = strings.TrimRight(t.config.BaseURL, "/") + "/" + strings.TrimLeft(raw, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	return u, nil
}

// SetHTTPClient sets a custom HTTP client (for testing). Redirects are
// still not followed.
func (t *HTTPTransport) SetHTTPClient(client *http.Client) {
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	t.httpClient = client
}
