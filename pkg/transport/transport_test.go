package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTransport(t *testing.T, baseURL string) *HTTPTransport {
	t.Helper()

	cfg := DefaultConfig(baseURL, "silo-test/1.0 (test@example.com)")
	cfg.RequestsPerSecond = 0
	tr, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tr
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError error
	}{
		{
			name:   "valid config",
			config: DefaultConfig("https://graph.example.com", "silo/1.0"),
		},
		{
			name:        "empty user agent",
			config:      DefaultConfig("https://graph.example.com", ""),
			expectError: ErrUserAgentRequired,
		},
		{
			name:   "zero timeout and body cap fall back to defaults",
			config: Config{UserAgent: "silo/1.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.config, zerolog.Nop())
			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("New() error = %v, want %v", err, tt.expectError)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error = %v", err)
			}
			if tr.config.Timeout <= 0 || tr.config.MaxBodyBytes <= 0 {
				t.Errorf("defaults not applied: %+v", tr.config)
			}
		})
	}
}

func TestDo_Headers(t *testing.T) {
	var gotUA, gotAccept, gotINM string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotINM = r.Header.Get("If-None-Match")
		w.Header().Set("ETag", `"abc"`)
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL)
	resp, err := tr.Do(context.Background(), &Request{URL: "/me/feed", ETag: `"old"`})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if gotUA != "silo-test/1.0 (test@example.com)" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q, want application/json", gotAccept)
	}
	if gotINM != `"old"` {
		t.Errorf("If-None-Match = %q, want %q", gotINM, `"old"`)
	}
	if resp.ETag() != `"abc"` {
		t.Errorf("ETag() = %q", resp.ETag())
	}
	if string(resp.Body) != `{"data":[]}` {
		t.Errorf("Body = %s", resp.Body)
	}
}

func TestDo_NotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL)
	resp, err := tr.Do(context.Background(), &Request{URL: "/feed", ETag: `"v1"`})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil for 304", err)
	}
	if !resp.NotModified() {
		t.Errorf("NotModified() = false, want true")
	}
}

func TestDo_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		wantClass ErrorClass
	}{
		{http.StatusBadRequest, ErrorClassClient},
		{http.StatusUnauthorized, ErrorClassClient},
		{http.StatusNotFound, ErrorClassClient},
		{http.StatusTooManyRequests, ErrorClassRateLimit},
		{http.StatusInternalServerError, ErrorClassServer},
		{http.StatusServiceUnavailable, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			tr := newTestTransport(t, server.URL)
			resp, err := tr.Do(context.Background(), &Request{URL: "/x"})

			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("Do() error = %v, want *HTTPError", err)
			}
			if httpErr.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %v, want %v", httpErr.ErrorClass, tt.wantClass)
			}
			if StatusCode(err) != tt.status {
				t.Errorf("StatusCode() = %d, want %d", StatusCode(err), tt.status)
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Errorf("response not returned alongside error: %+v", resp)
			}
		})
	}
}

func TestDo_DoesNotFollowRedirects(t *testing.T) {
	followed := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/accounts/login/" {
			followed = true
			return
		}
		http.Redirect(w, r, "/accounts/login/", http.StatusFound)
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL)
	resp, err := tr.Do(context.Background(), &Request{URL: "/p/abc/"})

	if followed {
		t.Error("redirect was followed")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.ErrorClass != ErrorClassRedirect {
		t.Errorf("Do() error = %v, want redirect class", err)
	}
	if resp == nil || resp.Location != "/accounts/login/" {
		t.Errorf("Location = %+v, want /accounts/login/", resp)
	}
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	tr := newTestTransport(t, url)
	_, err := tr.Do(context.Background(), &Request{URL: "/feed"})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("Do() error = %v, want network class", err)
	}
}

func TestDo_RelativeURLWithoutBase(t *testing.T) {
	tr := newTestTransport(t, "")
	if _, err := tr.Do(context.Background(), &Request{URL: "/feed"}); err == nil {
		t.Error("Do() with relative url and no base url should fail")
	}
}

func TestDo_ContextCanceledWhilePacing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	cfg := DefaultConfig(server.URL, "silo/1.0")
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	tr, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// first request consumes the burst
	if _, err := tr.Do(context.Background(), &Request{URL: "/a"}); err != nil {
		t.Fatalf("first Do() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := tr.Do(ctx, &Request{URL: "/b"}); err == nil {
		t.Error("second Do() should fail while waiting for a request slot")
	}
}

func TestFunc(t *testing.T) {
	var called bool
	var tr Transport = Func(func(ctx context.Context, req *Request) (*Response, error) {
		called = true
		return &Response{StatusCode: http.StatusOK}, nil
	})

	resp, err := tr.Do(context.Background(), &Request{URL: "x"})
	if err != nil || !called || resp.StatusCode != http.StatusOK {
		t.Errorf("Func.Do() = (%+v, %v), called=%v", resp, err, called)
	}
}

type restoredError struct{ status int }

func (e restoredError) Error() string   { return "restored" }
func (e restoredError) HTTPStatus() int { return e.status }

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), 0},
		{"http error", &HTTPError{StatusCode: http.StatusNotFound}, http.StatusNotFound},
		{"wrapped http error", fmt.Errorf("fetch: %w", &HTTPError{StatusCode: 520}), 520},
		{"status method", fmt.Errorf("guard: %w", restoredError{status: http.StatusTooManyRequests}), http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
