package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of transport errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 and 420/520 rate limit responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassRedirect represents unfollowed 3xx redirects.
	ErrorClassRedirect ErrorClass = "redirect"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// ErrUserAgentRequired is returned by New when no User-Agent is configured.
var ErrUserAgentRequired = errors.New("user-agent is required")

// HTTPError is a failed platform request.
type HTTPError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	URL        string
	Err        error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (status %d) for %s: %s: %v",
			e.ErrorClass, e.StatusCode, e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (status %d) for %s: %s",
		e.ErrorClass, e.StatusCode, e.URL, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0. Besides
// *HTTPError it recognizes errors with an HTTPStatus() int method, such as
// errors restored from a shared rate limit store.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	var status interface{ HTTPStatus() int }
	if errors.As(err, &status) {
		return status.HTTPStatus()
	}
	return 0
}

// classifyStatus categorizes a response status. 2xx and 304 have no class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests || status == 420 || status == 520:
		return ErrorClassRateLimit
	case status == http.StatusNotModified:
		return ""
	case status >= 300 && status < 400:
		return ErrorClassRedirect
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
