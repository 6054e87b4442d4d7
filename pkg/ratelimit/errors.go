package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrThrottled is matched by *ThrottledError.
var ErrThrottled = errors.New("rate limited")

// ThrottledError is returned while the guard is in its backoff window. It is
// retriable after RetryAfter and wraps the error that tripped the guard.
type ThrottledError struct {
	Since      time.Time
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *ThrottledError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited since %s (retry in %s): %v",
			e.Since.Format(time.RFC3339), e.RetryAfter.Round(time.Second), e.Err)
	}
	return fmt.Sprintf("rate limited since %s (retry in %s)",
		e.Since.Format(time.RFC3339), e.RetryAfter.Round(time.Second))
}

// Unwrap returns the captured error.
func (e *ThrottledError) Unwrap() error {
	return e.Err
}

// storedError is a captured error restored from a shared store. It keeps
// the message and HTTP status of the original.
type storedError struct {
	msg    string
	status int
}

func (e *storedError) Error() string {
	return e.msg
}

// HTTPStatus returns the status of the response that tripped the guard.
func (e *storedError) HTTPStatus() int {
	return e.status
}

// Is reports whether target is ErrThrottled.
func (e *ThrottledError) Is(target error) bool {
	return target == ErrThrottled
}
