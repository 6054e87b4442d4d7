package canonical

import (
	"errors"
	"fmt"
)

// Common errors returned by the canonicalizer.
var (
	// ErrMalformedTag is returned when a string is not a well-formed tag URI.
	ErrMalformedTag = errors.New("malformed tag uri")

	// ErrDomainMismatch is matched by *DomainMismatchError.
	ErrDomainMismatch = errors.New("domain mismatch")

	// ErrInvalidSlug is returned for slugs outside the radix-64 alphabet.
	ErrInvalidSlug = errors.New("invalid slug")

	// ErrIncompleteEvent is returned when an event lacks a hashed field.
	ErrIncompleteEvent = errors.New("incomplete event")
)

// DomainMismatchError reports a canonical id that was decoded against the
// wrong domain. This signals a cross-platform bug or a spoofed id.
type DomainMismatchError struct {
	Expected string
	Actual   string
	ID       ID
}

// Error implements the error interface.
func (e *DomainMismatchError) Error() string {
	return fmt.Sprintf("domain mismatch: %s belongs to %q, expected %q", e.ID, e.Actual, e.Expected)
}

// Is reports whether target is ErrDomainMismatch.
func (e *DomainMismatchError) Is(target error) bool {
	return target == ErrDomainMismatch
}
