// Package canonical converts platform-native identifiers into domain-scoped
// tag URIs and back, and hosts the id primitives platform adapters build on:
// the segmented id grammar, the radix-64 slug codec and content-addressed ids.
package canonical

import (
	"fmt"
	"strings"
)

// ID is a canonical, domain-scoped identifier of the form tag:<domain>:<native>.
type ID string

const tagPrefix = "tag:"

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// Encode builds the canonical id for a native id within domain.
// The native id is embedded verbatim, so any grammar variant survives a
// Decode unchanged.
func Encode(domain, native string) (ID, error) {
	if err := validateDomain(domain); err != nil {
		return "", err
	}
	if native == "" {
		return "", fmt.Errorf("%w: empty native id", ErrMalformedTag)
	}
	return ID(tagPrefix + domain + ":" + native), nil
}

// MustEncode is like Encode but panics on error. Intended for constants in
// adapters and tests.
func MustEncode(domain, native string) ID {
	id, err := Encode(domain, native)
	if err != nil {
		panic(err)
	}
	return id
}

// Decode splits a canonical id into its domain and native id.
//
// The dated authority form tag:<domain>,<yyyy>:<native> is accepted too; the
// date is dropped and the domain returned as written.
func Decode(id ID) (domain, native string, err error) {
	s := string(id)
	if !strings.HasPrefix(s, tagPrefix) {
		return "", "", fmt.Errorf("%w: missing %q prefix in %q", ErrMalformedTag, tagPrefix, s)
	}

	rest := s[len(tagPrefix):]
	sep := strings.IndexByte(rest, ':')
	if sep <= 0 || sep == len(rest)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedTag, s)
	}

	authority, native := rest[:sep], rest[sep+1:]
	domain = authority
	if comma := strings.IndexByte(authority, ','); comma >= 0 {
		domain = authority[:comma]
		if domain == "" || !isDate(authority[comma+1:]) {
			return "", "", fmt.Errorf("%w: bad authority %q", ErrMalformedTag, authority)
		}
	}

	return domain, native, nil
}

// DecodeFor decodes id and verifies that it belongs to the expected domain.
// A mismatch is returned as *DomainMismatchError and must be treated as a
// hard failure by callers.
func DecodeFor(expected string, id ID) (string, error) {
	domain, native, err := Decode(id)
	if err != nil {
		return "", err
	}
	if domain != expected {
		return "", &DomainMismatchError{Expected: expected, Actual: domain, ID: id}
	}
	return native, nil
}

// Domain returns the domain embedded in id, or "" if id is malformed.
func (id ID) Domain() string {
	domain, _, err := Decode(id)
	if err != nil {
		return ""
	}
	return domain
}

func validateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("%w: empty domain", ErrMalformedTag)
	}
	if strings.ContainsAny(domain, ":, \t\n/") {
		return fmt.Errorf("%w: invalid domain %q", ErrMalformedTag, domain)
	}
	return nil
}

// isDate accepts yyyy, yyyy-mm and yyyy-mm-dd authority dates.
func isDate(s string) bool {
	switch len(s) {
	case 4, 7, 10:
	default:
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if i == 4 || i == 7 {
			if c != '-' {
				return false
			}
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
