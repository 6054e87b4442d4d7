package canonical

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SlugAlphabet is the URL-safe base64 digit set, most significant digit
// first: A-Z, a-z, 0-9, '-', '_'.
const SlugAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

const slugRadix = uint64(len(SlugAlphabet))

// ToSlugInt encodes n as a radix-64 slug with no padding. Zero has no slug
// and reports false.
func ToSlugInt(n uint64) (string, bool) {
	if n == 0 {
		return "", false
	}

	var buf [11]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = SlugAlphabet[n%slugRadix]
		n /= slugRadix
	}
	return string(buf[i:]), true
}

// ToSlug converts a numeric id string to its slug. Composite ids such as
// MEDIA_USER are encoded from their leading integer. Input that is not
// numeric is assumed to already be a slug and returned unchanged. Empty or
// zero input reports false.
func ToSlug(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	head, _, _ := strings.Cut(raw, "_")
	if !isDigits(head) {
		return raw, true
	}

	n, err := strconv.ParseUint(head, 10, 64)
	if err != nil {
		// too large to be a numeric id; treat as opaque
		return raw, true
	}
	return ToSlugInt(n)
}

// ToNumeric decodes a slug back to its integer.
func ToNumeric(slug string) (uint64, error) {
	if slug == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidSlug)
	}

	var n uint64
	for i := 0; i < len(slug); i++ {
		digit := strings.IndexByte(SlugAlphabet, slug[i])
		if digit < 0 {
			return 0, fmt.Errorf("%w: %q at offset %d", ErrInvalidSlug, slug[i], i)
		}
		if n > (math.MaxUint64-uint64(digit))/slugRadix {
			return 0, fmt.Errorf("%w: %q overflows uint64", ErrInvalidSlug, slug)
		}
		n = n*slugRadix + uint64(digit)
	}
	return n, nil
}

// IsSlugShaped reports whether s only contains slug digits and is not a
// plain decimal number.
func IsSlugShaped(s string) bool {
	if s == "" || isDigits(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(SlugAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
