package canonical

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestToSlug(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"", "", false},
		{"0", "", false},
		{"1209758400153852506", "BDJ7Nr5Nxpa", true},
		{"1209758400153852506_1103525", "BDJ7Nr5Nxpa", true},
		{"BDJ7Nr5Nxpa", "BDJ7Nr5Nxpa", true},
		{"BDJ7N_5Nxpa", "BDJ7N_5Nxpa", true},
		{"1", "B", true},
		{"64", "BA", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ToSlug(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ToSlug(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestToSlugInt(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{1, "B"},
		{63, "_"},
		{64, "BA"},
		{4095, "__"},
		{4096, "BAA"},
		{1209758400153852506, "BDJ7Nr5Nxpa"},
		{math.MaxUint64, "P__________"},
	}

	for _, tt := range tests {
		got, ok := ToSlugInt(tt.n)
		if !ok || got != tt.want {
			t.Errorf("ToSlugInt(%d) = (%q, %v), want %q", tt.n, got, ok, tt.want)
		}
	}

	if got, ok := ToSlugInt(0); ok || got != "" {
		t.Errorf("ToSlugInt(0) = (%q, %v), want null", got, ok)
	}
}

func TestToNumeric(t *testing.T) {
	n, err := ToNumeric("BDJ7Nr5Nxpa")
	if err != nil {
		t.Fatalf("ToNumeric() error = %v", err)
	}
	if n != 1209758400153852506 {
		t.Errorf("ToNumeric() = %d, want 1209758400153852506", n)
	}

	for _, bad := range []string{"", "abc!", "BDJ 7", "QAAAAAAAAAA", "___________"} {
		if _, err := ToNumeric(bad); !errors.Is(err, ErrInvalidSlug) {
			t.Errorf("ToNumeric(%q) error = %v, want ErrInvalidSlug", bad, err)
		}
	}
}

func TestSlug_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	values := []uint64{1, 2, 63, 64, 65, 1 << 32, math.MaxUint64}
	for i := 0; i < 1000; i++ {
		values = append(values, rng.Uint64()>>uint(rng.Intn(64)))
	}

	for _, v := range values {
		if v == 0 {
			continue
		}
		slug, ok := ToSlugInt(v)
		if !ok {
			t.Fatalf("ToSlugInt(%d) reported null", v)
		}
		got, err := ToNumeric(slug)
		if err != nil {
			t.Fatalf("ToNumeric(%q) error = %v", slug, err)
		}
		if got != v {
			t.Errorf("ToNumeric(ToSlugInt(%d)) = %d", v, got)
		}
	}
}

func TestIsSlugShaped(t *testing.T) {
	for s, want := range map[string]bool{
		"BDJ7Nr5Nxpa": true,
		"BDJ7N_5Nxpa": true,
		"12345":       false,
		"":            false,
		"a b":         false,
	} {
		if got := IsSlugShaped(s); got != want {
			t.Errorf("IsSlugShaped(%q) = %v, want %v", s, got, want)
		}
	}
}
