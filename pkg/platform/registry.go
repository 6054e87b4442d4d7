package platform

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrUnknownPlatform is returned by Lookup for unregistered names.
	ErrUnknownPlatform = errors.New("unknown platform")

	// ErrDuplicatePlatform is returned by Register for a name already taken.
	ErrDuplicatePlatform = errors.New("platform already registered")
)

// Registry maps platform names to adapters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// DefaultRegistry returns a registry holding the built-in adapters.
func DefaultRegistry(logger zerolog.Logger) *Registry {
	r := NewRegistry()
	for _, a := range []Adapter{
		NewGraph(logger),
		NewPhoto(logger),
		NewRelay(logger),
	} {
		r.MustRegister(a)
	}
	return r
}

// MustRegister is like Register but panics if the name is already taken.
func (r *Registry) MustRegister(a Adapter) {
	if err := r.Register(a); err != nil {
		panic(err)
	}
}

// Register adds an adapter under its name.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.adapters[a.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePlatform, a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Lookup returns the adapter registered under name.
func (r *Registry) Lookup(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
	}
	return a, nil
}

// LookupDomain returns the adapter whose canonical ids use domain.
func (r *Registry) LookupDomain(domain string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.adapters {
		if a.Domain() == domain {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: no platform for domain %q", ErrUnknownPlatform, domain)
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// endpointSetter is implemented by adapters whose endpoints can be
// overridden from a catalog.
type endpointSetter interface {
	SetEndpoints(Endpoints)
}

// Apply overrides registered adapters' endpoints with the catalog entries.
// Catalog entries for unregistered platforms are an error.
func (r *Registry) Apply(c Catalog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, override := range c.Platforms {
		a, ok := r.adapters[name]
		if !ok {
			return fmt.Errorf("catalog: %w: %q", ErrUnknownPlatform, name)
		}
		setter, ok := a.(endpointSetter)
		if !ok {
			return fmt.Errorf("catalog: platform %q does not accept endpoint overrides", name)
		}
		setter.SetEndpoints(a.Endpoints().Merge(override))
	}
	return nil
}
