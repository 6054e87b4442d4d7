// Package platform holds the per-platform adapters the fetch pipeline is
// parameterized by: id grammar, batch limit, throttling signals, endpoint
// templates and response decoding.
package platform

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/silo-activity/pkg/activity"
	"github.com/Sternrassler/silo-activity/pkg/canonical"
	"github.com/Sternrassler/silo-activity/pkg/ratelimit"
)

// ErrDecode is wrapped by every response decoding failure.
var ErrDecode = errors.New("decode platform response")

// Adapter describes one platform.
type Adapter interface {
	// Name is the registry key, e.g. "graph".
	Name() string

	// Domain is the canonical id domain, e.g. "facebook.com".
	Domain() string

	// ParseNativeID parses a platform id. Unrecognized ids yield
	// canonical.Unknown.
	ParseNativeID(raw string, kind canonical.Kind) canonical.NativeID

	// ItemRef renders a parsed id into the form the item endpoint expects.
	ItemRef(id canonical.NativeID) string

	// MaxBatchSize is the most ids one secondary request may carry.
	MaxBatchSize() int

	// ThrottleSignals are the responses that trip the rate-limit guard.
	ThrottleSignals() ratelimit.Signals

	Endpoints() Endpoints

	// Scrape reports whether the platform is fetched by scraping, in which
	// case the rate-limit guard is consulted before every primary fetch.
	Scrape() bool

	// SupportsEnrichment reports whether secondary content of kind may be
	// requested for item.
	SupportsEnrichment(item *activity.Item, kind activity.SecondaryKind) bool

	DecodePage(body []byte) (Page, error)

	// DecodeItem returns nil, nil when the platform reports the item as
	// missing.
	DecodeItem(body []byte) (*activity.Item, error)

	// DecodeSecondary returns secondary items grouped by parent native id.
	// parents are the ids the request was made for.
	DecodeSecondary(kind activity.SecondaryKind, parents []string, body []byte) (map[string][]activity.Item, error)
}

// Page is one decoded listing page.
type Page struct {
	Items []*activity.Item

	// Total is the platform's total count, when it reports one.
	Total *int
}

// Template placeholders.
const (
	PlaceholderUser   = "{user}"
	PlaceholderOffset = "{offset}"
	PlaceholderCount  = "{count}"
	PlaceholderID     = "{id}"
)

// Endpoints are the request templates for one platform. Secondary templates
// carry the batch ids placeholder "{ids}".
type Endpoints struct {
	BaseURL   string                            `yaml:"base_url"`
	List      string                            `yaml:"list"`
	Item      string                            `yaml:"item"`
	Secondary map[activity.SecondaryKind]string `yaml:"secondary"`
}

// ListURL renders the listing template.
func (e Endpoints) ListURL(user string, offset, count int) string {
	return strings.NewReplacer(
		PlaceholderUser, url.PathEscape(user),
		PlaceholderOffset, strconv.Itoa(offset),
		PlaceholderCount, strconv.Itoa(count),
	).Replace(e.List)
}

// ItemURL renders the single item template.
func (e Endpoints) ItemURL(ref string) string {
	return strings.ReplaceAll(e.Item, PlaceholderID, url.PathEscape(ref))
}

// SecondaryTemplate returns the template for kind, or "" if the platform
// has none.
func (e Endpoints) SecondaryTemplate(kind activity.SecondaryKind) string {
	return e.Secondary[kind]
}

// Merge returns e with every non-empty field of override applied.
func (e Endpoints) Merge(override Endpoints) Endpoints {
	out := e
	if override.BaseURL != "" {
		out.BaseURL = override.BaseURL
	}
	if override.List != "" {
		out.List = override.List
	}
	if override.Item != "" {
		out.Item = override.Item
	}
	if len(override.Secondary) > 0 {
		out.Secondary = make(map[activity.SecondaryKind]string, len(e.Secondary)+len(override.Secondary))
		for k, v := range e.Secondary {
			out.Secondary[k] = v
		}
		for k, v := range override.Secondary {
			out.Secondary[k] = v
		}
	}
	return out
}

// base carries the fields every built-in adapter shares.
type base struct {
	name      string
	domain    string
	endpoints Endpoints
}

// Name returns the registry name of the adapter.
func (b *base) Name() string { return b.name }

// Domain returns the tag URI authority of the adapter.
func (b *base) Domain() string { return b.domain }

// Endpoints returns the current endpoint templates.
func (b *base) Endpoints() Endpoints { return b.endpoints }

// SetEndpoints replaces the adapter's endpoint templates.
func (b *base) SetEndpoints(e Endpoints) { b.endpoints = e }

// tag builds a canonical id in the adapter's domain. Empty natives yield "".
func (b *base) tag(native string) canonical.ID {
	if native == "" {
		return ""
	}
	id, err := canonical.Encode(b.domain, native)
	if err != nil {
		return ""
	}
	return id
}
