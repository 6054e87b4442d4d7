// Package activity defines the canonical activity record produced from every
// platform and the response envelope returned by a fetch.
package activity

import (
	"time"

	"github.com/Sternrassler/silo-activity/pkg/canonical"
)

// SecondaryKind names one bag of secondary content attached to an item.
type SecondaryKind string

const (
	// Replies are comments on the item.
	Replies SecondaryKind = "replies"

	// Reactions are likes and emoji reactions.
	Reactions SecondaryKind = "reactions"

	// Shares are reshares or reposts of the item.
	Shares SecondaryKind = "shares"
)

// SecondaryKinds lists every kind in fetch order.
var SecondaryKinds = []SecondaryKind{Replies, Reactions, Shares}

// Actor is the author of an item.
type Actor struct {
	ID          canonical.ID `json:"id,omitempty"`
	DisplayName string       `json:"displayName,omitempty"`
	Username    string       `json:"username,omitempty"`
	URL         string       `json:"url,omitempty"`
}

// Item is one canonical activity: a post, a comment, a reaction or a share.
type Item struct {
	ID canonical.ID `json:"id"`

	// NativeID is the platform id the canonical id was built from.
	NativeID string `json:"nativeId,omitempty"`

	Verb       string    `json:"verb,omitempty"`
	ObjectType string    `json:"objectType,omitempty"`
	Author     *Actor    `json:"author,omitempty"`
	Content    string    `json:"content,omitempty"`
	URL        string    `json:"url,omitempty"`
	Published  time.Time `json:"published,omitzero"`

	InReplyTo  []canonical.ID `json:"inReplyTo,omitempty"`
	ShareOf    canonical.ID   `json:"shareOf,omitempty"`
	ReactionOf canonical.ID   `json:"reactionOf,omitempty"`

	Replies   []Item `json:"replies,omitempty"`
	Reactions []Item `json:"reactions,omitempty"`
	Shares    []Item `json:"shares,omitempty"`

	// Extra carries platform fields that adapters use to decide on
	// enrichment, e.g. a post subtype.
	Extra map[string]any `json:"-"`
}

// Secondary returns the bag for kind.
func (it *Item) Secondary(kind SecondaryKind) []Item {
	switch kind {
	case Replies:
		return it.Replies
	case Reactions:
		return it.Reactions
	case Shares:
		return it.Shares
	default:
		return nil
	}
}

// AppendSecondary appends to the bag for kind without any de-duplication.
func (it *Item) AppendSecondary(kind SecondaryKind, items ...Item) {
	switch kind {
	case Replies:
		it.Replies = append(it.Replies, items...)
	case Reactions:
		it.Reactions = append(it.Reactions, items...)
	case Shares:
		it.Shares = append(it.Shares, items...)
	}
}

// ExtraString returns Extra[key] if it is a string.
func (it *Item) ExtraString(key string) string {
	if it.Extra == nil {
		return ""
	}
	s, _ := it.Extra[key].(string)
	return s
}
