package platform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/silo-activity/pkg/activity"
	"github.com/Sternrassler/silo-activity/pkg/canonical"
	"github.com/Sternrassler/silo-activity/pkg/ratelimit"
)

// RelayMaxIDs is the most event ids one "#e" filter carries.
const RelayMaxIDs = 100

// Relay event kinds.
const (
	relayKindNote     = 1
	relayKindRepost   = 6
	relayKindReaction = 7
	relayKindArticle  = 30023
)

// Relay is the adapter for an HTTP relay gateway. Event ids are content
// hashes, and events whose id does not match their content are dropped.
type Relay struct {
	base
	logger zerolog.Logger
}

// NewRelay creates the relay adapter with its default endpoints.
func NewRelay(logger zerolog.Logger) *Relay {
	return &Relay{
		base: base{
			name:   "relay",
			domain: "nostr",
			endpoints: Endpoints{
				BaseURL: "https://relay.example.net/api",
				List:    "events?authors={user}&kinds=1,6,30023&offset={offset}&limit={count}",
				Item:    "events/{id}",
				Secondary: map[activity.SecondaryKind]string{
					activity.Replies:   "events?kinds=1&%23e={ids}",
					activity.Reactions: "events?kinds=7&%23e={ids}",
					activity.Shares:    "events?kinds=6&%23e={ids}",
				},
			},
		},
		logger: logger.With().Str("platform", "relay").Logger(),
	}
}

// ParseNativeID accepts only 64-character lowercase hex event ids.
func (r *Relay) ParseNativeID(raw string, kind canonical.Kind) canonical.NativeID {
	if !canonical.IsContentHash(raw) {
		r.logger.Error().
			Str("native_id", raw).
			Str("kind", kind.String()).
			Msg("Refusing id with unknown format")
		return canonical.Unknown
	}
	id := canonical.NativeID{Raw: raw}
	if kind == canonical.KindComment {
		id.Comment = raw
	} else {
		id.Post = raw
	}
	return id
}

// ItemRef returns the event id.
func (r *Relay) ItemRef(id canonical.NativeID) string { return id.Object() }

// MaxBatchSize bounds the ids of one relay filter.
func (r *Relay) MaxBatchSize() int { return RelayMaxIDs }

// ThrottleSignals reports 429 and 503 from the relay gateway.
func (r *Relay) ThrottleSignals() ratelimit.Signals {
	return ratelimit.Signals{Statuses: []int{429, 503}}
}

// Scrape is false.
func (r *Relay) Scrape() bool { return false }

// SupportsEnrichment limits enrichment to notes and articles; reposts and
// reactions carry no secondary content of their own.
func (r *Relay) SupportsEnrichment(item *activity.Item, _ activity.SecondaryKind) bool {
	return item.Verb == "post"
}

// DecodePage decodes an author listing, keeping relay order.
func (r *Relay) DecodePage(body []byte) (Page, error) {
	events, err := r.decodeEvents(body)
	if err != nil {
		return Page{}, err
	}

	page := Page{Items: make([]*activity.Item, 0, len(events))}
	for _, ev := range events {
		item := r.eventToItem(ev)
		page.Items = append(page.Items, &item)
	}
	return page, nil
}

// DecodeItem decodes and verifies one event. A null body yields nil.
func (r *Relay) DecodeItem(body []byte) (*activity.Item, error) {
	if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, nil
	}
	ev, err := canonical.EventFromJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: relay event: %v", ErrDecode, err)
	}
	if err := r.verify(&ev); err != nil {
		return nil, err
	}
	item := r.eventToItem(ev)
	return &item, nil
}

// DecodeSecondary groups reply and reaction events under the parent
// they reference.
func (r *Relay) DecodeSecondary(kind activity.SecondaryKind, parents []string, body []byte) (map[string][]activity.Item, error) {
	events, err := r.decodeEvents(body)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(parents))
	for _, p := range parents {
		wanted[p] = struct{}{}
	}

	out := make(map[string][]activity.Item)
	for _, ev := range events {
		if !relayKindMatches(kind, ev.Kind) {
			continue
		}
		parent := referencedParent(ev, wanted)
		if parent == "" {
			r.logger.Debug().Str("event_id", ev.ID).Msg("Secondary event references no requested parent")
			continue
		}
		out[parent] = append(out[parent], r.eventToItem(ev))
	}
	return out, nil
}

// decodeEvents decodes a JSON array of events, dropping events that fail
// verification.
func (r *Relay) decodeEvents(body []byte) ([]canonical.Event, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("%w: relay events: %v", ErrDecode, err)
	}

	events := make([]canonical.Event, 0, len(raws))
	for _, raw := range raws {
		ev, err := canonical.EventFromJSON(raw)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Skipping undecodable relay event")
			continue
		}
		if err := r.verify(&ev); err != nil {
			r.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("Skipping relay event")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// verify fills in a missing id and rejects events whose id does not match
// their content.
func (r *Relay) verify(ev *canonical.Event) error {
	hash, err := canonical.ContentHash(*ev)
	if err != nil {
		return fmt.Errorf("%w: relay event: %v", ErrDecode, err)
	}
	if ev.ID == "" {
		ev.ID = hash
		return nil
	}
	if ev.ID != hash {
		return fmt.Errorf("%w: relay event %s: content hash is %s", ErrDecode, ev.ID, hash)
	}
	return nil
}

func (r *Relay) eventToItem(ev canonical.Event) activity.Item {
	item := activity.Item{
		ID:       r.tag(ev.ID),
		NativeID: ev.ID,
		Author:   &activity.Actor{ID: r.tag(ev.PubKey)},
		Content:  ev.Content,
		Extra:    map[string]any{"kind": ev.Kind},
	}
	if ev.CreatedAt > 0 {
		item.Published = time.Unix(ev.CreatedAt, 0).UTC()
	}
	target := referencedParent(ev, nil)

	switch ev.Kind {
	case relayKindRepost:
		item.Verb = "share"
		item.ObjectType = "activity"
		item.ShareOf = r.tag(target)
		item.Content = ""
	case relayKindReaction:
		item.ObjectType = "activity"
		item.ReactionOf = r.tag(target)
		if ev.Content == "" || ev.Content == "+" {
			item.Verb = "like"
			item.Content = ""
		} else {
			item.Verb = "react"
		}
	case relayKindArticle:
		item.Verb = "post"
		item.ObjectType = "article"
	default:
		item.Verb = "post"
		item.ObjectType = "note"
		if target != "" {
			item.ObjectType = "comment"
			item.InReplyTo = []canonical.ID{r.tag(target)}
		}
	}
	return item
}

// referencedParent returns the event id ev replies to or reacts to. An "e"
// tag marked "reply" wins, then the last "e" tag. With a non-nil wanted set
// only ids in the set are considered.
func referencedParent(ev canonical.Event, wanted map[string]struct{}) string {
	accept := func(id string) bool {
		if id == "" {
			return false
		}
		if wanted == nil {
			return true
		}
		_, ok := wanted[id]
		return ok
	}

	for _, tag := range ev.Tags {
		if len(tag) >= 4 && tag[0] == "e" && tag[3] == "reply" && accept(tag[1]) {
			return tag[1]
		}
	}
	for i := len(ev.Tags) - 1; i >= 0; i-- {
		tag := ev.Tags[i]
		if len(tag) >= 2 && tag[0] == "e" && accept(tag[1]) {
			return tag[1]
		}
	}
	return ""
}

func relayKindMatches(kind activity.SecondaryKind, eventKind int) bool {
	switch kind {
	case activity.Replies:
		return eventKind == relayKindNote
	case activity.Reactions:
		return eventKind == relayKindReaction
	case activity.Shares:
		return eventKind == relayKindRepost
	}
	return false
}
