package platform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/silo-activity/pkg/activity"
	"github.com/Sternrassler/silo-activity/pkg/canonical"
	"github.com/Sternrassler/silo-activity/pkg/ratelimit"
)

// Photo is the adapter for instagram.com. It is scraped, so every primary
// fetch goes through the rate-limit guard, and each secondary request covers
// exactly one media.
type Photo struct {
	base
	logger zerolog.Logger
}

// NewPhoto creates the photo adapter with its default endpoints.
func NewPhoto(logger zerolog.Logger) *Photo {
	return &Photo{
		base: base{
			name:   "photo",
			domain: "instagram.com",
			endpoints: Endpoints{
				BaseURL: "https://www.instagram.com",
				List:    "{user}/?__a=1&offset={offset}&count={count}",
				Item:    "p/{id}/?__a=1",
				Secondary: map[activity.SecondaryKind]string{
					activity.Replies:   "media/{ids}/comments",
					activity.Reactions: "media/{ids}/likes",
				},
			},
		},
		logger: logger.With().Str("platform", "photo").Logger(),
	}
}

// ParseNativeID accepts MEDIA_USER composites, bare media or comment ids,
// and shortcodes, which are decoded to their media id.
func (p *Photo) ParseNativeID(raw string, kind canonical.Kind) canonical.NativeID {
	var id canonical.NativeID

	head, tail, composite := strings.Cut(raw, "_")
	switch {
	case raw == "":
		return canonical.Unknown
	case composite && kind == canonical.KindPost && isNumeric(head) && isNumeric(tail):
		id.Post, id.User = head, tail
	case !composite && isNumeric(raw):
		if kind == canonical.KindComment {
			id.Comment = raw
		} else {
			id.Post = raw
		}
	case kind == canonical.KindPost && canonical.IsSlugShaped(raw):
		// shortcodes may contain '_' and '-', both digits of the alphabet
		if n, err := canonical.ToNumeric(raw); err == nil {
			id.Post = strconv.FormatUint(n, 10)
		}
	}

	if !id.Known() {
		p.logger.Error().
			Str("native_id", raw).
			Str("kind", kind.String()).
			Msg("Refusing id with unknown format")
		return canonical.Unknown
	}
	id.Raw = raw
	return id
}

// ItemRef renders the media's shortcode.
func (p *Photo) ItemRef(id canonical.NativeID) string {
	if slug, ok := canonical.ToSlug(id.Post); ok {
		return slug
	}
	return id.Raw
}

// MaxBatchSize is 1: media are fetched one page at a time.
func (p *Photo) MaxBatchSize() int { return 1 }

// ThrottleSignals treats a redirect to the login page like a 429.
func (p *Photo) ThrottleSignals() ratelimit.Signals {
	return ratelimit.Signals{
		Statuses:   []int{401, 429, 503},
		LoginPaths: []string{"/accounts/login"},
	}
}

// Scrape is true.
func (p *Photo) Scrape() bool { return true }

// SupportsEnrichment rejects shares, which the platform does not have.
func (p *Photo) SupportsEnrichment(_ *activity.Item, kind activity.SecondaryKind) bool {
	return kind != activity.Shares
}

type photoUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type photoMedia struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	User        *photoUser `json:"user"`
	Caption     *struct {
		Text string `json:"text"`
	} `json:"caption"`
	CreatedTime string `json:"created_time"`
	Link        string `json:"link"`
	Type        string `json:"type"`
}

type photoComment struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	From        *photoUser `json:"from"`
	CreatedTime string     `json:"created_time"`
}

// DecodePage decodes a profile media listing.
func (p *Photo) DecodePage(body []byte) (Page, error) {
	var raw struct {
		Data  []photoMedia `json:"data"`
		Count *int         `json:"count"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Page{}, fmt.Errorf("%w: photo profile: %v", ErrDecode, err)
	}

	page := Page{Items: make([]*activity.Item, 0, len(raw.Data)), Total: raw.Count}
	for _, m := range raw.Data {
		if m.ID == "" {
			continue
		}
		page.Items = append(page.Items, p.mediaToItem(m))
	}
	return page, nil
}

// DecodeItem decodes a media page. A missing data block yields nil.
func (p *Photo) DecodeItem(body []byte) (*activity.Item, error) {
	var raw struct {
		Data *photoMedia `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: photo media: %v", ErrDecode, err)
	}
	if raw.Data == nil || raw.Data.ID == "" {
		return nil, nil
	}
	return p.mediaToItem(*raw.Data), nil
}

// DecodeSecondary expects exactly one parent, since responses do not name
// the media they belong to.
func (p *Photo) DecodeSecondary(kind activity.SecondaryKind, parents []string, body []byte) (map[string][]activity.Item, error) {
	if len(parents) != 1 {
		return nil, fmt.Errorf("%w: photo %s: want 1 parent, got %d", ErrDecode, kind, len(parents))
	}
	parent := parents[0]
	mediaURL := p.mediaURL(parent, "")

	var raw struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: photo %s: %v", ErrDecode, kind, err)
	}

	items := make([]activity.Item, 0, len(raw.Data))
	for _, data := range raw.Data {
		switch kind {
		case activity.Replies:
			var c photoComment
			if err := json.Unmarshal(data, &c); err != nil || !p.ParseNativeID(c.ID, canonical.KindComment).Known() {
				continue
			}
			item := activity.Item{
				ID:         p.tag(c.ID),
				NativeID:   c.ID,
				Verb:       "post",
				ObjectType: "comment",
				Author:     p.actor(c.From),
				Content:    c.Text,
				URL:        mediaURL + "#comment-" + c.ID,
				Published:  parseUnix(c.CreatedTime),
				InReplyTo:  []canonical.ID{p.tag(parent)},
			}
			items = append(items, item)

		case activity.Reactions:
			var u photoUser
			if err := json.Unmarshal(data, &u); err != nil || u.ID == "" {
				continue
			}
			native := parent + "_liked_by_" + u.ID
			items = append(items, activity.Item{
				ID:         p.tag(native),
				NativeID:   native,
				Verb:       "like",
				ObjectType: "activity",
				Author:     p.actor(&u),
				URL:        mediaURL + "#liked-by-" + u.ID,
				ReactionOf: p.tag(parent),
			})
		}
	}
	return map[string][]activity.Item{parent: items}, nil
}

func (p *Photo) mediaToItem(m photoMedia) *activity.Item {
	item := &activity.Item{
		ID:         p.tag(m.ID),
		NativeID:   m.ID,
		Verb:       "post",
		ObjectType: "image",
		Author:     p.actor(m.User),
		URL:        m.Link,
		Published:  parseUnix(m.CreatedTime),
		Extra:      map[string]any{},
	}
	if m.Type == "video" {
		item.ObjectType = "video"
	}
	if m.Caption != nil {
		item.Content = m.Caption.Text
	}
	if item.URL == "" {
		item.URL = p.mediaURL(m.ID, m.Code)
	}
	if m.Code != "" {
		item.Extra["shortcode"] = m.Code
	}
	return item
}

func (p *Photo) mediaURL(mediaID, code string) string {
	if code == "" {
		code, _ = canonical.ToSlug(mediaID)
	}
	return "https://www.instagram.com/p/" + code + "/"
}

func (p *Photo) actor(u *photoUser) *activity.Actor {
	if u == nil || u.ID == "" {
		return nil
	}
	a := &activity.Actor{
		ID:          p.tag(u.ID),
		DisplayName: u.FullName,
		Username:    u.Username,
	}
	if u.Username != "" {
		a.URL = "https://www.instagram.com/" + u.Username + "/"
	}
	return a
}

func parseUnix(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
