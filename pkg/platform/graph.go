package platform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/silo-activity/pkg/activity"
	"github.com/Sternrassler/silo-activity/pkg/canonical"
	"github.com/Sternrassler/silo-activity/pkg/ratelimit"
)

// GraphMaxIDs is the multi-id lookup limit of the graph API.
const GraphMaxIDs = 50

const graphTimeLayout = "2006-01-02T15:04:05-0700"

var graphReactionContent = map[string]string{
	"LOVE":     "❤️",
	"WOW":      "😮",
	"HAHA":     "😆",
	"SAD":      "😢",
	"ANGRY":    "😡",
	"THANKFUL": "🌼",
	"PRIDE":    "🏳️‍🌈",
	"CARE":     "🤗",
}

// Graph is the adapter for the facebook.com graph API.
type Graph struct {
	base
	grammar canonical.SegmentedGrammar
	logger  zerolog.Logger
}

// NewGraph creates the graph adapter with its default endpoints.
func NewGraph(logger zerolog.Logger) *Graph {
	logger = logger.With().Str("platform", "graph").Logger()
	return &Graph{
		base: base{
			name:   "graph",
			domain: "facebook.com",
			endpoints: Endpoints{
				BaseURL: "https://graph.facebook.com/v4.0",
				List:    "{user}/feed?offset={offset}&limit={count}&fields=id,from,message,story,created_time,permalink_url,type,status_type",
				Item:    "{id}?fields=id,from,message,story,created_time,permalink_url,type,status_type",
				Secondary: map[activity.SecondaryKind]string{
					activity.Replies:   "comments?filter=stream&ids={ids}&fields=id,message,from,created_time,parent",
					activity.Reactions: "reactions?ids={ids}",
					activity.Shares:    "sharedposts?ids={ids}",
				},
			},
		},
		grammar: canonical.SegmentedGrammar{Logger: logger},
		logger:  logger,
	}
}

// ParseNativeID splits an underscore-separated graph id.
func (g *Graph) ParseNativeID(raw string, kind canonical.Kind) canonical.NativeID {
	return g.grammar.Parse(raw, kind)
}

// ItemRef joins the id segments back into the graph object id.
func (g *Graph) ItemRef(id canonical.NativeID) string {
	return g.grammar.Format(id)
}

// MaxBatchSize is the ids= limit of a batched graph request.
func (g *Graph) MaxBatchSize() int { return GraphMaxIDs }

// ThrottleSignals reports 429 and 503 as throttling.
func (g *Graph) ThrottleSignals() ratelimit.Signals {
	return ratelimit.Signals{Statuses: []int{429, 503}}
}

// Scrape is false.
func (g *Graph) Scrape() bool { return false }

// SupportsEnrichment excludes notes entirely, since the comments endpoint
// rejects note ids, and never asks for shares of news.publishes stories.
func (g *Graph) SupportsEnrichment(item *activity.Item, kind activity.SecondaryKind) bool {
	if item.ExtraString("type") == "note" || item.ExtraString("status_type") == "created_note" {
		return false
	}
	if kind == activity.Shares && item.ExtraString("type") == "news.publishes" {
		return false
	}
	return true
}

type graphUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type graphPost struct {
	ID           string     `json:"id"`
	From         *graphUser `json:"from"`
	Message      string     `json:"message"`
	Story        string     `json:"story"`
	CreatedTime  string     `json:"created_time"`
	PermalinkURL string     `json:"permalink_url"`
	Link         string     `json:"link"`
	Type         string     `json:"type"`
	StatusType   string     `json:"status_type"`
	Parent       *struct {
		ID string `json:"id"`
	} `json:"parent"`
	Error json.RawMessage `json:"error"`
}

type graphReaction struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type graphPage struct {
	Data    []graphPost `json:"data"`
	Summary *struct {
		TotalCount int `json:"total_count"`
	} `json:"summary"`
}

// DecodePage decodes a feed listing. The total comes from the summary
// block when the endpoint returns one.
func (g *Graph) DecodePage(body []byte) (Page, error) {
	var raw graphPage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Page{}, fmt.Errorf("%w: graph feed: %v", ErrDecode, err)
	}

	page := Page{Items: make([]*activity.Item, 0, len(raw.Data))}
	for _, p := range raw.Data {
		if p.ID == "" {
			continue
		}
		page.Items = append(page.Items, g.postToItem(p))
	}
	if raw.Summary != nil {
		page.Total = activity.Total(raw.Summary.TotalCount)
	}
	return page, nil
}

// DecodeItem decodes a single object. An error body yields a nil item.
func (g *Graph) DecodeItem(body []byte) (*activity.Item, error) {
	var p graphPost
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: graph object: %v", ErrDecode, err)
	}
	if len(p.Error) > 0 || p.ID == "" {
		g.logger.Warn().RawJSON("error", p.Error).Msg("Graph object not returned")
		return nil, nil
	}
	return g.postToItem(p), nil
}

// DecodeSecondary decodes an ids= batch response keyed by parent id.
func (g *Graph) DecodeSecondary(kind activity.SecondaryKind, parents []string, body []byte) (map[string][]activity.Item, error) {
	var byID map[string]json.RawMessage
	if err := json.Unmarshal(body, &byID); err != nil {
		return nil, fmt.Errorf("%w: graph %s: %v", ErrDecode, kind, err)
	}

	out := make(map[string][]activity.Item, len(byID))
	for parent, rawObjs := range byID {
		// values are usually {"data": [...]} but sometimes a bare bool
		var objs struct {
			Data []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(rawObjs, &objs); err != nil {
			g.logger.Debug().Str("parent", parent).Msg("Skipping non-object secondary entry")
			continue
		}

		for _, data := range objs.Data {
			item, ok := g.secondaryToItem(kind, parent, data)
			if ok {
				out[parent] = append(out[parent], item)
			}
		}
	}
	return out, nil
}

func (g *Graph) secondaryToItem(kind activity.SecondaryKind, parent string, data json.RawMessage) (activity.Item, bool) {
	switch kind {
	case activity.Replies:
		var c graphPost
		if err := json.Unmarshal(data, &c); err != nil || c.ID == "" {
			return activity.Item{}, false
		}
		if !g.grammar.Parse(c.ID, canonical.KindComment).Known() {
			return activity.Item{}, false
		}
		item := g.postToItem(c)
		item.ObjectType = "comment"
		item.Verb = "post"
		item.InReplyTo = []canonical.ID{g.tag(parent)}
		return *item, true

	case activity.Reactions:
		var r graphReaction
		if err := json.Unmarshal(data, &r); err != nil || r.ID == "" {
			return activity.Item{}, false
		}
		return g.reactionToItem(parent, r), true

	case activity.Shares:
		var s graphPost
		if err := json.Unmarshal(data, &s); err != nil || s.ID == "" {
			return activity.Item{}, false
		}
		item := g.postToItem(s)
		item.Verb = "share"
		item.ObjectType = "activity"
		item.ShareOf = g.tag(parent)
		return *item, true
	}
	return activity.Item{}, false
}

func (g *Graph) postToItem(p graphPost) *activity.Item {
	item := &activity.Item{
		ID:         g.tag(p.ID),
		NativeID:   p.ID,
		Verb:       "post",
		ObjectType: graphObjectType(p),
		Author:     g.actor(p.From),
		Content:    p.Message,
		URL:        p.PermalinkURL,
		Extra:      map[string]any{},
	}
	if item.Content == "" {
		item.Content = p.Story
	}
	if item.URL == "" {
		item.URL = p.Link
	}
	if t, err := time.Parse(graphTimeLayout, p.CreatedTime); err == nil {
		item.Published = t.UTC()
	}
	if p.Type != "" {
		item.Extra["type"] = p.Type
	}
	if p.StatusType != "" {
		item.Extra["status_type"] = p.StatusType
	}
	if p.Parent != nil && p.Parent.ID != "" {
		item.InReplyTo = []canonical.ID{g.tag(p.Parent.ID)}
	}
	return item
}

func (g *Graph) reactionToItem(parent string, r graphReaction) activity.Item {
	typ := strings.ToUpper(r.Type)
	item := activity.Item{
		ObjectType: "activity",
		Author:     g.actor(&graphUser{ID: r.ID, Name: r.Name}),
		ReactionOf: g.tag(parent),
	}
	if typ == "" || typ == "LIKE" {
		item.NativeID = parent + "_liked_by_" + r.ID
		item.Verb = "like"
	} else {
		item.NativeID = parent + "_" + strings.ToLower(typ) + "_by_" + r.ID
		item.Verb = "react"
		item.Content = graphReactionContent[typ]
	}
	item.ID = g.tag(item.NativeID)
	return item
}

func (g *Graph) actor(u *graphUser) *activity.Actor {
	if u == nil || u.ID == "" {
		return nil
	}
	return &activity.Actor{
		ID:          g.tag(u.ID),
		DisplayName: u.Name,
		Username:    u.Username,
		URL:         "https://www.facebook.com/" + u.ID,
	}
}

func graphObjectType(p graphPost) string {
	switch {
	case p.StatusType == "created_note" || p.Type == "note":
		return "article"
	case p.Type == "photo":
		return "image"
	case p.Type == "video":
		return "video"
	default:
		return "note"
	}
}
