package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
)

// Event is a signed relay event. Only PubKey, CreatedAt, Kind, Tags and
// Content take part in its content-addressed id.
type Event struct {
	ID        string     `json:"id,omitempty"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig,omitempty"`

	// Extra holds any other fields present in the source record.
	Extra map[string]any `json:"-"`
}

var hashIDRE = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ContentHash returns the hex SHA-256 of the event's canonical serialization,
// the compact JSON array [0, pubkey, created_at, kind, tags, content] with
// no HTML escaping.
func ContentHash(ev Event) (string, error) {
	if ev.PubKey == "" {
		return "", fmt.Errorf("%w: missing pubkey", ErrIncompleteEvent)
	}

	tags := make([][]string, len(ev.Tags))
	for i, tag := range ev.Tags {
		if tag == nil {
			tag = []string{}
		}
		tags[i] = tag
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]any{0, ev.PubKey, ev.CreatedAt, ev.Kind, tags, ev.Content}); err != nil {
		return "", fmt.Errorf("serialize event: %w", err)
	}

	sum := sha256.Sum256(unescapeLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})))
	return hex.EncodeToString(sum[:]), nil
}

// unescapeLineSeparators writes U+2028 and U+2029 raw. encoding/json always
// escapes them, but ids are computed over the unescaped form. Escaped
// backslashes are skipped so a literal "\u2028" in content is kept.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if rest := data[i:]; bytes.HasPrefix(rest, []byte(`\u2028`)) || bytes.HasPrefix(rest, []byte(`\u2029`)) {
			if rest[5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}

// VerifyContentHash reports whether ev.ID matches its content hash.
func VerifyContentHash(ev Event) bool {
	id, err := ContentHash(ev)
	return err == nil && id == ev.ID
}

// IsContentHash reports whether s is shaped like a content-addressed id.
func IsContentHash(s string) bool {
	return hashIDRE.MatchString(s)
}

// EventFromJSON decodes a relay event, keeping unknown fields in Extra.
func EventFromJSON(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return Event{}, fmt.Errorf("decode event fields: %w", err)
	}
	for _, known := range []string{"id", "pubkey", "created_at", "kind", "tags", "content", "sig"} {
		delete(all, known)
	}
	if len(all) > 0 {
		ev.Extra = all
	}
	return ev, nil
}
