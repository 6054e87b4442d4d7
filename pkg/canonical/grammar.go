package canonical

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// Kind tells a grammar what the id is expected to name. Some grammars assign
// token positions differently for posts and comments.
type Kind int

const (
	// KindPost is a top-level post, photo or note.
	KindPost Kind = iota

	// KindComment is a reply to a post.
	KindComment
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k == KindComment {
		return "comment"
	}
	return "post"
}

// NativeID is a parsed platform id. Any field may be empty; an id with no
// fields set is the Unknown sentinel.
type NativeID struct {
	// Raw is the string the id was parsed from.
	Raw string

	User    string
	Post    string
	Comment string
}

// Unknown is returned by grammars for ids that match no known format.
var Unknown = NativeID{}

// Known reports whether the id was recognized.
func (n NativeID) Known() bool {
	return n.User != "" || n.Post != "" || n.Comment != ""
}

// Object returns the most specific id: the comment if present, else the post.
func (n NativeID) Object() string {
	if n.Comment != "" {
		return n.Comment
	}
	return n.Post
}

// Grammar parses a platform's native id strings.
type Grammar interface {
	Parse(raw string, kind Kind) NativeID
}

var tokenRE = regexp.MustCompile(`^[0-9a-zA-Z]+$`)

// SegmentedGrammar parses ids made of up to three alphanumeric tokens
// separated by ':' or '_':
//
//	12            post (or comment, for KindComment)
//	12_34         USER_POST (or POST_COMMENT, for KindComment)
//	12_34_56      USER_POST_COMMENT
//	34:56         POST:SHARD
//	12:34:56      USER:POST:SHARD
//	12:34:56_78   USER:POST:SHARD_COMMENT
//
// Colon forms take precedence over underscore forms, which take precedence
// over bare integers.
type SegmentedGrammar struct {
	Logger zerolog.Logger
}

// Parse implements Grammar. Unrecognized ids yield Unknown and are logged.
func (g SegmentedGrammar) Parse(raw string, kind Kind) NativeID {
	if raw == "" || raw == "login.php" {
		return Unknown
	}

	var id NativeID
	byColon := strings.Split(raw, ":")
	byUnderscore := strings.Split(raw, "_")

	switch {
	case (len(byColon) == 2 || len(byColon) == 3) && allNonEmpty(byColon):
		if len(byColon) == 3 {
			id.User = byColon[0]
			byColon = byColon[1:]
		}
		id.Post = byColon[0]
		shard := strings.Split(byColon[1], "_")
		if len(shard) >= 2 && shard[len(shard)-1] != "" {
			id.Comment = shard[len(shard)-1]
		}
	case len(byUnderscore) == 3 && allNonEmpty(byUnderscore):
		id.User, id.Post, id.Comment = byUnderscore[0], byUnderscore[1], byUnderscore[2]
	case len(byUnderscore) == 2 && allNonEmpty(byUnderscore):
		if kind == KindComment {
			id.Post, id.Comment = byUnderscore[0], byUnderscore[1]
		} else {
			id.User, id.Post = byUnderscore[0], byUnderscore[1]
		}
	case isDigits(raw):
		if kind == KindComment {
			id.Comment = raw
		} else {
			id.Post = raw
		}
	}

	for _, tok := range []string{id.User, id.Post, id.Comment} {
		if tok != "" && !tokenRE.MatchString(tok) {
			id = Unknown
			break
		}
	}

	if !id.Known() {
		g.Logger.Error().
			Str("native_id", raw).
			Str("kind", kind.String()).
			Msg("Refusing id with unknown format")
		return Unknown
	}

	id.Raw = raw
	return id
}

// Format re-encodes a parsed id in underscore form. For ids that came from an
// underscore or bare form, parsing the result with the same kind yields the
// same fields. Colon forms lose their shard.
func (g SegmentedGrammar) Format(id NativeID) string {
	parts := make([]string, 0, 3)
	for _, tok := range []string{id.User, id.Post, id.Comment} {
		if tok != "" {
			parts = append(parts, tok)
		}
	}
	return strings.Join(parts, "_")
}

func allNonEmpty(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
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
