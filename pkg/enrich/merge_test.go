package enrich

import (
	"testing"

	"github.com/Sternrassler/silo-activity/pkg/activity"
	"github.com/Sternrassler/silo-activity/pkg/canonical"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(native string) activity.Item {
	return activity.Item{ID: canonical.MustEncode("p.example", native), NativeID: native}
}

func ids(items []activity.Item) []canonical.ID {
	out := make([]canonical.ID, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestMerge_AppendsNewInOrder(t *testing.T) {
	parent := &activity.Item{NativeID: "p1", Replies: []activity.Item{item("c2")}}
	primary := map[string]*activity.Item{"p1": parent}

	stats := NewMerger(zerolog.Nop()).Merge(primary, map[string][]activity.Item{
		"p1": {item("c1"), item("c2"), item("c3")},
	}, activity.Replies)

	want := []canonical.ID{
		"tag:p.example:c2",
		"tag:p.example:c1",
		"tag:p.example:c3",
	}
	if diff := cmp.Diff(want, ids(parent.Replies)); diff != "" {
		t.Errorf("replies mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Stats{Added: 2, Duplicates: 1}, stats)
}

func TestMerge_Idempotent(t *testing.T) {
	parent := &activity.Item{NativeID: "p1"}
	primary := map[string]*activity.Item{"p1": parent}
	secondary := map[string][]activity.Item{"p1": {item("r1"), item("r2")}}

	m := NewMerger(zerolog.Nop())
	m.Merge(primary, secondary, activity.Reactions)
	once := ids(parent.Reactions)

	stats := m.Merge(primary, secondary, activity.Reactions)
	assert.Equal(t, once, ids(parent.Reactions))
	assert.Equal(t, 0, stats.Added)
	assert.Equal(t, 2, stats.Duplicates)
}

func TestMerge_DuplicatesWithinIncomingList(t *testing.T) {
	parent := &activity.Item{NativeID: "p1"}
	first := item("s1")
	first.Content = "first"
	second := item("s1")
	second.Content = "second"

	NewMerger(zerolog.Nop()).Merge(map[string]*activity.Item{"p1": parent},
		map[string][]activity.Item{"p1": {first, second}}, activity.Shares)

	require.Len(t, parent.Shares, 1)
	assert.Equal(t, "first", parent.Shares[0].Content)
}

func TestMerge_DropsUnknownParents(t *testing.T) {
	parent := &activity.Item{NativeID: "p1"}
	stats := NewMerger(zerolog.Nop()).Merge(map[string]*activity.Item{"p1": parent},
		map[string][]activity.Item{
			"p1":    {item("c1")},
			"stale": {item("c9")},
		}, activity.Replies)

	assert.Equal(t, 1, stats.Dropped)
	assert.Len(t, parent.Replies, 1)
}

func TestMerge_KindsAreSeparateBags(t *testing.T) {
	parent := &activity.Item{NativeID: "p1"}
	primary := map[string]*activity.Item{"p1": parent}
	m := NewMerger(zerolog.Nop())

	m.Merge(primary, map[string][]activity.Item{"p1": {item("x")}}, activity.Replies)
	m.Merge(primary, map[string][]activity.Item{"p1": {item("x")}}, activity.Shares)

	assert.Len(t, parent.Replies, 1)
	assert.Len(t, parent.Shares, 1)
	assert.Empty(t, parent.Reactions)
}

func TestMergeReactions_LikesWinOverlap(t *testing.T) {
	parent := &activity.Item{NativeID: "p1"}
	like := item("u1")
	like.Verb = "like"
	reaction := item("u1")
	reaction.Verb = "react"
	other := item("u2")
	other.Verb = "react"

	stats := NewMerger(zerolog.Nop()).MergeReactions(map[string]*activity.Item{"p1": parent},
		map[string][]activity.Item{"p1": {like}},
		map[string][]activity.Item{"p1": {reaction, other}})

	require.Len(t, parent.Reactions, 2)
	assert.Equal(t, "like", parent.Reactions[0].Verb)
	assert.Equal(t, "react", parent.Reactions[1].Verb)
	assert.Equal(t, Stats{Added: 2, Duplicates: 1}, stats)
}

func TestIndex(t *testing.T) {
	a := &activity.Item{NativeID: "a"}
	dup := &activity.Item{NativeID: "a"}
	b := &activity.Item{NativeID: "b"}
	none := &activity.Item{}

	got := Index([]*activity.Item{a, dup, nil, b, none})
	assert.Len(t, got, 2)
	assert.Same(t, a, got["a"])
	assert.Same(t, b, got["b"])
}
