// Package enrich merges fetched secondary content (replies, reactions,
// shares) onto the primary items it belongs to.
package enrich

import (
	"github.com/Sternrassler/silo-activity/pkg/activity"
	"github.com/Sternrassler/silo-activity/pkg/canonical"
	"github.com/rs/zerolog"
)

// Stats summarizes one merge.
type Stats struct {
	// Added counts secondary items appended to a parent.
	Added int

	// Duplicates counts items skipped because the parent already had them.
	Duplicates int

	// Dropped counts parent ids with no matching primary item.
	Dropped int
}

// Merger merges secondary items onto primary items.
type Merger struct {
	logger zerolog.Logger
}

// NewMerger creates a merger.
func NewMerger(logger zerolog.Logger) *Merger {
	return &Merger{logger: logger}
}

// Merge appends secondary items to the bag of kind on their parent. Items
// whose id is already in the bag are skipped; existing order is kept and
// new items follow in received order. Parents missing from primary are
// dropped without error. Merging the same input twice is a no-op the second
// time.
func (m *Merger) Merge(primary map[string]*activity.Item, secondary map[string][]activity.Item, kind activity.SecondaryKind) Stats {
	var stats Stats

	for parentID, items := range secondary {
		parent, ok := primary[parentID]
		if !ok {
			stats.Dropped++
			m.logger.Debug().
				Str("parent_id", parentID).
				Str("kind", string(kind)).
				Int("items", len(items)).
				Msg("Dropping secondary items for unknown parent")
			continue
		}

		existing := idSet(parent.Secondary(kind))
		var fresh []activity.Item
		for _, item := range items {
			if _, dup := existing[item.ID]; dup {
				stats.Duplicates++
				continue
			}
			existing[item.ID] = struct{}{}
			fresh = append(fresh, item)
		}

		if len(fresh) > 0 {
			parent.AppendSecondary(kind, fresh...)
			stats.Added += len(fresh)
		}
	}

	return stats
}

// MergeReactions merges likes and reactions into the shared reactions bag.
// When both lists carry the same id the first one encountered wins: likes
// are merged before reactions.
func (m *Merger) MergeReactions(primary map[string]*activity.Item, likes, reactions map[string][]activity.Item) Stats {
	first := m.Merge(primary, likes, activity.Reactions)
	second := m.Merge(primary, reactions, activity.Reactions)
	return Stats{
		Added:      first.Added + second.Added,
		Duplicates: first.Duplicates + second.Duplicates,
		Dropped:    first.Dropped + second.Dropped,
	}
}

// Index maps items by native id. Items without a native id are left out;
// for repeated native ids the first item wins.
func Index(items []*activity.Item) map[string]*activity.Item {
	index := make(map[string]*activity.Item, len(items))
	for _, item := range items {
		if item == nil || item.NativeID == "" {
			continue
		}
		if _, seen := index[item.NativeID]; !seen {
			index[item.NativeID] = item
		}
	}
	return index
}

func idSet(items []activity.Item) map[canonical.ID]struct{} {
	set := make(map[canonical.ID]struct{}, len(items))
	for _, item := range items {
		set[item.ID] = struct{}{}
	}
	return set
}
