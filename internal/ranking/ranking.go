// Package ranking orders search results and maintains the browsing cursor.
package ranking

import (
	"sort"

	"github.com/madiyar/cityguidebot/internal/database"
)

// Order ranks places for display: pinned places first (highest rating
// first), then organic places by rating and review count. Organic places
// without a single review are excluded, and duplicate ids keep only their
// first (highest-ranked) occurrence.
func Order(places []database.Place) []database.Place {
	var pinned, organic []database.Place
	for _, p := range places {
		switch {
		case p.IsPinned:
			pinned = append(pinned, p)
		case p.ReviewCount > 0:
			organic = append(organic, p)
		}
	}

	sort.SliceStable(pinned, func(i, j int) bool {
		return pinned[i].AvgRating > pinned[j].AvgRating
	})
	sort.SliceStable(organic, func(i, j int) bool {
		if organic[i].AvgRating != organic[j].AvgRating {
			return organic[i].AvgRating > organic[j].AvgRating
		}
		return organic[i].ReviewCount > organic[j].ReviewCount
	})

	seen := make(map[int64]struct{}, len(pinned)+len(organic))
	ordered := make([]database.Place, 0, len(pinned)+len(organic))
	for _, p := range append(pinned, organic...) {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		ordered = append(ordered, p)
	}
	return ordered
}

// Cursor is a position inside a ranked id list. The zero value points at the
// first element of an empty list.
type Cursor struct {
	IDs   []int64
	Index int
}

// NewCursor builds a cursor over ranked places, positioned at the start.
func NewCursor(places []database.Place) Cursor {
	ids := make([]int64, len(places))
	for i, p := range places {
		ids[i] = p.ID
	}
	return Cursor{IDs: ids}
}

// Total returns the number of entries behind the cursor.
func (c Cursor) Total() int { return len(c.IDs) }

// Current returns the id under the cursor. ok is false for an empty list.
func (c Cursor) Current() (int64, bool) {
	if len(c.IDs) == 0 {
		return 0, false
	}
	i := c.clampedIndex()
	return c.IDs[i], true
}

// Next advances the cursor. moved is false at the last entry, leaving the
// cursor unchanged so the caller can answer with a boundary notice.
func (c Cursor) Next() (Cursor, bool) {
	i := c.clampedIndex()
	if i >= len(c.IDs)-1 {
		return c, false
	}
	c.Index = i + 1
	return c, true
}

// Prev moves the cursor back. moved is false at the first entry.
func (c Cursor) Prev() (Cursor, bool) {
	i := c.clampedIndex()
	if i <= 0 {
		return c, false
	}
	c.Index = i - 1
	return c, true
}

func (c Cursor) clampedIndex() int {
	if len(c.IDs) == 0 {
		return 0
	}
	i := c.Index
	if i < 0 {
		return 0
	}
	if i > len(c.IDs)-1 {
		return len(c.IDs) - 1
	}
	return i
}
