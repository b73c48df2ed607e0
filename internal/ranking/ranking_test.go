package ranking

import (
	"testing"

	"github.com/madiyar/cityguidebot/internal/database"
)

func place(id int64, rating float64, reviews int, pinned bool) database.Place {
	return database.Place{ID: id, AvgRating: rating, ReviewCount: reviews, IsPinned: pinned}
}

func TestOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     []database.Place
		wantID []int64
	}{
		{
			name: "pinned first, organic by rating, unreviewed excluded",
			in: []database.Place{
				place(2, 4.5, 10, false),
				place(1, 4.0, 1, true),
				place(3, 4.5, 3, false),
				place(4, 0, 0, false),
			},
			wantID: []int64{1, 2, 3},
		},
		{
			name: "review count breaks rating ties",
			in: []database.Place{
				place(1, 4.5, 3, false),
				place(2, 4.5, 10, false),
				place(3, 4.5, 7, false),
			},
			wantID: []int64{2, 3, 1},
		},
		{
			name: "pinned sorted by rating among themselves",
			in: []database.Place{
				place(1, 3.0, 0, true),
				place(2, 5.0, 0, true),
			},
			wantID: []int64{2, 1},
		},
		{
			name: "pinned with zero reviews still shown",
			in: []database.Place{
				place(1, 0, 0, true),
				place(2, 4.0, 2, false),
			},
			wantID: []int64{1, 2},
		},
		{
			name: "duplicate ids keep first occurrence",
			in: []database.Place{
				place(1, 4.0, 2, true),
				place(1, 4.0, 2, false),
				place(2, 3.0, 1, false),
			},
			wantID: []int64{1, 2},
		},
		{
			name:   "empty input",
			in:     nil,
			wantID: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Order(tt.in)
			if len(got) != len(tt.wantID) {
				t.Fatalf("got %d places, want %d", len(got), len(tt.wantID))
			}
			for i, want := range tt.wantID {
				if got[i].ID != want {
					t.Errorf("position %d: got id %d, want %d", i, got[i].ID, want)
				}
			}
		})
	}
}

func TestCursorBoundaries(t *testing.T) {
	t.Parallel()

	c := NewCursor([]database.Place{place(10, 5, 1, false), place(20, 4, 1, false), place(30, 3, 1, false)})

	if id, ok := c.Current(); !ok || id != 10 {
		t.Fatalf("Current = %d,%v, want 10,true", id, ok)
	}
	if _, moved := c.Prev(); moved {
		t.Error("Prev at start reported movement")
	}

	c, moved := c.Next()
	if !moved {
		t.Fatal("Next from start did not move")
	}
	c, _ = c.Next()
	if id, _ := c.Current(); id != 30 {
		t.Fatalf("Current after two Next = %d, want 30", id)
	}
	if _, moved := c.Next(); moved {
		t.Error("Next at end reported movement")
	}

	c, moved = c.Prev()
	if !moved {
		t.Fatal("Prev from end did not move")
	}
	if id, _ := c.Current(); id != 20 {
		t.Errorf("Current after Prev = %d, want 20", id)
	}
}

func TestCursorEmpty(t *testing.T) {
	t.Parallel()

	var c Cursor
	if _, ok := c.Current(); ok {
		t.Error("Current on empty cursor reported a value")
	}
	if _, moved := c.Next(); moved {
		t.Error("Next on empty cursor reported movement")
	}
	if _, moved := c.Prev(); moved {
		t.Error("Prev on empty cursor reported movement")
	}
}

func TestCursorClampsOutOfRangeIndex(t *testing.T) {
	t.Parallel()

	c := Cursor{IDs: []int64{1, 2}, Index: 99}
	if id, _ := c.Current(); id != 2 {
		t.Errorf("Current with oversized index = %d, want 2", id)
	}
	c.Index = -5
	if id, _ := c.Current(); id != 1 {
		t.Errorf("Current with negative index = %d, want 1", id)
	}
}
