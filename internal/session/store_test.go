package session

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

// storeUnderTest builds each Store implementation for the shared test body.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	mr := miniredis.RunT(t)
	redisStore, err := NewRedisStore(context.Background(), mr.Addr(), "", 0, 0)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}

	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			in := &Session{
				Flow:  FlowReview,
				State: StateRating,
				Review: &ReviewData{
					CityID:    1,
					PlaceName: "Navat",
					PlaceID:   42,
					Photos:    []string{"file-1", "file-2"},
					PlaceOptions: []PlaceOption{
						{ID: 42, Name: "Navat"},
						{ID: 43, Name: "Navat Express"},
					},
				},
			}
			if err := store.Put(ctx, 7, in); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			out, err := store.Get(ctx, 7)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if out.Flow != FlowReview || out.State != StateRating {
				t.Errorf("got flow/state %s/%s, want review/rating", out.Flow, out.State)
			}
			if out.Review == nil || out.Review.PlaceID != 42 {
				t.Fatalf("review data lost: %+v", out.Review)
			}
			if len(out.Review.Photos) != 2 || out.Review.Photos[1] != "file-2" {
				t.Errorf("photos lost: %+v", out.Review.Photos)
			}
			if len(out.Review.PlaceOptions) != 2 {
				t.Errorf("place options lost: %+v", out.Review.PlaceOptions)
			}
			if out.Search != nil || out.Guides != nil {
				t.Errorf("inactive flow bags should stay nil")
			}
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(ctx, 999); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Put(ctx, 5, &Session{Flow: FlowSearch, State: StateChoosingCategory}); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := store.Clear(ctx, 5); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			if _, err := store.Get(ctx, 5); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after Clear error = %v, want ErrNotFound", err)
			}
			// Clearing again is a no-op.
			if err := store.Clear(ctx, 5); err != nil {
				t.Errorf("second Clear failed: %v", err)
			}
		})
	}
}

func TestMemoryStoreReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	put := &Session{
		Flow:  FlowReview,
		State: StateCollectingPhotos,
		Review: &ReviewData{
			PlaceName: "Navat",
			Photos:    []string{"file-1"},
		},
	}
	if err := store.Put(ctx, 1, put); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// The stored record must not alias the session handed to Put either.
	put.Review.PlaceName = "changed-after-put"

	first, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	first.State = StateRating
	first.Review.PlaceName = "mutated-without-put"
	first.Review.Photos = append(first.Review.Photos, "file-2")

	second, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if second.State != StateCollectingPhotos {
		t.Errorf("mutating a returned session leaked into the store")
	}
	if second.Review.PlaceName != "Navat" {
		t.Errorf("stored session mutated without Put: PlaceName = %q, want %q", second.Review.PlaceName, "Navat")
	}
	if len(second.Review.Photos) != 1 {
		t.Errorf("stored photo list mutated without Put: %+v", second.Review.Photos)
	}
}
