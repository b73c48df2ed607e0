package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/madiyar/cityguidebot/internal/classifier"
)

const summaryReviewLimit = 10

// newSummaryRefreshTask creates the scheduled task that regenerates every
// place's AI summary from its latest published reviews. Places without
// published reviews get the placeholder text.
func newSummaryRefreshTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "summary_refresh")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled summary refresh task...")
		startTime := time.Now()

		placeIDs, err := deps.Store.ListPlaceIDs(ctx)
		if err != nil {
			return fmt.Errorf("failed to list places: %w", err)
		}

		var refreshed, failed int
		for _, placeID := range placeIDs {
			if ctx.Err() != nil {
				return fmt.Errorf("summary refresh interrupted: %w", ctx.Err())
			}

			texts, err := deps.Store.ListRecentReviewTexts(ctx, placeID, summaryReviewLimit)
			if err != nil {
				log.ErrorContext(ctx, "Failed to load review texts", "place_id", placeID, "error", err)
				failed++
				continue
			}

			summary := classifier.SummaryPlaceholder
			if len(texts) > 0 {
				summary, err = deps.Classifier.SummarizeReviews(ctx, texts)
				if err != nil {
					log.WarnContext(ctx, "Failed to summarize reviews, keeping stored summary",
						"place_id", placeID, "error", err)
					failed++
					continue
				}
			}

			if err := deps.Store.UpdatePlaceSummary(ctx, placeID, summary); err != nil {
				log.ErrorContext(ctx, "Failed to store place summary", "place_id", placeID, "error", err)
				failed++
				continue
			}
			refreshed++
		}

		log.InfoContext(ctx, "Scheduled summary refresh task completed",
			"refreshed", refreshed, "failed", failed, "duration", time.Since(startTime))
		return nil
	}
}
