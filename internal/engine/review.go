package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/madiyar/cityguidebot/internal/classifier"
	"github.com/madiyar/cityguidebot/internal/database"
	"github.com/madiyar/cityguidebot/internal/session"
)

const placeSuggestionLimit = 6

func (e *Engine) startReview(ctx context.Context, ev Event) []Reply {
	user, replies := e.ensureRegistered(ctx, ev)
	if user == nil {
		return replies
	}

	sess := &session.Session{
		Flow:   session.FlowReview,
		State:  session.StateEnteringPlaceName,
		Review: &session.ReviewData{CityID: user.CityID.Int64},
	}
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return []Reply{keyboardReply(
		"What is the place called? Type its name:",
		navKeyboard(nil),
	)}
}

// startReviewFromPlace enters the review flow from a search card, skipping
// place lookup and jumping straight to the rating step.
func (e *Engine) startReviewFromPlace(ctx context.Context, ev Event, placeID int64) []Reply {
	user, replies := e.ensureRegistered(ctx, ev)
	if user == nil {
		return replies
	}

	place, err := e.store.GetPlace(ctx, placeID)
	if errors.Is(err, database.ErrNotFound) {
		return []Reply{textReply("This place no longer exists.")}
	}
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to load place", "place_id", placeID, "error", err)
		return []Reply{e.errorReply()}
	}

	already, err := e.store.UserHasReview(ctx, ev.UserID, place.ID)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to check existing review", "place_id", place.ID, "error", err)
		return []Reply{e.errorReply()}
	}
	if already {
		return []Reply{textReply("You already reviewed this place.")}
	}

	sess := &session.Session{
		Flow:  session.FlowReview,
		State: session.StateRating,
		Review: &session.ReviewData{
			CityID:    user.CityID.Int64,
			PlaceID:   place.ID,
			PlaceName: place.Name,
		},
	}
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return []Reply{htmlKeyboardReply(
		fmt.Sprintf("Reviewing <b>%s</b>. Rate it from 1 to 5:", place.Name),
		ratingKeyboard(),
	)}
}

func ratingKeyboard() [][]string {
	return navKeyboard([][]string{{"1", "2", "3", "4", "5"}})
}

func (e *Engine) handleReviewMessage(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	if sess.Review == nil {
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply("The review was lost. Start it again from the menu.")}
	}

	switch sess.State {
	case session.StateEnteringPlaceName:
		return e.processPlaceName(ctx, ev, sess, text)
	case session.StateSelectingPlace:
		return e.processPlaceSelection(ctx, ev, sess, text)
	case session.StateEnteringAddress:
		return e.processAddress(ctx, ev, sess, text)
	case session.StateChoosingCategory:
		return e.processPlaceCategory(ctx, ev, sess, text)
	case session.StateRating:
		return e.processRating(ctx, ev, sess, text)
	case session.StateEnteringText:
		return e.processReviewText(ctx, ev, sess, text)
	case session.StateCollectingPhotos:
		return e.processPhotos(ctx, ev, sess, text)
	default:
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	}
}

func (e *Engine) processPlaceName(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	if text == "" {
		return []Reply{textReply("Please type the name of the place.")}
	}

	sess.Review.PlaceName = text

	matches, err := e.store.SearchPlacesByName(ctx, sess.Review.CityID, text, placeSuggestionLimit)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to search places", "query", text, "error", err)
		return []Reply{e.errorReply()}
	}

	if len(matches) == 0 {
		sess.State = session.StateEnteringAddress
		sess.Review.PlaceOptions = nil
		if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
			return replies
		}
		return []Reply{keyboardReply(
			"I don't know this place yet. What is its address?",
			navKeyboard(nil),
		)}
	}

	options := make([]session.PlaceOption, 0, len(matches))
	labels := make([]string, 0, len(matches)+1)
	for _, p := range matches {
		options = append(options, session.PlaceOption{ID: p.ID, Name: p.Name})
		labels = append(labels, p.Name)
	}
	labels = append(labels, ButtonCreatePlace)

	sess.State = session.StateSelectingPlace
	sess.Review.PlaceOptions = options
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return []Reply{keyboardReply(
		"Found similar places. Pick one, or create a new one:",
		optionKeyboard(labels),
	)}
}

func (e *Engine) processPlaceSelection(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	if text == ButtonCreatePlace {
		sess.State = session.StateEnteringAddress
		sess.Review.PlaceOptions = nil
		if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
			return replies
		}
		return []Reply{htmlKeyboardReply(
			fmt.Sprintf("Creating <b>%s</b>. What is its address?", sess.Review.PlaceName),
			navKeyboard(nil),
		)}
	}

	for _, opt := range sess.Review.PlaceOptions {
		if !strings.EqualFold(opt.Name, text) {
			continue
		}

		already, err := e.store.UserHasReview(ctx, ev.UserID, opt.ID)
		if err != nil {
			e.log.ErrorContext(ctx, "Failed to check existing review", "place_id", opt.ID, "error", err)
			return []Reply{e.errorReply()}
		}
		if already {
			e.clearSession(ctx, ev.UserID)
			return []Reply{e.menuReply("You already reviewed this place.")}
		}

		sess.State = session.StateRating
		sess.Review.PlaceID = opt.ID
		sess.Review.PlaceName = opt.Name
		sess.Review.PlaceOptions = nil
		if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
			return replies
		}
		return []Reply{htmlKeyboardReply(
			fmt.Sprintf("Reviewing <b>%s</b>. Rate it from 1 to 5:", opt.Name),
			ratingKeyboard(),
		)}
	}

	return []Reply{textReply("Pick a place from the keyboard, or create a new one.")}
}

func (e *Engine) processAddress(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	if text == "" {
		return []Reply{textReply("Please type the address of the place.")}
	}

	categories, err := e.store.ListCategories(ctx)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to list categories", "error", err)
		return []Reply{e.errorReply()}
	}
	if len(categories) == 0 {
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply("There are no categories yet, so new places cannot be created.")}
	}

	options := make([]session.CategoryOption, 0, len(categories))
	labels := make([]string, 0, len(categories))
	for _, c := range categories {
		options = append(options, session.CategoryOption{ID: c.ID, Name: c.Name})
		labels = append(labels, c.Name)
	}

	sess.State = session.StateChoosingCategory
	sess.Review.Address = text
	sess.Review.CategoryOptions = options
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return []Reply{keyboardReply("Which category fits this place?", optionKeyboard(labels))}
}

func (e *Engine) processPlaceCategory(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	var chosen *session.CategoryOption
	for i := range sess.Review.CategoryOptions {
		if strings.EqualFold(sess.Review.CategoryOptions[i].Name, text) {
			chosen = &sess.Review.CategoryOptions[i]
			break
		}
	}
	if chosen == nil {
		return []Reply{textReply("Pick a category from the keyboard.")}
	}

	place := &database.Place{
		Name:    sess.Review.PlaceName,
		Address: sess.Review.Address,
		CityID:  sess.Review.CityID,
	}
	place.CategoryID.Int64 = chosen.ID
	place.CategoryID.Valid = true
	if err := e.store.CreatePlace(ctx, place); err != nil {
		e.log.ErrorContext(ctx, "Failed to create place", "name", place.Name, "error", err)
		return []Reply{e.errorReply()}
	}

	sess.State = session.StateRating
	sess.Review.PlaceID = place.ID
	sess.Review.CategoryOptions = nil
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return []Reply{htmlKeyboardReply(
		fmt.Sprintf("Created <b>%s</b>. Now rate it from 1 to 5:", place.Name),
		ratingKeyboard(),
	)}
}

func (e *Engine) processRating(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	rating, ok := parseRating(text)
	if !ok {
		return []Reply{keyboardReply("The rating must be a number from 1 to 5.", ratingKeyboard())}
	}

	sess.State = session.StateEnteringText
	sess.Review.Rating = rating
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return []Reply{keyboardReply(
		"Now tell me about your experience. A few sentences are enough:",
		navKeyboard(nil),
	)}
}

func parseRating(text string) (int, bool) {
	switch text {
	case "1", "2", "3", "4", "5":
		return int(text[0] - '0'), true
	}
	return 0, false
}

func (e *Engine) processReviewText(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	if text == "" {
		return []Reply{textReply("Please write at least a few words about the place.")}
	}

	sess.State = session.StateCollectingPhotos
	sess.Review.Text = text
	sess.Review.Photos = nil
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return []Reply{keyboardReply(
		"Attach photos one by one if you have any, then press "+ButtonPhotosDone+".",
		navKeyboard([][]string{{ButtonPhotosDone}}),
	)}
}

func (e *Engine) processPhotos(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	if ev.PhotoID != "" {
		sess.Review.Photos = append(sess.Review.Photos, ev.PhotoID)
		if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
			return replies
		}
		return []Reply{textReply(fmt.Sprintf(
			"Photo saved (%d so far). Send more, or press %s.",
			len(sess.Review.Photos), ButtonPhotosDone,
		))}
	}

	if text == ButtonPhotosDone {
		return e.finalizeReview(ctx, ev, sess)
	}

	return []Reply{textReply("Send a photo, or press " + ButtonPhotosDone + " to finish.")}
}

// finalizeReview persists the pending review, runs moderation, and either
// rejects it or publishes it with the author's rewards. A moderation failure
// never blocks publication.
func (e *Engine) finalizeReview(ctx context.Context, ev Event, sess *session.Session) []Reply {
	photoIDs, err := database.EncodePhotoIDs(sess.Review.Photos)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to encode photo ids", "error", err)
		return []Reply{e.errorReply()}
	}

	review := &database.Review{
		UserID:   ev.UserID,
		PlaceID:  sess.Review.PlaceID,
		Rating:   sess.Review.Rating,
		Text:     sess.Review.Text,
		PhotoIDs: photoIDs,
	}
	if err := e.store.CreateReview(ctx, review); err != nil {
		e.log.ErrorContext(ctx, "Failed to create review", "place_id", review.PlaceID, "error", err)
		return []Reply{e.errorReply()}
	}

	verdict, err := e.classifier.AnalyzeReview(ctx, review.Text)
	if err != nil {
		e.log.WarnContext(ctx, "Review moderation unavailable, publishing as-is",
			"review_id", review.ID, "error", err)
		verdict = classifier.Verdict{}
	}

	e.clearSession(ctx, ev.UserID)

	if verdict.IsSpam {
		if err := e.store.RejectReview(ctx, review.ID); err != nil {
			e.log.ErrorContext(ctx, "Failed to reject review", "review_id", review.ID, "error", err)
			return []Reply{e.errorReply()}
		}
		return []Reply{e.menuReply(e.cfg.Messages.ReviewRejected)}
	}

	err = e.store.PublishReview(ctx, review.ID, verdict.Summary,
		e.cfg.Rewards.ReviewBalance, e.cfg.Rewards.ReviewReputation)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to publish review", "review_id", review.ID, "error", err)
		return []Reply{e.errorReply()}
	}

	e.refreshPlaceSummary(ctx, review.PlaceID)

	return []Reply{e.menuReply(e.cfg.Messages.ReviewPublished)}
}

// refreshPlaceSummary recomputes the AI opinion from the latest published
// reviews. Failures are logged and skipped; the stored summary stays.
func (e *Engine) refreshPlaceSummary(ctx context.Context, placeID int64) {
	texts, err := e.store.ListRecentReviewTexts(ctx, placeID, 10)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to load review texts", "place_id", placeID, "error", err)
		return
	}

	summary := classifier.SummaryPlaceholder
	if len(texts) > 0 {
		summary, err = e.classifier.SummarizeReviews(ctx, texts)
		if err != nil {
			e.log.WarnContext(ctx, "Failed to summarize reviews", "place_id", placeID, "error", err)
			return
		}
	}

	if err := e.store.UpdatePlaceSummary(ctx, placeID, summary); err != nil {
		e.log.ErrorContext(ctx, "Failed to store place summary", "place_id", placeID, "error", err)
	}
}

// handleReviewBack walks the authoring steps backwards, clearing the inputs
// the abandoned step had collected.
func (e *Engine) handleReviewBack(ctx context.Context, ev Event, sess *session.Session) []Reply {
	if sess.Review == nil {
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	}

	switch sess.State {
	case session.StateEnteringPlaceName:
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}

	case session.StateSelectingPlace, session.StateEnteringAddress:
		sess.State = session.StateEnteringPlaceName
		sess.Review.PlaceOptions = nil
		if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
			return replies
		}
		return []Reply{keyboardReply("What is the place called? Type its name:", navKeyboard(nil))}

	case session.StateChoosingCategory:
		sess.State = session.StateEnteringAddress
		sess.Review.Address = ""
		sess.Review.CategoryOptions = nil
		if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
			return replies
		}
		return []Reply{keyboardReply("What is the address of the place?", navKeyboard(nil))}

	case session.StateRating:
		sess.State = session.StateEnteringPlaceName
		sess.Review.PlaceID = 0
		sess.Review.Rating = 0
		if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
			return replies
		}
		return []Reply{keyboardReply("What is the place called? Type its name:", navKeyboard(nil))}

	case session.StateEnteringText:
		sess.State = session.StateRating
		sess.Review.Text = ""
		if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
			return replies
		}
		return []Reply{keyboardReply("Rate the place from 1 to 5:", ratingKeyboard())}

	case session.StateCollectingPhotos:
		sess.State = session.StateEnteringText
		sess.Review.Photos = nil
		if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
			return replies
		}
		return []Reply{keyboardReply("Tell me about your experience:", navKeyboard(nil))}

	default:
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	}
}
