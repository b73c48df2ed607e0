package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/madiyar/cityguidebot/internal/database"
	"github.com/madiyar/cityguidebot/internal/ranking"
	"github.com/madiyar/cityguidebot/internal/session"
)

const placePhotoLimit = 5

func (e *Engine) startSearch(ctx context.Context, ev Event) []Reply {
	user, replies := e.ensureRegistered(ctx, ev)
	if user == nil {
		return replies
	}

	categories, err := e.searchCategories(ctx, user.CityID.Int64)
	if err != nil {
		return []Reply{e.errorReply()}
	}
	if len(categories) == 0 {
		return []Reply{e.menuReply("There are no categories yet. Please try again later.")}
	}

	sess := &session.Session{
		Flow:   session.FlowSearch,
		State:  session.StateChoosingCategory,
		Search: &session.SearchData{CityID: user.CityID.Int64},
	}
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return []Reply{keyboardReply(
		"Pick a category to discover interesting places:",
		categoryNameKeyboard(categories),
	)}
}

// searchCategories prefers categories with places in the user's city and
// falls back to all of them.
func (e *Engine) searchCategories(ctx context.Context, cityID int64) ([]database.Category, error) {
	categories, err := e.store.ListCategoriesForCity(ctx, cityID)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to list city categories", "city_id", cityID, "error", err)
		return nil, err
	}
	if len(categories) > 0 {
		return categories, nil
	}

	categories, err = e.store.ListCategories(ctx)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to list categories", "error", err)
		return nil, err
	}
	return categories, nil
}

func categoryNameKeyboard(categories []database.Category) [][]string {
	rows := make([][]string, 0, len(categories)+1)
	for _, c := range categories {
		rows = append(rows, []string{c.Name})
	}
	return navKeyboard(rows)
}

func (e *Engine) handleSearchMessage(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	switch sess.State {
	case session.StateChoosingCategory:
		category, err := e.store.FindCategoryByName(ctx, text)
		if errors.Is(err, database.ErrNotFound) {
			return []Reply{textReply("I don't know that category. Pick one from the list.")}
		}
		if err != nil {
			e.log.ErrorContext(ctx, "Failed to find category", "name", text, "error", err)
			return []Reply{e.errorReply()}
		}
		return e.runSearchForCategory(ctx, ev, sess, category)

	case session.StateBrowsingResults:
		// Typing another category while browsing starts a new charged search.
		category, err := e.store.FindCategoryByName(ctx, text)
		if err == nil {
			return e.runSearchForCategory(ctx, ev, sess, category)
		}
		if !errors.Is(err, database.ErrNotFound) {
			e.log.ErrorContext(ctx, "Failed to find category", "name", text, "error", err)
			return []Reply{e.errorReply()}
		}
		return []Reply{e.menuReply("Use the buttons under the card to browse places, or open the menu.")}

	default:
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	}
}

// runSearchForCategory charges one request and builds the result cursor.
// At zero balance the search is refused and the session cleared.
func (e *Engine) runSearchForCategory(ctx context.Context, ev Event, sess *session.Session, category *database.Category) []Reply {
	if sess.Search == nil || sess.Search.CityID == 0 {
		e.clearSession(ctx, ev.UserID)
		return []Reply{textReply("I lost track of your city. Send /start to begin again.")}
	}
	cityID := sess.Search.CityID

	err := e.store.DecrementSearchBalance(ctx, ev.UserID)
	if errors.Is(err, database.ErrInsufficientBalance) {
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.OutOfSearchRequests)}
	}
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to charge search request", "user_id", ev.UserID, "error", err)
		return []Reply{e.errorReply()}
	}

	places, err := e.store.ListPlacesByCategory(ctx, cityID, category.ID)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to list places",
			"city_id", cityID, "category_id", category.ID, "error", err)
		return []Reply{e.errorReply()}
	}

	ranked := ranking.Order(places)
	cursor := ranking.NewCursor(ranked)

	sess.State = session.StateBrowsingResults
	sess.Search = &session.SearchData{
		CityID:     cityID,
		CategoryID: category.ID,
		PlaceIDs:   cursor.IDs,
		Index:      0,
	}
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	if len(ranked) == 0 {
		return []Reply{e.menuReply("Nothing here yet. Come back once the first reviews land.")}
	}

	return e.placeCardReplies(ctx, cursor, false)
}

// backToSearchCategories returns to the category choice and clears the cursor.
func (e *Engine) backToSearchCategories(ctx context.Context, ev Event, sess *session.Session) []Reply {
	if sess.Search == nil || sess.Search.CityID == 0 {
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply("I lost track of your city. Start the search again.")}
	}

	categories, err := e.searchCategories(ctx, sess.Search.CityID)
	if err != nil {
		return []Reply{e.errorReply()}
	}
	if len(categories) == 0 {
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply("There are no categories yet. Back to the main menu.")}
	}

	sess.State = session.StateChoosingCategory
	sess.Search = &session.SearchData{CityID: sess.Search.CityID}
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return []Reply{keyboardReply("Pick another category:", categoryNameKeyboard(categories))}
}

// handleSearchNavigation pages the result card in place. Boundary presses
// are answered as callback alerts without moving the cursor.
func (e *Engine) handleSearchNavigation(ctx context.Context, ev Event) []Reply {
	sess, err := e.sessions.Get(ctx, ev.UserID)
	if errors.Is(err, session.ErrNotFound) || (err == nil && (sess.Flow != session.FlowSearch || sess.State != session.StateBrowsingResults || sess.Search == nil)) {
		return []Reply{alertReply("This search has expired. Start a new one.")}
	}
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to load session", "user_id", ev.UserID, "error", err)
		return []Reply{alertReply(e.cfg.Messages.GenericError)}
	}

	cursor := ranking.Cursor{IDs: sess.Search.PlaceIDs, Index: sess.Search.Index}

	var moved bool
	switch ev.Token.Kind {
	case TokenNavNext:
		cursor, moved = cursor.Next()
		if !moved {
			return []Reply{alertReply("This is the last card.")}
		}
	case TokenNavPrev:
		cursor, moved = cursor.Prev()
		if !moved {
			return []Reply{alertReply("This is the first card.")}
		}
	}

	sess.Search.Index = cursor.Index
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return e.placeCardReplies(ctx, cursor, true)
}

// placeCardReplies renders the card under the cursor. Photos accompany only
// freshly sent cards; edits rewrite the text and pager in place.
func (e *Engine) placeCardReplies(ctx context.Context, cursor ranking.Cursor, edit bool) []Reply {
	placeID, ok := cursor.Current()
	if !ok {
		return []Reply{e.menuReply("No matching places. Go back and pick another category.")}
	}

	place, err := e.store.GetPlace(ctx, placeID)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to load place for card", "place_id", placeID, "error", err)
		return []Reply{textReply("Could not load this place. Please try again later.")}
	}

	reply := Reply{
		Text:   renderPlaceCard(place),
		HTML:   true,
		Inline: placeCardKeyboard(cursor, place.ID),
		Edit:   edit,
	}

	if !edit {
		photos, err := e.store.ListRecentPlacePhotos(ctx, place.ID, placePhotoLimit)
		if err != nil {
			e.log.WarnContext(ctx, "Failed to load place photos", "place_id", place.ID, "error", err)
		} else {
			reply.Photos = photos
		}
	}

	return []Reply{reply}
}

func renderPlaceCard(place *database.Place) string {
	rating := "—"
	if place.AvgRating > 0 {
		rating = fmt.Sprintf("%.1f", place.AvgRating)
	}
	summary := place.AISummary
	if summary == "" {
		summary = "The AI description will appear later."
	}
	return fmt.Sprintf(
		"🏆 <b>%s</b> (⭐ %s / 📝 %d)\n📍 %s\n\n🤖 <i>AI opinion:</i>\n%s",
		place.Name, rating, place.ReviewCount, place.Address, summary,
	)
}

func placeCardKeyboard(cursor ranking.Cursor, placeID int64) [][]InlineButton {
	prev := InlineButton{Label: " ", Token: Token{Kind: TokenNavIgnore}}
	if cursor.Index > 0 {
		prev = InlineButton{Label: "⬅️", Token: Token{Kind: TokenNavPrev}}
	}
	next := InlineButton{Label: " ", Token: Token{Kind: TokenNavIgnore}}
	if cursor.Index < cursor.Total()-1 {
		next = InlineButton{Label: "➡️", Token: Token{Kind: TokenNavNext}}
	}
	counter := InlineButton{
		Label: fmt.Sprintf("%d of %d", cursor.Index+1, cursor.Total()),
		Token: Token{Kind: TokenNavIgnore},
	}

	return [][]InlineButton{
		{prev, counter, next},
		{{Label: "✍️ Leave a review", Token: Token{Kind: TokenReview, ID: placeID}}},
		{{Label: ButtonMenu, Token: Token{Kind: TokenMenu}}},
	}
}
