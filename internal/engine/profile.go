package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/madiyar/cityguidebot/internal/database"
	"github.com/madiyar/cityguidebot/internal/session"
)

var roleLabels = map[string]string{
	database.RoleTourist: "Tourist",
	database.RoleStudent: "Student",
	database.RoleLocal:   "Local",
}

var statusLabels = map[string]string{
	database.StatusNovice: "Novice",
	database.StatusExpert: "Expert",
	database.StatusLegend: "Legend",
}

func (e *Engine) showProfile(ctx context.Context, ev Event) []Reply {
	user, err := e.store.GetUser(ctx, ev.UserID)
	if errors.Is(err, database.ErrNotFound) {
		e.clearSession(ctx, ev.UserID)
		return []Reply{textReply(e.cfg.Messages.NotRegistered)}
	}
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to load user", "user_id", ev.UserID, "error", err)
		return []Reply{e.errorReply()}
	}

	cityName := "not set"
	if user.CityID.Valid {
		city, err := e.store.GetCityByID(ctx, user.CityID.Int64)
		if err == nil {
			cityName = city.Name
		} else if !errors.Is(err, database.ErrNotFound) {
			e.log.ErrorContext(ctx, "Failed to load user's city", "city_id", user.CityID.Int64, "error", err)
		}
	}

	reviewCount, err := e.store.CountUserReviews(ctx, ev.UserID)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to count user reviews", "user_id", ev.UserID, "error", err)
		return []Reply{e.errorReply()}
	}

	return []Reply{{
		Text:   renderProfileCard(user, cityName, reviewCount),
		HTML:   true,
		Inline: profileKeyboard(),
	}}
}

func renderProfileCard(user *database.User, cityName string, reviewCount int) string {
	name := user.FullName
	if name == "" {
		name = user.Username
	}
	return fmt.Sprintf(
		"👤 <b>%s</b>\n\n"+
			"🏙 City: %s\n"+
			"🎭 Role: %s\n"+
			"🏅 Status: %s\n\n"+
			"🔍 Search requests: %d\n"+
			"🤖 AI requests: %d\n"+
			"⭐ Reputation: %d\n"+
			"📝 Reviews written: %d",
		name, cityName,
		labelOr(roleLabels, user.Role),
		labelOr(statusLabels, user.Status),
		user.BalanceRequests, user.AIRequestBalance,
		user.ReputationPoints, reviewCount,
	)
}

func labelOr(labels map[string]string, code string) string {
	if label, ok := labels[code]; ok {
		return label
	}
	return code
}

func profileKeyboard() [][]InlineButton {
	return [][]InlineButton{
		{{Label: "🏙 Change city", Token: Token{Kind: TokenChangeCity}}},
		{{Label: ButtonMenu, Token: Token{Kind: TokenMenu}}},
	}
}

// startCityChange offers the active cities as inline buttons.
func (e *Engine) startCityChange(ctx context.Context, ev Event) []Reply {
	if _, err := e.store.GetUser(ctx, ev.UserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return []Reply{textReply(e.cfg.Messages.NotRegistered)}
		}
		e.log.ErrorContext(ctx, "Failed to load user", "user_id", ev.UserID, "error", err)
		return []Reply{e.errorReply()}
	}

	cities, err := e.store.ListActiveCities(ctx)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to list cities", "error", err)
		return []Reply{e.errorReply()}
	}
	if len(cities) == 0 {
		return []Reply{textReply("No cities are available yet. Please try again later.")}
	}

	sess := &session.Session{
		Flow:  session.FlowProfile,
		State: session.StateChoosingCity,
	}
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	buttons := make([][]InlineButton, 0, len(cities))
	for _, c := range cities {
		buttons = append(buttons, []InlineButton{{
			Label: c.Name,
			Token: Token{Kind: TokenCity, ID: c.ID},
		}})
	}

	return []Reply{{Text: "Pick your new city:", Inline: buttons}}
}

// applyCityChange persists the new city. Stale city buttons pressed outside
// the profile flow are ignored with an alert.
func (e *Engine) applyCityChange(ctx context.Context, ev Event, cityID int64) []Reply {
	sess, err := e.sessions.Get(ctx, ev.UserID)
	if errors.Is(err, session.ErrNotFound) ||
		(err == nil && (sess.Flow != session.FlowProfile || sess.State != session.StateChoosingCity)) {
		return []Reply{alertReply("This city choice has expired. Open your profile again.")}
	}
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to load session", "user_id", ev.UserID, "error", err)
		return []Reply{alertReply(e.cfg.Messages.GenericError)}
	}

	city, err := e.store.GetCityByID(ctx, cityID)
	if errors.Is(err, database.ErrNotFound) {
		return []Reply{alertReply("That city is no longer available.")}
	}
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to load city", "city_id", cityID, "error", err)
		return []Reply{alertReply(e.cfg.Messages.GenericError)}
	}

	if err := e.store.UpdateUserCity(ctx, ev.UserID, city.ID); err != nil {
		e.log.ErrorContext(ctx, "Failed to update user's city", "user_id", ev.UserID, "error", err)
		return []Reply{alertReply(e.cfg.Messages.GenericError)}
	}

	e.clearSession(ctx, ev.UserID)

	replies := []Reply{textReply(fmt.Sprintf("Done! Your city is now %s.", city.Name))}
	return append(replies, e.showProfile(ctx, ev)...)
}
