package engine

import (
	"context"
	"database/sql"
	"errors"

	"github.com/madiyar/cityguidebot/internal/database"
	"github.com/madiyar/cityguidebot/internal/session"
)

// Role button labels mapped to stored role codes.
var roleByLabel = map[string]string{
	"Tourist": database.RoleTourist,
	"Student": database.RoleStudent,
	"Local":   database.RoleLocal,
}

func roleKeyboard() [][]string {
	return navKeyboard([][]string{{"Tourist", "Student", "Local"}})
}

func (e *Engine) startRegistration(ctx context.Context, ev Event) []Reply {
	cities, err := e.store.ListActiveCities(ctx)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to list cities", "error", err)
		return []Reply{e.errorReply()}
	}
	if len(cities) == 0 {
		return []Reply{textReply("No cities are available yet. Please try again later.")}
	}

	sess := &session.Session{
		Flow:         session.FlowRegistration,
		State:        session.StateChoosingCity,
		Registration: &session.RegistrationData{},
	}
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return []Reply{keyboardReply(
		"Hi! Pick your city so we can tailor recommendations:",
		cityNameKeyboard(cities),
	)}
}

func cityNameKeyboard(cities []database.City) [][]string {
	rows := make([][]string, 0, len(cities))
	for _, c := range cities {
		rows = append(rows, []string{c.Name})
	}
	return rows
}

func (e *Engine) handleRegistrationMessage(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	switch sess.State {
	case session.StateChoosingCity:
		return e.processCityChoice(ctx, ev, sess, text)
	case session.StateChoosingRole:
		return e.processRoleChoice(ctx, ev, sess, text)
	default:
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	}
}

func (e *Engine) processCityChoice(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	city, err := e.store.GetActiveCityByName(ctx, text)
	if errors.Is(err, database.ErrNotFound) {
		return []Reply{textReply("I don't know that city. Pick one from the keyboard.")}
	}
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to look up city", "name", text, "error", err)
		return []Reply{e.errorReply()}
	}

	sess.Registration = &session.RegistrationData{CityID: city.ID}
	sess.State = session.StateChoosingRole
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return []Reply{keyboardReply("Great! Now tell me who you are:", roleKeyboard())}
}

func (e *Engine) processRoleChoice(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	role, ok := roleByLabel[text]
	if !ok {
		return []Reply{keyboardReply("Please pick a role from the keyboard.", roleKeyboard())}
	}

	if sess.Registration == nil || sess.Registration.CityID == 0 {
		e.clearSession(ctx, ev.UserID)
		return []Reply{textReply("Something went wrong with your city choice. Send /start to begin again.")}
	}

	city, err := e.store.GetCityByID(ctx, sess.Registration.CityID)
	if errors.Is(err, database.ErrNotFound) {
		e.clearSession(ctx, ev.UserID)
		return []Reply{textReply("That city is no longer available. Send /start to begin again.")}
	}
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to load chosen city", "city_id", sess.Registration.CityID, "error", err)
		return []Reply{e.errorReply()}
	}

	user := &database.User{
		TelegramID:       ev.UserID,
		Username:         ev.Username,
		FullName:         ev.FullName,
		CityID:           sql.NullInt64{Int64: city.ID, Valid: true},
		Role:             role,
		Status:           database.StatusNovice,
		BalanceRequests:  5,
		AIRequestBalance: 10,
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		e.log.ErrorContext(ctx, "Failed to create user", "user_id", ev.UserID, "error", err)
		return []Reply{e.errorReply()}
	}

	e.clearSession(ctx, ev.UserID)
	return []Reply{e.menuReply(e.cfg.Messages.Registered)}
}

// backToCityChoice returns from the role step and clears the chosen city.
func (e *Engine) backToCityChoice(ctx context.Context, ev Event, sess *session.Session) []Reply {
	cities, err := e.store.ListActiveCities(ctx)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to list cities", "error", err)
		return []Reply{e.errorReply()}
	}
	if len(cities) == 0 {
		e.clearSession(ctx, ev.UserID)
		return []Reply{textReply("No cities are available yet. Please try again later.")}
	}

	sess.Registration = &session.RegistrationData{}
	sess.State = session.StateChoosingCity
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return []Reply{keyboardReply("Back to city choice. Please pick a city:", cityNameKeyboard(cities))}
}
