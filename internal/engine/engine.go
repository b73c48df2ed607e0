// Package engine implements the conversation state machine: flows, their
// states, and the transitions between them. It consumes normalized events
// and produces transport-agnostic replies.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/madiyar/cityguidebot/internal/classifier"
	"github.com/madiyar/cityguidebot/internal/config"
	"github.com/madiyar/cityguidebot/internal/database"
	"github.com/madiyar/cityguidebot/internal/session"
)

// Main menu and navigation button labels. They double as flow entry signals:
// pressing one starts its flow from any state.
const (
	ButtonSearch    = "🔍 Find a place"
	ButtonAddReview = "➕ Add a review"
	ButtonProfile   = "👤 Profile"
	ButtonGuides    = "📚 Guides"
	ButtonAssistant = "🤖 AI assistant"
	ButtonHelp      = "🆘 Help"

	ButtonBack = "⬅️ Back"
	ButtonMenu = "🏠 Main menu"

	ButtonCreatePlace = "🆕 Create a new place"
	ButtonPhotosDone  = "✅ Done"
)

// Engine dispatches events across the conversation flows.
type Engine struct {
	store      database.Store
	sessions   session.Store
	classifier classifier.Client
	cfg        *config.Config
	log        *slog.Logger
}

// New creates the conversation engine.
func New(
	store database.Store,
	sessions session.Store,
	aiClient classifier.Client,
	cfg *config.Config,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:      store,
		sessions:   sessions,
		classifier: aiClient,
		cfg:        cfg,
		log:        logger.With("component", "engine"),
	}
}

func mainMenuKeyboard() [][]string {
	return [][]string{
		{ButtonSearch, ButtonAddReview},
		{ButtonProfile, ButtonGuides},
		{ButtonAssistant, ButtonHelp},
	}
}

// navKeyboard appends the back/menu row under domain buttons.
func navKeyboard(rows [][]string) [][]string {
	return append(rows, []string{ButtonBack, ButtonMenu})
}

// optionKeyboard lays options out one per row, with the navigation row last.
func optionKeyboard(options []string) [][]string {
	rows := make([][]string, 0, len(options)+1)
	for _, opt := range options {
		rows = append(rows, []string{opt})
	}
	return navKeyboard(rows)
}

func (e *Engine) menuReply(text string) Reply {
	return keyboardReply(text, mainMenuKeyboard())
}

func (e *Engine) errorReply() Reply {
	return e.menuReply(e.cfg.Messages.GenericError)
}

// HandleStart processes the /start command: known users get the main menu,
// new users enter registration.
func (e *Engine) HandleStart(ctx context.Context, ev Event) []Reply {
	log := e.log.With("handler", "start", "user_id", ev.UserID)

	_, err := e.store.GetUser(ctx, ev.UserID)
	switch {
	case err == nil:
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.WelcomeBack)}
	case errors.Is(err, database.ErrNotFound):
		return e.startRegistration(ctx, ev)
	default:
		log.ErrorContext(ctx, "Failed to load user", "error", err)
		return []Reply{e.errorReply()}
	}
}

// HandleHelp returns the static usage text.
func (e *Engine) HandleHelp(_ context.Context, _ Event) []Reply {
	return []Reply{e.menuReply(e.cfg.Messages.Help)}
}

// HandleMessage processes a plain message through the resolution order:
// menu override, flow entry buttons, back navigation, then the state handler.
func (e *Engine) HandleMessage(ctx context.Context, ev Event) []Reply {
	log := e.log.With("handler", "message", "user_id", ev.UserID)
	text := strings.TrimSpace(ev.Text)

	if text == ButtonMenu {
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	}

	switch text {
	case ButtonSearch:
		return e.startSearch(ctx, ev)
	case ButtonAddReview:
		return e.startReview(ctx, ev)
	case ButtonGuides:
		return e.startGuides(ctx, ev)
	case ButtonAssistant:
		return e.startAssistant(ctx, ev)
	case ButtonProfile:
		return e.showProfile(ctx, ev)
	case ButtonHelp:
		return e.HandleHelp(ctx, ev)
	}

	sess, err := e.sessions.Get(ctx, ev.UserID)
	if errors.Is(err, session.ErrNotFound) {
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to load session", "error", err)
		return []Reply{e.errorReply()}
	}

	if text == ButtonBack {
		return e.handleBack(ctx, ev, sess)
	}

	switch sess.Flow {
	case session.FlowRegistration:
		return e.handleRegistrationMessage(ctx, ev, sess, text)
	case session.FlowSearch:
		return e.handleSearchMessage(ctx, ev, sess, text)
	case session.FlowReview:
		return e.handleReviewMessage(ctx, ev, sess, text)
	case session.FlowGuides:
		return e.handleGuidesMessage(ctx, ev, sess, text)
	case session.FlowAssistant:
		return e.handleAssistantMessage(ctx, ev, sess, text)
	case session.FlowProfile:
		// The city choice is inline-button driven; typed input falls back
		// to the menu.
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	default:
		log.WarnContext(ctx, "Session with unknown flow, clearing", "flow", sess.Flow)
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	}
}

// HandleCallback processes a parsed callback token.
func (e *Engine) HandleCallback(ctx context.Context, ev Event) []Reply {
	log := e.log.With("handler", "callback", "user_id", ev.UserID)

	switch ev.Token.Kind {
	case TokenNavIgnore:
		return nil
	case TokenMenu:
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	case TokenReview:
		return e.startReviewFromPlace(ctx, ev, ev.Token.ID)
	case TokenChangeCity:
		return e.startCityChange(ctx, ev)
	case TokenCity:
		return e.applyCityChange(ctx, ev, ev.Token.ID)
	case TokenNavNext, TokenNavPrev:
		return e.handleSearchNavigation(ctx, ev)
	default:
		log.WarnContext(ctx, "Callback with unknown token kind", "kind", ev.Token.Kind)
		return nil
	}
}

// handleBack routes the back button to the state's predecessor. States
// without one fall through to a re-prompt in their flow handler.
func (e *Engine) handleBack(ctx context.Context, ev Event, sess *session.Session) []Reply {
	switch {
	case sess.Flow == session.FlowRegistration && sess.State == session.StateChoosingRole:
		return e.backToCityChoice(ctx, ev, sess)
	case sess.Flow == session.FlowSearch && sess.State == session.StateBrowsingResults:
		return e.backToSearchCategories(ctx, ev, sess)
	case sess.Flow == session.FlowReview:
		return e.handleReviewBack(ctx, ev, sess)
	case sess.Flow == session.FlowGuides && sess.State == session.StateViewingTopics:
		return e.backToGuideCategories(ctx, ev, sess)
	case sess.Flow == session.FlowAssistant && sess.State == session.StateChatting:
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply("You left the AI assistant mode.")}
	default:
		// No predecessor: treat as regular input for the current state.
		return e.handleStateInput(ctx, ev, sess)
	}
}

func (e *Engine) handleStateInput(ctx context.Context, ev Event, sess *session.Session) []Reply {
	switch sess.Flow {
	case session.FlowRegistration:
		return e.handleRegistrationMessage(ctx, ev, sess, ev.Text)
	case session.FlowSearch:
		return e.handleSearchMessage(ctx, ev, sess, ev.Text)
	case session.FlowReview:
		return e.handleReviewMessage(ctx, ev, sess, ev.Text)
	case session.FlowGuides:
		return e.handleGuidesMessage(ctx, ev, sess, ev.Text)
	case session.FlowAssistant:
		return e.handleAssistantMessage(ctx, ev, sess, ev.Text)
	default:
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	}
}

// ensureRegistered loads the user and verifies a city is set. A nil user
// with non-nil replies means the caller should return those replies.
func (e *Engine) ensureRegistered(ctx context.Context, ev Event) (*database.User, []Reply) {
	user, err := e.store.GetUser(ctx, ev.UserID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		e.clearSession(ctx, ev.UserID)
		return nil, []Reply{textReply(e.cfg.Messages.NotRegistered)}
	case err != nil:
		e.log.ErrorContext(ctx, "Failed to load user", "user_id", ev.UserID, "error", err)
		return nil, []Reply{e.errorReply()}
	}

	if !user.CityID.Valid {
		e.clearSession(ctx, ev.UserID)
		return nil, []Reply{textReply(e.cfg.Messages.NoCity)}
	}
	return user, nil
}

func (e *Engine) putSession(ctx context.Context, userID int64, sess *session.Session) []Reply {
	if err := e.sessions.Put(ctx, userID, sess); err != nil {
		e.log.ErrorContext(ctx, "Failed to store session", "user_id", userID, "error", err)
		return []Reply{e.errorReply()}
	}
	return nil
}

func (e *Engine) clearSession(ctx context.Context, userID int64) {
	if err := e.sessions.Clear(ctx, userID); err != nil {
		e.log.ErrorContext(ctx, "Failed to clear session", "user_id", userID, "error", err)
	}
}
