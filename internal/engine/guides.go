package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/madiyar/cityguidebot/internal/database"
	"github.com/madiyar/cityguidebot/internal/session"
)

// startGuides opens the guide browser. Unlike search it does not require a
// bound city: without one the guides of all cities are listed.
func (e *Engine) startGuides(ctx context.Context, ev Event) []Reply {
	user, err := e.store.GetUser(ctx, ev.UserID)
	if errors.Is(err, database.ErrNotFound) {
		e.clearSession(ctx, ev.UserID)
		return []Reply{textReply(e.cfg.Messages.NotRegistered)}
	}
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to load user", "user_id", ev.UserID, "error", err)
		return []Reply{e.errorReply()}
	}

	data := &session.GuidesData{}
	if user.CityID.Valid {
		city, err := e.store.GetCityByID(ctx, user.CityID.Int64)
		if err != nil {
			e.log.ErrorContext(ctx, "Failed to load user's city", "city_id", user.CityID.Int64, "error", err)
			return []Reply{e.errorReply()}
		}
		data.CityID = city.ID
		data.CityName = city.Name
	}

	categories, err := e.store.ListGuideCategories(ctx, data.CityID)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to list guide categories", "error", err)
		return []Reply{e.errorReply()}
	}
	if len(categories) == 0 {
		return []Reply{e.menuReply("No guides have been written yet. Check back later!")}
	}

	sess := &session.Session{
		Flow:   session.FlowGuides,
		State:  session.StateChoosingCategory,
		Guides: data,
	}
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	labels := make([]string, 0, len(categories))
	for _, c := range categories {
		labels = append(labels, c.Name)
	}
	return []Reply{keyboardReply("Pick a guide category:", optionKeyboard(labels))}
}

func (e *Engine) handleGuidesMessage(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	if sess.Guides == nil {
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	}

	switch sess.State {
	case session.StateChoosingCategory:
		return e.processGuideCategory(ctx, ev, sess, text)
	case session.StateViewingTopics:
		return e.processGuideTopic(ctx, ev, sess, text)
	default:
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	}
}

func (e *Engine) processGuideCategory(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	category, err := e.store.FindGuideCategoryByName(ctx, text)
	if errors.Is(err, database.ErrNotFound) {
		return []Reply{textReply("Pick a guide category from the keyboard.")}
	}
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to find guide category", "name", text, "error", err)
		return []Reply{e.errorReply()}
	}

	topics, err := e.store.ListGuideTopics(ctx, sess.Guides.CityID, category.ID)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to list guide topics", "category_id", category.ID, "error", err)
		return []Reply{e.errorReply()}
	}
	if len(topics) == 0 {
		return []Reply{textReply("There are no guides in this category yet. Pick another one.")}
	}

	options := make([]session.GuideTopicOption, 0, len(topics))
	for _, t := range topics {
		options = append(options, session.GuideTopicOption{
			ID:    t.ID,
			Topic: topicLabel(t, sess.Guides.CityName),
		})
	}

	sess.State = session.StateViewingTopics
	sess.Guides.CategoryID = category.ID
	sess.Guides.CategoryName = category.Name
	sess.Guides.Topics = options
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	return []Reply{{
		Text:     formatGuideTopics(category.Name, options),
		HTML:     true,
		Keyboard: navKeyboard(nil),
	}}
}

// topicLabel appends the guide's city when it differs from the user's, so
// cross-city fallbacks stay distinguishable.
func topicLabel(t database.GuideTopic, userCity string) string {
	if t.CityName == "" || strings.EqualFold(t.CityName, userCity) {
		return t.Topic
	}
	return fmt.Sprintf("%s (%s)", t.Topic, t.CityName)
}

func formatGuideTopics(categoryName string, topics []session.GuideTopicOption) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📚 <b>%s</b>\n\nSend a number or a title to open a guide:\n\n", categoryName)
	for i, t := range topics {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.Topic)
	}
	return b.String()
}

// processGuideTopic shows the matched guide and re-lists the topics, so the
// content view never becomes a state of its own.
func (e *Engine) processGuideTopic(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	topic, ok := matchTopic(text, sess.Guides.Topics)
	if !ok {
		return []Reply{textReply("I couldn't find that guide. Send its number or title from the list.")}
	}

	guide, err := e.store.GetGuide(ctx, topic.ID)
	if errors.Is(err, database.ErrNotFound) {
		return []Reply{textReply("That guide is gone. Pick another one from the list.")}
	}
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to load guide", "guide_id", topic.ID, "error", err)
		return []Reply{e.errorReply()}
	}

	return []Reply{
		{
			Text: fmt.Sprintf("📖 <b>%s</b>\n\n%s", guide.Topic, guide.Content),
			HTML: true,
		},
		{
			Text:     formatGuideTopics(sess.Guides.CategoryName, sess.Guides.Topics),
			HTML:     true,
			Keyboard: navKeyboard(nil),
		},
	}
}

// backToGuideCategories returns to the category list and clears the chosen
// category.
func (e *Engine) backToGuideCategories(ctx context.Context, ev Event, sess *session.Session) []Reply {
	categories, err := e.store.ListGuideCategories(ctx, sess.Guides.CityID)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to list guide categories", "error", err)
		return []Reply{e.errorReply()}
	}
	if len(categories) == 0 {
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply("No guides have been written yet. Check back later!")}
	}

	sess.State = session.StateChoosingCategory
	sess.Guides.CategoryID = 0
	sess.Guides.CategoryName = ""
	sess.Guides.Topics = nil
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	labels := make([]string, 0, len(categories))
	for _, c := range categories {
		labels = append(labels, c.Name)
	}
	return []Reply{keyboardReply("Pick another guide category:", optionKeyboard(labels))}
}
