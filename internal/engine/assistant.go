package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/madiyar/cityguidebot/internal/database"
	"github.com/madiyar/cityguidebot/internal/session"
)

const (
	assistantContextPlaces = 100
	assistantContextGuides = 20
	assistantGuideMaxChars = 300
)

func (e *Engine) startAssistant(ctx context.Context, ev Event) []Reply {
	user, replies := e.ensureRegistered(ctx, ev)
	if user == nil {
		return replies
	}

	city, err := e.store.GetCityByID(ctx, user.CityID.Int64)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to load user's city", "city_id", user.CityID.Int64, "error", err)
		return []Reply{e.errorReply()}
	}

	sess := &session.Session{
		Flow:  session.FlowAssistant,
		State: session.StateChatting,
		Assistant: &session.AssistantData{
			CityID:   city.ID,
			CityName: city.Name,
		},
	}
	if replies := e.putSession(ctx, ev.UserID, sess); replies != nil {
		return replies
	}

	greeting := fmt.Sprintf(
		"🤖 I'm your %s assistant! Ask me anything about the city, for example:\n\n"+
			"• Where can I eat well for cheap?\n"+
			"• What should I see in one day?\n"+
			"• Where do locals hang out in the evening?\n\n"+
			"You have %d requests left.",
		city.Name, user.AIRequestBalance,
	)
	return []Reply{keyboardReply(greeting, navKeyboard(nil))}
}

func (e *Engine) handleAssistantMessage(ctx context.Context, ev Event, sess *session.Session, text string) []Reply {
	if sess.Assistant == nil || sess.Assistant.CityID == 0 {
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.MainMenu)}
	}
	if text == "" {
		return []Reply{textReply("Ask me a question about the city in plain text.")}
	}

	remaining, err := e.store.DecrementAIBalance(ctx, ev.UserID)
	if errors.Is(err, database.ErrInsufficientBalance) {
		e.clearSession(ctx, ev.UserID)
		return []Reply{e.menuReply(e.cfg.Messages.OutOfAIRequests)}
	}
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to charge AI request", "user_id", ev.UserID, "error", err)
		return []Reply{e.errorReply()}
	}

	cityContext, err := e.buildCityContext(ctx, sess.Assistant.CityID)
	if err != nil {
		// The answer degrades to the model's own knowledge.
		e.log.WarnContext(ctx, "Failed to build city context", "city_id", sess.Assistant.CityID, "error", err)
		cityContext = ""
	}

	answer, err := e.classifier.GenerateRecommendation(ctx, text, cityContext, sess.Assistant.CityName)
	if err != nil {
		e.log.ErrorContext(ctx, "Assistant generation failed", "user_id", ev.UserID, "error", err)
		return []Reply{textReply("Sorry, I couldn't think of an answer right now. Try again in a minute.")}
	}

	return []Reply{{
		Text:     fmt.Sprintf("%s\n\n<i>Requests left: %d</i>", answer, remaining),
		HTML:     true,
		Keyboard: navKeyboard(nil),
	}}
}

// buildCityContext assembles the grounding block for the assistant: the
// city's best-reviewed places grouped by category, plus guide excerpts.
func (e *Engine) buildCityContext(ctx context.Context, cityID int64) (string, error) {
	places, err := e.store.ListTopRatedPlaces(ctx, cityID, assistantContextPlaces)
	if err != nil {
		return "", fmt.Errorf("list top rated places: %w", err)
	}
	guides, err := e.store.ListGuidesForCity(ctx, cityID, assistantContextGuides)
	if err != nil {
		return "", fmt.Errorf("list guides: %w", err)
	}

	var b strings.Builder

	if len(places) > 0 {
		b.WriteString("PLACES WITH REVIEWS:\n")
		byCategory := make(map[string][]database.PlaceSummary)
		var order []string
		for _, p := range places {
			name := p.CategoryName
			if name == "" {
				name = "Other"
			}
			if _, ok := byCategory[name]; !ok {
				order = append(order, name)
			}
			byCategory[name] = append(byCategory[name], p)
		}
		for _, category := range order {
			fmt.Fprintf(&b, "\n%s:\n", category)
			for _, p := range byCategory[category] {
				fmt.Fprintf(&b, "- %s (%s) — rating %.1f from %d reviews", p.Name, p.Address, p.AvgRating, p.ReviewCount)
				if p.AISummary != "" {
					fmt.Fprintf(&b, ". %s", p.AISummary)
				}
				b.WriteString("\n")
			}
		}
	}

	if len(guides) > 0 {
		b.WriteString("\nLOCAL GUIDES:\n")
		for _, g := range guides {
			fmt.Fprintf(&b, "- %s: %s\n", g.Topic, truncateGuideContent(g.Content, assistantGuideMaxChars))
		}
	}

	return b.String(), nil
}

func truncateGuideContent(content string, max int) string {
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "…"
}
