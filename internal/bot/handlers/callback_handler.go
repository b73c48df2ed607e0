package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/madiyar/cityguidebot/internal/engine"
)

func (h messageHandler) handleCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "callback")

	query := update.CallbackQuery
	token, err := engine.ParseToken(query.Data)
	if err != nil {
		log.WarnContext(ctx, "Ignoring callback with unknown data",
			"data", query.Data, "user_id", query.From.ID)
		answerCallback(ctx, b, log, query.ID, "", false)
		return
	}

	var chatID int64
	var messageID int
	if query.Message.Message != nil {
		chatID = query.Message.Message.Chat.ID
		messageID = query.Message.Message.ID
	} else if query.Message.InaccessibleMessage != nil {
		chatID = query.Message.InaccessibleMessage.Chat.ID
	}

	ev := engine.Event{
		UserID:   query.From.ID,
		ChatID:   chatID,
		Username: query.From.Username,
		FullName: query.From.FirstName,
		Token:    token,
	}

	replies := h.deps.Engine.HandleCallback(ctx, ev)

	answered := false
	for _, reply := range replies {
		switch {
		case reply.Alert != "":
			answerCallback(ctx, b, log, query.ID, reply.Alert, true)
			answered = true
		case reply.Edit:
			editMessage(ctx, b, log, chatID, messageID, reply)
		default:
			sendReply(ctx, b, log, chatID, reply)
		}
	}

	// Telegram keeps the button spinner until the query is answered.
	if !answered {
		answerCallback(ctx, b, log, query.ID, "", false)
	}
}

func answerCallback(ctx context.Context, b *bot.Bot, log *slog.Logger, queryID, text string, showAlert bool) {
	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       showAlert,
	}); err != nil {
		log.ErrorContext(ctx, "Failed to answer callback query", "error", err)
	}
}

func editMessage(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, messageID int, reply engine.Reply) {
	if messageID == 0 {
		// The original message is inaccessible; fall back to a fresh one.
		sendReply(ctx, b, log, chatID, reply)
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      reply.Text,
	}
	if reply.HTML {
		params.ParseMode = models.ParseModeHTML
	}
	if reply.Inline != nil {
		params.ReplyMarkup = inlineKeyboardMarkup(reply.Inline)
	}

	if _, err := b.EditMessageText(ctx, params); err != nil {
		log.ErrorContext(ctx, "Failed to edit message", "error", err,
			"chat_id", chatID, "message_id", messageID)
	}
}
