package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/madiyar/cityguidebot/internal/engine"
)

// eventFromMessage normalizes a Telegram message into an engine event,
// picking the largest photo size when one is attached.
func eventFromMessage(msg *models.Message) engine.Event {
	ev := engine.Event{
		UserID: msg.From.ID,
		ChatID: msg.Chat.ID,
		Text:   msg.Text,
	}
	if msg.From.Username != "" {
		ev.Username = msg.From.Username
	}
	ev.FullName = msg.From.FirstName
	if msg.From.LastName != "" {
		ev.FullName += " " + msg.From.LastName
	}
	if ev.Text == "" && msg.Caption != "" {
		ev.Text = msg.Caption
	}
	if len(msg.Photo) > 0 {
		largest := msg.Photo[0]
		for _, size := range msg.Photo[1:] {
			if size.Width*size.Height > largest.Width*largest.Height {
				largest = size
			}
		}
		ev.PhotoID = largest.FileID
	}
	return ev
}

// sendReplies renders engine replies as Telegram messages. Edit and Alert
// replies are callback-specific and handled by the callback handler.
func sendReplies(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, replies []engine.Reply) {
	for _, reply := range replies {
		sendReply(ctx, b, log, chatID, reply)
	}
}

func sendReply(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, reply engine.Reply) {
	if len(reply.Photos) > 0 {
		media := make([]models.InputMedia, 0, len(reply.Photos))
		for _, fileID := range reply.Photos {
			media = append(media, &models.InputMediaPhoto{Media: fileID})
		}
		if _, err := b.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
			ChatID: chatID,
			Media:  media,
		}); err != nil {
			log.ErrorContext(ctx, "Failed to send media group", "error", err, "chat_id", chatID)
		}
	}

	if reply.Text == "" {
		return
	}

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   reply.Text,
	}
	if reply.HTML {
		params.ParseMode = models.ParseModeHTML
	}
	if reply.Keyboard != nil {
		params.ReplyMarkup = replyKeyboardMarkup(reply.Keyboard)
	} else if reply.Inline != nil {
		params.ReplyMarkup = inlineKeyboardMarkup(reply.Inline)
	}

	if _, err := b.SendMessage(ctx, params); err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
	}
}

func replyKeyboardMarkup(rows [][]string) *models.ReplyKeyboardMarkup {
	keyboard := make([][]models.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]models.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, models.KeyboardButton{Text: label})
		}
		keyboard = append(keyboard, buttons)
	}
	return &models.ReplyKeyboardMarkup{
		Keyboard:       keyboard,
		ResizeKeyboard: true,
	}
}

func inlineKeyboardMarkup(rows [][]engine.InlineButton) *models.InlineKeyboardMarkup {
	keyboard := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, models.InlineKeyboardButton{
				Text:         btn.Label,
				CallbackData: btn.Token.String(),
			})
		}
		keyboard = append(keyboard, buttons)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}
