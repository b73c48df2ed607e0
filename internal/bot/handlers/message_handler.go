// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic.
package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type messageHandler struct {
	deps HandlerDeps
}

// NewMessageHandler creates the default handler: every update that is not a
// registered command lands here. Plain messages and callback queries are both
// routed into the conversation engine.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	return messageHandler{deps}.Handle
}

func (h messageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery != nil {
		h.handleCallback(ctx, b, update)
		return
	}

	log := h.deps.Logger.With("handler", "message")

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.DebugContext(ctx, "Ignoring update with nil message or sender", "update_id", update.ID)
		return
	}
	if msg.Text == "" && msg.Caption == "" && len(msg.Photo) == 0 {
		log.DebugContext(ctx, "Ignoring message without text or photo", "update_id", update.ID)
		return
	}

	replies := h.deps.Engine.HandleMessage(ctx, eventFromMessage(msg))
	sendReplies(ctx, b, log, msg.Chat.ID, replies)
}
