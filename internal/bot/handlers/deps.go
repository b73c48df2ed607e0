package handlers

import (
	"log/slog"

	"github.com/madiyar/cityguidebot/internal/config"
	"github.com/madiyar/cityguidebot/internal/engine"
)

// HandlerDeps provides dependencies for Telegram update handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Engine *engine.Engine
}
