// Package tasks implements the bot's scheduled background jobs: periodic
// place summary refreshes and database maintenance.
package tasks

import (
	"log/slog"

	"github.com/madiyar/cityguidebot/internal/classifier"
	"github.com/madiyar/cityguidebot/internal/config"
	"github.com/madiyar/cityguidebot/internal/database"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger     *slog.Logger
	Store      database.Store
	Classifier classifier.Client
	Config     *config.Config
}
