// Package config loads and validates application configuration from
// config.yaml, BOT_* environment variables, and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the city-guide bot.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Rewards   RewardsConfig   `mapstructure:"rewards"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls log verbosity and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot token and transport settings.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// RedisConfig selects the session store backend. An empty address means
// sessions are kept in process memory.
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	SessionTTL time.Duration `mapstructure:"session_ttl" validate:"min=0"`
}

// GeminiConfig holds settings for the Gemini classifier/assistant client.
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key" validate:"required"`
	ModelName         string  `mapstructure:"model_name" validate:"required"`
	Temperature       float32 `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxRetries        int     `mapstructure:"max_retries" validate:"min=0,max=5"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" validate:"min=0"`
}

// TaskConfig enables a named scheduled task with a cron expression.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// RewardsConfig holds the fixed amounts credited for a published review.
type RewardsConfig struct {
	ReviewBalance    int `mapstructure:"review_balance" validate:"min=0"`
	ReviewReputation int `mapstructure:"review_reputation" validate:"min=0"`
}

// MessagesConfig holds shared user-facing texts. Flow prompts that are tied
// to a single conversation step live with the flow; these are the ones reused
// across flows.
type MessagesConfig struct {
	WelcomeBack         string `mapstructure:"welcome_back"`
	Registered          string `mapstructure:"registered"`
	NotRegistered       string `mapstructure:"not_registered"`
	NoCity              string `mapstructure:"no_city"`
	MainMenu            string `mapstructure:"main_menu"`
	Help                string `mapstructure:"help"`
	OutOfSearchRequests string `mapstructure:"out_of_search_requests"`
	OutOfAIRequests     string `mapstructure:"out_of_ai_requests"`
	ReviewPublished     string `mapstructure:"review_published"`
	ReviewRejected      string `mapstructure:"review_rejected"`
	GenericError        string `mapstructure:"generic_error"`
}

// LoadConfig reads configuration from the given YAML file (optional), applies
// BOT_* environment overrides, fills defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !strings.Contains(err.Error(), "no such file") {
				return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	v.SetDefault("database.path", "cityguide.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.session_ttl", 0)

	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.3)
	v.SetDefault("gemini.max_retries", 1)
	v.SetDefault("gemini.retry_delay_seconds", 2)

	v.SetDefault("rewards.review_balance", 10)
	v.SetDefault("rewards.review_reputation", 10)

	v.SetDefault("scheduler.tasks.summary_refresh.enabled", false)
	v.SetDefault("scheduler.tasks.summary_refresh.schedule", "0 0 4 * * *")
	v.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.sql_maintenance.schedule", "0 30 4 * * 0")

	v.SetDefault("messages.welcome_back", "Welcome back! What shall we do?")
	v.SetDefault("messages.registered", "Registration complete! Welcome to City Guide.")
	v.SetDefault("messages.not_registered", "You are not registered yet. Send /start to begin.")
	v.SetDefault("messages.no_city", "You have no city set. Register again with /start.")
	v.SetDefault("messages.main_menu", "Main menu:")
	v.SetDefault("messages.help",
		"City Guide helps you discover places, read honest reviews, and plan your time.\n\n"+
			"🔍 Find a place — browse top places by category\n"+
			"➕ Add a review — share your experience and earn requests\n"+
			"👤 Profile — your balance, reputation, and city\n"+
			"📚 Guides — curated city guides\n"+
			"🤖 AI assistant — personal recommendations\n\n"+
			"Send /start to return to the main menu at any time.")
	v.SetDefault("messages.out_of_search_requests",
		"You are out of requests! Write a review to earn 10 more.")
	v.SetDefault("messages.out_of_ai_requests",
		"❌ You are out of AI assistant requests.\n\n"+
			"Leave a review via '➕ Add a review' to earn 10 more requests.")
	v.SetDefault("messages.review_published", "Thank you! Your review is published. You earned 10 requests.")
	v.SetDefault("messages.review_rejected", "The review looks like spam, so it was not published.")
	v.SetDefault("messages.generic_error", "Something went wrong. Please try again.")
}
