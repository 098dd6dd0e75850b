// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Config is everything the bot and historian read from the environment.
type Config struct {
	DiscordToken   string `env:"DISCORD_TOKEN"`
	DiscordGuildID string `env:"DISCORD_GUILD_ID"`

	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	HistorianQueue string `env:"HISTORIAN_QUEUE_NAME" envDefault:"beezo_actions"`
	DatabaseURL    string `env:"DATABASE_URL"`

	FeedAddr      string `env:"FEED_ADDR" envDefault:":8080"`
	FeedJWTSecret string `env:"FEED_JWT_SECRET"`
	FeedPublicURL string `env:"FEED_PUBLIC_URL"`

	TurnTimeout  time.Duration `env:"TURN_TIMEOUT" envDefault:"60s"`
	LobbyTimeout time.Duration `env:"LOBBY_TIMEOUT" envDefault:"0s"`
	RateCooldown time.Duration `env:"RATE_COOLDOWN" envDefault:"5s"`
	RateChances  int           `env:"RATE_CHANCES" envDefault:"3"`

	WordAssocDuration time.Duration `env:"WORDASSOC_DURATION" envDefault:"60s"`
	WordAssocWords    string        `env:"WORDASSOC_WORDS"`

	MathQuizRounds          int           `env:"MATHQUIZ_ROUNDS" envDefault:"5"`
	MathQuizQuestionTimeout time.Duration `env:"MATHQUIZ_QUESTION_TIMEOUT" envDefault:"30s"`

	HistorianBatchSize       int           `env:"HISTORIAN_BATCH_SIZE" envDefault:"100"`
	HistorianFlushMS         int           `env:"HISTORIAN_FLUSH_MS" envDefault:"500"`
	SessionInactivityTimeout time.Duration `env:"SESSION_INACTIVITY_TIMEOUT" envDefault:"10m"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings every binary depends on.
func (c Config) Validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"TURN_TIMEOUT":               c.TurnTimeout,
		"WORDASSOC_DURATION":         c.WordAssocDuration,
		"MATHQUIZ_QUESTION_TIMEOUT":  c.MathQuizQuestionTimeout,
		"SESSION_INACTIVITY_TIMEOUT": c.SessionInactivityTimeout,
	}
	for key, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}
	if c.LobbyTimeout < 0 || c.RateCooldown < 0 {
		errs = append(errs, errors.New("LOBBY_TIMEOUT and RATE_COOLDOWN cannot be negative"))
	}
	if c.RateChances < 0 {
		errs = append(errs, fmt.Errorf("RATE_CHANCES cannot be negative, got %d", c.RateChances))
	}
	if c.MathQuizRounds < 1 {
		errs = append(errs, fmt.Errorf("MATHQUIZ_ROUNDS must be at least 1, got %d", c.MathQuizRounds))
	}
	if c.HistorianBatchSize < 1 || c.HistorianFlushMS < 1 {
		errs = append(errs, errors.New("HISTORIAN_BATCH_SIZE and HISTORIAN_FLUSH_MS must be at least 1"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// ValidateBot adds the checks only the chat bot needs.
func (c Config) ValidateBot() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}
	return nil
}

// FlushInterval is HISTORIAN_FLUSH_MS as a duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.HistorianFlushMS) * time.Millisecond
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
