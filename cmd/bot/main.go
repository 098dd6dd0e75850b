// cmd/bot/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beezo-bot/beezo/internal/auth"
	"github.com/beezo-bot/beezo/internal/cache"
	"github.com/beezo-bot/beezo/internal/config"
	"github.com/beezo-bot/beezo/internal/discord"
	"github.com/beezo-bot/beezo/internal/game"
	"github.com/beezo-bot/beezo/internal/games/mathquiz"
	"github.com/beezo-bot/beezo/internal/games/uno"
	"github.com/beezo-bot/beezo/internal/games/wordassoc"
	"github.com/beezo-bot/beezo/internal/handlers"
	"github.com/beezo-bot/beezo/internal/middleware"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

const (
	feedTokenTTL    = time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err := cfg.ValidateBot(); err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := discord.New(cfg.DiscordToken, cfg.DiscordGuildID, logger.WithField("component", "discord"))
	if err != nil {
		logger.Fatalf("discord: %v", err)
	}

	hub := handlers.NewFeedHub()
	defaults := game.SessionOptions{
		Messenger: bot,
		Events:    bot,
		Observers: []game.Observer{hub},
		Logger:    logger.WithField("component", "game"),
	}
	if rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB); err != nil {
		logger.WithError(err).Warn("Redis unavailable; session history is disabled")
	} else {
		defer rdb.Close()
		defaults.History = cache.NewPublisher(rdb, cfg.HistorianQueue)
	}
	registry := game.NewRegistry(bot, defaults)

	games, err := gameConfig(cfg)
	if err != nil {
		logger.Fatalf("game config: %v", err)
	}
	signer := auth.NewSigner(cfg.FeedJWTSecret, feedTokenTTL)
	dispatcher := handlers.NewDispatcher(registry, bot, games, signer, logger.WithField("component", "commands"))

	if err := bot.Open(middleware.LogCommand(logger, dispatcher)); err != nil {
		logger.Fatalf("discord: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions", handlers.ListSessionsHandler(registry))
	mux.HandleFunc("GET /feed/ws/{channelID}", handlers.FeedWSHandler(logger, hub, signer))
	srv := &http.Server{
		Addr:              cfg.FeedAddr,
		Handler:           middleware.LogMiddleware(logger)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("Ops server running on %s", cfg.FeedAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("ops server exited")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	registry.Shutdown(shutdownCtx, game.ReasonShutdown)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("ops server shutdown")
	}
	if err := bot.Close(); err != nil {
		logger.WithError(err).Warn("discord close")
	}
}

func gameConfig(cfg config.Config) (handlers.GameConfig, error) {
	games := handlers.GameConfig{
		Uno: uno.Config{
			TurnTimeout:  cfg.TurnTimeout,
			LobbyTimeout: cfg.LobbyTimeout,
		},
		WordAssoc: wordassoc.Config{
			Duration:     cfg.WordAssocDuration,
			TurnTimeout:  cfg.TurnTimeout,
			LobbyTimeout: cfg.LobbyTimeout,
			Chances:      chances(cfg.RateChances),
			Cooldown:     cfg.RateCooldown,
		},
		MathQuiz: mathquiz.Config{
			Rounds:          cfg.MathQuizRounds,
			QuestionTimeout: cfg.MathQuizQuestionTimeout,
			Chances:         chances(cfg.RateChances),
			Cooldown:        cfg.RateCooldown,
		},
		FeedURL: cfg.FeedPublicURL,
	}
	if cfg.WordAssocWords != "" {
		words, err := wordassoc.LoadWords(cfg.WordAssocWords)
		if err != nil {
			return handlers.GameConfig{}, err
		}
		games.WordAssoc.Words = words
	}
	return games, nil
}

// chances maps RATE_CHANCES onto a game config, where zero means the default rather than off.
func chances(n int) int {
	if n == 0 {
		return game.NoChances
	}
	return n
}
