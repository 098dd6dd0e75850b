// cmd/historian/main.go drains the session action queue into PostgreSQL and marks idle sessions abandoned.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/beezo-bot/beezo/internal/cache"
	"github.com/beezo-bot/beezo/internal/config"
	"github.com/beezo-bot/beezo/internal/database"
	"github.com/beezo-bot/beezo/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		logrus.Fatal("DATABASE_URL is required")
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	svc := historian.New(rdb, historian.PGStore{Pool: pool}, historian.Config{
		QueueName:     cfg.HistorianQueue,
		BatchSize:     cfg.HistorianBatchSize,
		FlushInterval: cfg.FlushInterval(),
		Inactivity:    cfg.SessionInactivityTimeout,
	}, logger)
	svc.Run(ctx)
}
