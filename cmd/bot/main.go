package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/samueelperez/tricyclecrm-sub003/internal/app"
	"github.com/samueelperez/tricyclecrm-sub003/internal/bot"
	"github.com/samueelperez/tricyclecrm-sub003/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}
	if cfg.Log.Development {
		if dev, err := app.NewLogger(cfg.Log); err == nil {
			logger = dev
		}
	}
	if cfg.Telegram.Token == "" {
		logger.Fatal("telegram.token is required")
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	b, err := bot.New(cfg.Telegram.Token, a.Manager, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.Start(ctx); err != nil {
		logger.Error("Bot error", zap.Error(err))
	}
}
