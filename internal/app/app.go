// Package app assembles the chatbot stack from configuration. Both binaries
// share it so the HTTP API and the Telegram bridge behave identically.
package app

import (
	"fmt"

	"github.com/samueelperez/tricyclecrm-sub003/internal/assistant"
	"github.com/samueelperez/tricyclecrm-sub003/internal/chat"
	"github.com/samueelperez/tricyclecrm-sub003/internal/fallback"
	"github.com/samueelperez/tricyclecrm-sub003/internal/router"
	"github.com/samueelperez/tricyclecrm-sub003/internal/storage"
	"github.com/samueelperez/tricyclecrm-sub003/pkg/config"
	"go.uber.org/zap"
)

type App struct {
	Store               storage.Storage
	Manager             *chat.Manager
	AssistantConfigured bool
}

func (a *App) Close() error {
	return a.Store.Close()
}

// NewLogger returns the production logger unless development logging is enabled.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func OpenStorage(cfg config.DatabaseConfig, logger *zap.Logger) (storage.Storage, error) {
	if cfg.UseInMemory {
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}

	logger.Info("Using PostgreSQL storage",
		zap.String("host", cfg.Host),
		zap.String("dbname", cfg.DBName))
	store, err := storage.NewPostgresStorage(storage.DatabaseConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// New wires storage, both response paths, the router and the session manager.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := OpenStorage(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return NewWithStorage(cfg.OpenAI, store, logger), nil
}

func NewWithStorage(cfg config.OpenAIConfig, store storage.Storage, logger *zap.Logger) *App {
	client := assistant.NewOpenAIClient(cfg)
	responder := fallback.NewResponder(client, cfg.Model, cfg.MaxTokens, cfg.Temperature, logger)

	configured := cfg.IsAssistantConfigured()
	var threads router.ThreadResponder
	if configured {
		threads = assistant.NewClient(client, cfg.AssistantID, assistant.PollPolicy{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.MaxPollAttempts,
		}, logger)
	} else {
		logger.Warn("Assistant not configured, assistant mode will use the fallback responder")
	}

	r := router.New(cfg, threads, responder, logger)
	return &App{
		Store:               store,
		Manager:             chat.NewManager(store, r, logger),
		AssistantConfigured: configured,
	}
}
