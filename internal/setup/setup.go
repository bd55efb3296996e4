// Package setup performs the shared initialization for all binaries:
// configuration, logging, database, and Redis.
package setup

import (
	"context"
	"log"

	"github.com/veilbreaker/sheetgate/internal/database"
	"github.com/veilbreaker/sheetgate/internal/redis"
	"github.com/veilbreaker/sheetgate/internal/setup/config"
	"go.uber.org/zap"
)

// App contains the components shared by every binary.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	DB           database.Client
	RedisManager *redis.Manager
}

// InitializeApp loads configuration and connects the shared backends.
func InitializeApp(ctx context.Context) (*App, error) {
	cfg, configPath, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := NewLogger(&cfg.Debug)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded configuration", zap.String("path", configPath))

	db, err := database.NewConnection(ctx, &cfg.PostgreSQL, logger, true)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))

		return nil, err
	}

	redisManager := redis.NewManager(&cfg.Redis, logger)

	return &App{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		RedisManager: redisManager,
	}, nil
}

// Cleanup releases the shared backends.
func (a *App) Cleanup() {
	a.RedisManager.Close()

	if err := a.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	if err := a.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}
}
