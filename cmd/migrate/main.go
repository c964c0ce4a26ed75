package main

import (
	"github.com/tradelens/backend/internal/config"
	"github.com/tradelens/backend/internal/db"
	"github.com/tradelens/backend/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}
	logger.Initialize(logger.Options{Level: cfg.LogLevel})

	database, err := db.Open(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer database.Close()

	logger.Info("Running database migrations...", map[string]interface{}{"engine": database.Engine})
	if err := database.AutoMigrate(); err != nil {
		logger.Fatal("Migration failed", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("Database migrations completed successfully", nil)
}
