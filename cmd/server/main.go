package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tradelens/backend/internal/config"
	"github.com/tradelens/backend/internal/db"
	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/middleware"
	"github.com/tradelens/backend/internal/routes"
	"github.com/tradelens/backend/internal/storage"
	"github.com/tradelens/backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	// Initialize logger first
	logger.Initialize(logger.Options{Level: cfg.LogLevel})

	database, err := db.Open(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer database.Close()

	if err := database.AutoMigrate(); err != nil {
		logger.Fatal("Failed to migrate database", map[string]interface{}{"error": err.Error()})
	}

	dbStore := store.NewDBStore(database)
	dbStore.BackupDir = cfg.BackupDir

	opts := routes.Options{Backuper: dbStore, BackupDir: cfg.BackupDir}
	if cfg.MinioEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		uploader, err := storage.NewMinio(ctx, cfg)
		cancel()
		if err != nil {
			logger.Warn("Object storage unavailable, backups stay local", map[string]interface{}{"error": err.Error()})
		} else {
			opts.Uploader = uploader
		}
	}

	// Setup graceful shutdown
	stopChan := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		logger.Warn("Received shutdown signal", nil)
		close(stopChan)
	}()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := routes.NewRouter(dbStore, opts)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: middleware.CORS(cfg.CORSOrigins, r),
	}

	logger.Info("Starting TradeLens store server", map[string]interface{}{
		"port":     cfg.Port,
		"engine":   database.Engine,
		"gin_mode": gin.Mode(),
	})

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	<-stopChan
	logger.Info("Shutting down server gracefully...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		logger.Info("Server exited gracefully", nil)
	}
}
