package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/logaware/backend/internal/config"
	"github.com/logaware/backend/internal/logger"
	"github.com/logaware/backend/internal/routes"
	"github.com/logaware/backend/internal/services"
)

func main() {
	// Load environment variables
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logger.Initialize(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	// Setup graceful shutdown
	stopChan := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		logger.Warn("Received shutdown signal, draining requests...", nil)
		close(stopChan)
	}()

	// Set Gin mode
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Debug("Configuration loaded", map[string]interface{}{
		"max_records": cfg.MaxRecords,
		"sample_size": cfg.Detector.SampleSize,
		"max_depth":   cfg.Detector.MaxDepth,
		"seed":        cfg.Detector.Seed,
		"workers":     cfg.Detector.Workers,
		"log_file":    cfg.LogFile,
	})

	batchService := services.NewBatchService(cfg)
	r := routes.NewRouter(batchService, cfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting LogAware backend server", map[string]interface{}{
		"port":           cfg.Port,
		"gin_mode":       gin.Mode(),
		"policy":         cfg.Policy,
		"contamination":  cfg.Detector.Contamination.String(),
		"neighbors":      cfg.Detector.Neighbors,
		"trees":          cfg.Detector.Trees,
		"cache_size":     cfg.CacheSize,
		"max_upload":     cfg.MaxUploadBytes,
		"auth_enabled":   cfg.JWTSecret != "",
		"allowed_origin": cfg.CORSOrigin,
	})

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Wait for shutdown signal
	<-stopChan
	logger.Info("Shutting down server gracefully...", nil)

	// Create a context with timeout for graceful shutdown
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
