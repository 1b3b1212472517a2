package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/logaware/backend/internal/config"
	"github.com/logaware/backend/internal/controllers"
	"github.com/logaware/backend/internal/middleware"
	"github.com/logaware/backend/internal/services"
)

// Version is reported by the health check.
const Version = "1.0.0"

// SetupRoutes configures all application routes
func SetupRoutes(r *gin.Engine, batches *services.BatchService, cfg config.Config) {
	batchController := controllers.NewBatchController(batches)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   Version,
			"services": gin.H{
				"cache": gin.H{
					"status":  "ok",
					"batches": len(batches.List()),
				},
			},
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		b := api.Group("/batches")
		{
			b.POST("", batchController.UploadBatch)
			b.GET("", batchController.GetBatches)
			b.GET("/:id", batchController.GetBatch)
			b.GET("/:id/export", batchController.ExportBatch)
			b.GET("/:id/trend", batchController.GetTrend)
			b.GET("/:id/stats", batchController.GetStats)
			b.DELETE("/:id", batchController.DeleteBatch)
		}
	}
}

// NewRouter builds the engine with the standard middleware chain.
func NewRouter(batches *services.BatchService, cfg config.Config) *gin.Engine {
	// Create router without default middleware
	r := gin.New()

	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	r.MaxMultipartMemory = cfg.MaxUploadBytes
	r.Use(middleware.RequestLoggerMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.CORSOrigin))
	r.Use(gin.Recovery())

	SetupRoutes(r, batches, cfg)
	return r
}
