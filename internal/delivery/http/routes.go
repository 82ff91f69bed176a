package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/snapp/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *slog.Logger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(MetricsMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		stores := v1.Group("/stores")
		{
			stores.GET("/product", handler.GetProduct)
			stores.GET("/search", handler.SearchStores)
		}

		v1.POST("/matching/similar", handler.FindSimilar)
		v1.POST("/recommendations/:userId", handler.GetRecommendations)
		v1.GET("/results/:detectionId/filters", handler.GetFilters)

		preferences := v1.Group("/preferences/:userId")
		{
			preferences.GET("", handler.GetPreferences)
			preferences.PUT("", handler.PutPreferences)
			preferences.POST("/detections/:detectionId", handler.LearnPreferences)
			preferences.POST("/favorites", handler.AddFavorite)
			preferences.POST("/views", handler.RecordView)
			preferences.POST("/searches", handler.LogSearch)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.POST("/alerts", handler.CreateAlert)
			notifications.PUT("/alerts/:alertId", handler.UpdateAlert)
			notifications.GET("/:userId", handler.ListNotifications)
			notifications.PUT("/:notificationId/read", handler.MarkNotificationRead)
		}
	}

	return router
}
