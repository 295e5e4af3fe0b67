package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"promo-engine/internal/shared/middleware"
	"promo-engine/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheckHandler(c))

		setupPromotionRoutes(v1, c)
		setupAdminRoutes(v1, c)
	}

	return router
}

// Storefront-facing endpoints. No auth: the validator treats the payload as
// untrusted regardless.
func setupPromotionRoutes(v1 *gin.RouterGroup, c *container.Container) {
	promotions := v1.Group("/promotions")
	{
		promotions.POST("/evaluate", c.PublicHandler.Evaluate)
		promotions.POST("/usage", c.PublicHandler.RecordUsage)
	}
}

func setupAdminRoutes(v1 *gin.RouterGroup, c *container.Container) {
	admin := v1.Group("/admin/promotions")
	admin.Use(middleware.AuthMiddleware(c.JWTManager), middleware.AdminMiddleware())
	{
		admin.POST("", c.AdminHandler.Create)
		admin.GET("", c.AdminHandler.List)
		admin.GET("/health", c.AdminHandler.Health)
		admin.GET("/status-updates", c.AdminHandler.StatusUpdates)
		admin.POST("/sweep", c.AdminHandler.RunSweep)

		admin.GET("/:id", c.AdminHandler.Get)
		admin.PUT("/:id", c.AdminHandler.Update)
		admin.DELETE("/:id", c.AdminHandler.Delete)
		admin.PUT("/:id/rules", c.AdminHandler.ReplaceRules)

		admin.POST("/:id/activate", c.AdminHandler.Activate)
		admin.POST("/:id/deactivate", c.AdminHandler.Deactivate)
		admin.POST("/:id/pause", c.AdminHandler.Pause)
		admin.POST("/:id/resume", c.AdminHandler.Resume)
	}
}

func healthCheckHandler(c *container.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		dbStatus := "up"
		if err := c.DB.HealthCheck(checkCtx); err != nil {
			dbStatus = "down"
			status = http.StatusServiceUnavailable
		}

		cacheStatus := "up"
		if err := c.Cache.Ping(checkCtx); err != nil {
			cacheStatus = "down"
		}

		ctx.JSON(status, gin.H{
			"status":    dbStatus,
			"database":  dbStatus,
			"cache":     cacheStatus,
			"scheduler": c.Scheduler.IsRunning(),
			"monitor":   c.Monitor.IsActive(),
			"version":   c.Config.App.Version,
		})
	}
}
