package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jroosing/dnsverdict/internal/api/handlers"
	"github.com/jroosing/dnsverdict/internal/api/middleware"
	"github.com/jroosing/dnsverdict/internal/config"
)

// RegisterRoutes wires the verdict HTTP surface.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", h.Metrics)

	group := r.Group("/")
	if cfg != nil && cfg.API.APIKey != "" {
		group.Use(middleware.RequireAPIKey(cfg.API.APIKey))
	}

	group.GET("/history", h.History)
	group.GET("/manual-history", h.ManualHistory)
	group.POST("/analyze", h.Analyze)
	group.GET("/stream", h.Stream)

	apiGroup := group.Group("/api")
	apiGroup.GET("/stats/system", h.SystemStats)
}
