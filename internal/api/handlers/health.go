package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/dnsverdict/internal/api/models"
)

// Health reports simple liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Metrics serves the Prometheus scrape endpoint backed by the telemetry
// Recorder, kept distinct from the JSON /api/stats/system surface: a
// scraper, not an operator, is expected to consume it.
func (h *Handler) Metrics(c *gin.Context) {
	if h.deps.Telemetry == nil {
		c.Status(http.StatusNotFound)
		return
	}
	h.deps.Telemetry.Handler().ServeHTTP(c.Writer, c.Request)
}
