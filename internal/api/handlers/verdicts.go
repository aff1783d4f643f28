package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/dnsverdict/internal/api/models"
	"github.com/jroosing/dnsverdict/internal/helpers"
	"github.com/jroosing/dnsverdict/internal/reasoning"
	"github.com/jroosing/dnsverdict/internal/verdictbus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// analyzeTimeout bounds a manual request's time in the submit/wait path,
// slightly above the orchestrator's own per-domain budget so a queued
// request isn't cut off before the pipeline gets to run it.
const analyzeTimeout = 6 * time.Second

// History serves GET /history: the most-recent N committed Verdicts,
// most-recent first. N defaults to the buffer capacity.
func (h *Handler) History(c *gin.Context) {
	n := parseLimit(c, verdictbus.DefaultBufferCapacity)
	c.JSON(http.StatusOK, h.deps.Buffer.Recent(n))
}

// ManualHistory serves GET /manual-history: Verdicts whose source path
// included a manual request in the current session.
func (h *Handler) ManualHistory(c *gin.Context) {
	n := parseLimit(c, verdictbus.DefaultBufferCapacity)
	c.JSON(http.StatusOK, h.manualHistory.Recent(n))
}

// Analyze serves POST /analyze: a synchronous Verdict for one domain,
// bypassing the Poller but sharing every other pipeline component. This
// is the pipeline's one place where failures surface to a caller:
// validation becomes 4xx, everything else is absorbed upstream into a
// degraded 200 with source=Fallback.
func (h *Handler) Analyze(c *gin.Context) {
	var req models.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "domain is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), analyzeTimeout)
	defer cancel()

	// Validation is the only failure that surfaces here; a timed-out or
	// saturated submission comes back as a degraded source=Fallback verdict
	// with a 200, not an error.
	v, err := h.deps.Pool.SubmitManual(ctx, req.Domain, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid domain"})
		return
	}

	h.manualHistory.Append(v)
	c.JSON(http.StatusOK, v)
}

// SystemStats serves GET /api/stats/system: counters, the derived
// autonomy_score, learned-pattern count, cache/anomaly-engine stats, and the
// current adaptive thresholds.
func (h *Handler) SystemStats(c *gin.Context) {
	snap := h.deps.Telemetry.Snapshot()
	uptime := time.Since(h.startTime)

	resp := models.SystemStatsResponse{
		AutonomyScore:  snap.AutonomyScore(),
		LocalDecisions: snap.LocalDecisions,
		CloudDecisions: snap.CloudDecisions,
		TotalDecisions: snap.TotalDecisions,
		BreakerState:   reasoning.Closed.String(),
		Uptime:         uptime.Round(time.Second).String(),
		UptimeSeconds:  int64(uptime.Seconds()),
		CPU:            models.CPUStats{NumCPU: runtime.NumCPU()},
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		resp.Memory.TotalMB = float64(vmStat.Total) / 1024 / 1024
		resp.Memory.UsedMB = float64(vmStat.Used) / 1024 / 1024
		resp.Memory.UsedPercent = vmStat.UsedPercent
	}
	if pct, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pct) > 0 {
		resp.CPU.UsedPercent = pct[0]
	}

	if h.deps.Classifier != nil {
		resp.LearnedPatterns = h.deps.Classifier.LearnedPatternCount()
	}
	if h.deps.Cache != nil {
		resp.CacheStats = h.deps.Cache.GetStats()
	}
	if h.deps.Anomaly != nil {
		resp.AnomalyEngineStats = models.AnomalyEngineStats{
			SampleCount: h.deps.Anomaly.SampleCount(),
			Fitted:      h.deps.Anomaly.Fitted(),
		}
		resp.Thresholds.AnomalyThreshold = h.deps.Anomaly.Threshold()
	}
	if h.deps.Heuristics != nil {
		resp.Thresholds.EntropyThreshold = h.deps.Heuristics.Threshold()
	}
	if h.deps.Breaker != nil {
		resp.BreakerState = h.deps.Breaker.State().String()
	}
	if h.deps.Pool != nil {
		stats := h.deps.Pool.Stats()
		resp.PoolStats = models.PoolStatsResponse{
			ManualDepth: stats.ManualDepth, ManualCap: stats.ManualCap,
			PolledDepth: stats.PolledDepth, PolledCap: stats.PolledCap,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Stream serves the push channel: a single long-lived endpoint delivering
// committed Verdicts as server-sent events, in commit order, newest-last.
func (h *Handler) Stream(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "streaming not supported"})
		return
	}

	sub := h.deps.Hub.Subscribe()
	defer h.deps.Hub.Unsubscribe(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-sub.C():
			if !ok {
				return
			}
			payload, err := json.Marshal(v)
			if err != nil {
				continue
			}
			if _, err := c.Writer.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := c.Writer.Write(payload); err != nil {
				return
			}
			if _, err := c.Writer.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return helpers.ClampInt(n, 1, def)
}
