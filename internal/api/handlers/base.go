// Package handlers implements the verdict HTTP surface handlers:
// GET /history, GET /manual-history, POST /analyze, GET /api/stats/system,
// and the push-channel streaming endpoint.
package handlers

import (
	"log/slog"
	"time"

	"github.com/jroosing/dnsverdict/internal/anomaly"
	"github.com/jroosing/dnsverdict/internal/cache"
	"github.com/jroosing/dnsverdict/internal/classifier"
	"github.com/jroosing/dnsverdict/internal/heuristics"
	"github.com/jroosing/dnsverdict/internal/orchestrator"
	"github.com/jroosing/dnsverdict/internal/reasoning"
	"github.com/jroosing/dnsverdict/internal/telemetry"
	"github.com/jroosing/dnsverdict/internal/verdictbus"
)

// Deps bundles every collaborator a Handler needs to serve the verdict
// HTTP surface. All fields are optional except Pool, Buffer, and Hub: a nil
// Reasoning breaker, for instance, just reports BreakerState "Closed".
type Deps struct {
	Pool       *orchestrator.Pool
	Buffer     *verdictbus.Buffer
	Hub        *verdictbus.Hub
	Cache      *cache.Cache
	Classifier *classifier.Classifier
	Heuristics *heuristics.Engine
	Anomaly    *anomaly.Engine
	Breaker    *reasoning.Breaker
	Telemetry  *telemetry.Recorder
}

// Handler holds the dependencies backing every verdict-surface endpoint,
// plus the bounded manual-history buffer tracked for the lifetime of the
// current process.
type Handler struct {
	deps      Deps
	logger    *slog.Logger
	startTime time.Time

	manualHistory *verdictbus.Buffer
}

// New returns a Handler over deps.
func New(deps Deps, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		deps:          deps,
		logger:        logger,
		startTime:     time.Now(),
		manualHistory: verdictbus.NewBuffer(verdictbus.DefaultBufferCapacity),
	}
}
