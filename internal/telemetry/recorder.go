// Package telemetry exposes Prometheus counters and gauges for the analysis
// pipeline: tier routing, cache hit/miss, worker pool saturation, and
// reasoning circuit breaker state. It is separate from the /api/stats/system
// JSON surface (internal/api) — this package feeds /metrics, which a
// scraper rather than an operator is expected to consume.
//
// Recorder is safe to call from any goroutine. A nil *Recorder is valid and
// every method on it is a no-op, so callers may wire telemetry optionally
// without guarding every call site.
package telemetry

import (
	"net/http"
	"sync/atomic"

	"github.com/jroosing/dnsverdict/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder aggregates pipeline telemetry. Construct with New; the zero value
// is not usable, but a nil *Recorder is (every method guards against it).
type Recorder struct {
	registry *prometheus.Registry

	decisionsTotal *prometheus.CounterVec
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	poolDrops      *prometheus.CounterVec
	poolSaturation *prometheus.GaugeVec
	breakerState   prometheus.Gauge

	localDecisions atomic.Int64
	cloudDecisions atomic.Int64
	totalDecisions atomic.Int64
}

// New returns a Recorder registered against its own Prometheus registry, so
// that repeated calls in tests don't collide with the global default
// registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dnsverdict_decisions_total",
			Help: "Total verdicts committed, labeled by the tier that produced them.",
		}, []string{"source"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dnsverdict_cache_hits_total",
			Help: "Total Analyze calls served from the verdict cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dnsverdict_cache_misses_total",
			Help: "Total Analyze calls that missed the verdict cache.",
		}),
		poolDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dnsverdict_pool_drops_total",
			Help: "Total domains dropped because a worker pool queue was full.",
		}, []string{"queue"}),
		poolSaturation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dnsverdict_pool_saturation_ratio",
			Help: "Worker pool queue depth divided by its capacity, sampled periodically.",
		}, []string{"queue"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnsverdict_reasoning_breaker_state",
			Help: "Reasoning circuit breaker state: 0=Closed, 1=Open, 2=HalfOpen.",
		}),
	}

	reg.MustRegister(r.decisionsTotal, r.cacheHits, r.cacheMisses, r.poolDrops, r.poolSaturation, r.breakerState)
	return r
}

// RecordDecision accounts a committed Verdict by its Source, and updates the
// local/cloud/total counters backing the autonomy_score derived field:
// every source except Reasoning is a "local" decision.
func (r *Recorder) RecordDecision(source model.Source) {
	if r == nil {
		return
	}
	r.decisionsTotal.WithLabelValues(source.String()).Inc()
	r.totalDecisions.Add(1)
	if source == model.SourceReasoning {
		r.cloudDecisions.Add(1)
	} else {
		r.localDecisions.Add(1)
	}
}

// RecordCacheHit records an Analyze call served from the cache.
func (r *Recorder) RecordCacheHit() {
	if r == nil {
		return
	}
	r.cacheHits.Inc()
}

// RecordCacheMiss records an Analyze call that missed the cache.
func (r *Recorder) RecordCacheMiss() {
	if r == nil {
		return
	}
	r.cacheMisses.Inc()
}

// RecordPoolDrop records a domain dropped because the named queue
// ("manual" or "polled") was full.
func (r *Recorder) RecordPoolDrop(queue string) {
	if r == nil {
		return
	}
	r.poolDrops.WithLabelValues(queue).Inc()
}

// SetPoolSaturation sets the named queue's current depth/capacity ratio.
// Intended to be sampled on a ticker by the service wiring, not on every
// submission.
func (r *Recorder) SetPoolSaturation(queue string, ratio float64) {
	if r == nil {
		return
	}
	r.poolSaturation.WithLabelValues(queue).Set(ratio)
}

// SetBreakerState records the reasoning circuit breaker's current state.
func (r *Recorder) SetBreakerState(state int) {
	if r == nil {
		return
	}
	r.breakerState.Set(float64(state))
}

// Handler returns the /metrics HTTP handler for this Recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Snapshot is a point-in-time read of the decision counters, consumed by
// the /api/stats/system handler to compute autonomy_score.
type Snapshot struct {
	LocalDecisions int64
	CloudDecisions int64
	TotalDecisions int64
}

// AutonomyScore returns the fraction of decisions resolved without the
// reasoning tier, in [0, 1]. Returns 1 when no decisions have been made yet
// (an idle service is, vacuously, fully autonomous).
func (s Snapshot) AutonomyScore() float64 {
	if s.TotalDecisions == 0 {
		return 1
	}
	return float64(s.LocalDecisions) / float64(s.TotalDecisions)
}

// Snapshot reads the current decision counters.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		LocalDecisions: r.localDecisions.Load(),
		CloudDecisions: r.cloudDecisions.Load(),
		TotalDecisions: r.totalDecisions.Load(),
	}
}
