package models

import "github.com/jroosing/dnsverdict/internal/cache"

// ThresholdsResponse reports the current values of the two adaptive
// thresholds maintained by the heuristics and anomaly engines.
type ThresholdsResponse struct {
	EntropyThreshold float64 `json:"entropy_threshold"`
	AnomalyThreshold float64 `json:"anomaly_threshold"`
}

// AnomalyEngineStats reports the Anomaly Engine's cold-start and sizing
// state for operator visibility.
type AnomalyEngineStats struct {
	SampleCount int  `json:"sample_count"`
	Fitted      bool `json:"fitted"`
}

// SystemStatsResponse is the payload for GET /api/stats/system:
// the autonomy_score diagnostic, decision counters, learned-pattern count,
// cache stats, anomaly engine stats, the adaptive thresholds currently in
// effect, and host resource stats for operator visibility.
type SystemStatsResponse struct {
	AutonomyScore      float64            `json:"autonomy_score"`
	LocalDecisions     int64              `json:"local_decisions"`
	CloudDecisions     int64              `json:"cloud_decisions"`
	TotalDecisions     int64              `json:"total_decisions"`
	LearnedPatterns    int                `json:"learned_patterns"`
	CacheStats         cache.Stats        `json:"cache_stats"`
	AnomalyEngineStats AnomalyEngineStats `json:"anomaly_engine_stats"`
	Thresholds         ThresholdsResponse `json:"thresholds"`
	BreakerState       string             `json:"reasoning_breaker_state"`
	PoolStats          PoolStatsResponse  `json:"worker_pool"`
	Uptime             string             `json:"uptime"`
	UptimeSeconds      int64              `json:"uptime_seconds"`
	CPU                CPUStats           `json:"cpu"`
	Memory             MemoryStats        `json:"memory"`
}

// CPUStats mirrors gopsutil's CPU sample, taken over a short window.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
}

// MemoryStats mirrors gopsutil's virtual memory sample.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// PoolStatsResponse reports the bounded worker pool's queue depths.
type PoolStatsResponse struct {
	ManualDepth int `json:"manual_depth"`
	ManualCap   int `json:"manual_cap"`
	PolledDepth int `json:"polled_depth"`
	PolledCap   int `json:"polled_cap"`
}
