// Package config provides configuration loading and validation for the
// verdict service.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/dnsverdict/main.go)
//  2. Environment variables (DNSVERDICT_* prefix)
//  3. YAML config file (if specified with -config)
//  4. Hardcoded defaults
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DNSVERDICT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures every tunable's default value.
func setDefaults(v *viper.Viper) {
	// Poller
	v.SetDefault("poll.interval", "30s")
	v.SetDefault("poll.batch_limit", 100)
	v.SetDefault("poll.timeout", "10s")

	// Upstream log API
	v.SetDefault("upstream.urls", []string{})
	v.SetDefault("upstream.username", "")
	v.SetDefault("upstream.password", "")

	// Reasoning client
	v.SetDefault("reasoning.endpoint", "")
	v.SetDefault("reasoning.api_key", "")

	// Ledger sink
	v.SetDefault("ledger.id", "")
	v.SetDefault("ledger.credentials", "")

	// Verdict cache
	v.SetDefault("cache.memory_capacity", 5000)
	v.SetDefault("cache.memory_ttl", "5m")
	v.SetDefault("cache.disk_path", "dnsverdict.db")
	v.SetDefault("cache.disk_ttl", "1h")

	// Deduplicator
	v.SetDefault("dedup.window", 5000)

	// Worker pool
	v.SetDefault("worker.pool_size", "8")

	// Logging (ambient stack)
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// Verdict HTTP surface
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.api_key", "")

	// Optional cross-process push fanout
	v.SetDefault("redis.addr", "")
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadPollConfig(v, cfg)
	loadUpstreamConfig(v, cfg)
	loadReasoningConfig(v, cfg)
	loadLedgerConfig(v, cfg)
	loadCacheConfig(v, cfg)
	loadDedupConfig(v, cfg)
	loadWorkerConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadAPIConfig(v, cfg)
	loadRedisConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadPollConfig(v *viper.Viper, cfg *Config) {
	cfg.Poll.Interval = v.GetString("poll.interval")
	cfg.Poll.BatchLimit = v.GetInt("poll.batch_limit")
	cfg.Poll.Timeout = v.GetString("poll.timeout")
}

func loadUpstreamConfig(v *viper.Viper, cfg *Config) {
	cfg.Upstream.URLs = getStringSliceOrSplit(v, "upstream.urls")
	cfg.Upstream.Username = v.GetString("upstream.username")
	cfg.Upstream.Password = v.GetString("upstream.password")
}

func loadReasoningConfig(v *viper.Viper, cfg *Config) {
	cfg.Reasoning.Endpoint = v.GetString("reasoning.endpoint")
	cfg.Reasoning.APIKey = v.GetString("reasoning.api_key")
}

func loadLedgerConfig(v *viper.Viper, cfg *Config) {
	cfg.Ledger.ID = v.GetString("ledger.id")
	cfg.Ledger.Credentials = v.GetString("ledger.credentials")
}

func loadCacheConfig(v *viper.Viper, cfg *Config) {
	cfg.Cache.MemoryCapacity = v.GetInt("cache.memory_capacity")
	cfg.Cache.MemoryTTL = v.GetString("cache.memory_ttl")
	cfg.Cache.DiskPath = v.GetString("cache.disk_path")
	cfg.Cache.DiskTTL = v.GetString("cache.disk_ttl")
}

func loadDedupConfig(v *viper.Viper, cfg *Config) {
	cfg.Dedup.Window = v.GetInt("dedup.window")
}

func loadWorkerConfig(v *viper.Viper, cfg *Config) {
	cfg.Worker.PoolSizeRaw = v.GetString("worker.pool_size")
	cfg.Worker.PoolSize = parseWorkers(cfg.Worker.PoolSizeRaw)
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadAPIConfig(v *viper.Viper, cfg *Config) {
	cfg.API.Host = v.GetString("api.host")
	cfg.API.Port = v.GetInt("api.port")
	cfg.API.APIKey = v.GetString("api.api_key")
}

func loadRedisConfig(v *viper.Viper, cfg *Config) {
	cfg.Redis.Addr = v.GetString("redis.addr")
}

// parseWorkers converts the worker.pool_size string to WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// getStringSliceOrSplit handles both YAML list values and comma-separated
// string values (the form environment variables arrive in).
func getStringSliceOrSplit(v *viper.Viper, key string) []string {
	raw := v.GetStringSlice(key)
	if len(raw) == 0 {
		if s := v.GetString(key); s != "" {
			raw = []string{s}
		}
	}

	var result []string
	for _, item := range raw {
		for _, p := range strings.Split(item, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
	}
	return result
}

// normalizeConfig validates and normalizes the configuration, and logs
// (via the returned warnings the caller should emit) which subsystems are
// disabled for lack of credentials. Validation failures here are startup
// errors (bad ports, bad durations); missing credentials are not, since the
// pipeline continues in degraded mode without them.
func normalizeConfig(cfg *Config) error {
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return errors.New("api.port must be 1..65535")
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}

	if cfg.Cache.MemoryCapacity <= 0 {
		cfg.Cache.MemoryCapacity = 5000
	}
	if cfg.Dedup.Window <= 0 {
		cfg.Dedup.Window = 5000
	}
	if cfg.Poll.BatchLimit <= 0 {
		cfg.Poll.BatchLimit = 100
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.Cache.DiskPath == "" {
		cfg.Cache.DiskPath = "dnsverdict.db"
	}

	return nil
}

// Warnings returns the set of "subsystem disabled" messages implied by the
// current configuration: any absent credential disables that subsystem and
// the pipeline continues with degraded capability. Logged once at startup by
// cmd/dnsverdict.
func (c *Config) Warnings() []string {
	var out []string
	if len(c.Upstream.URLs) == 0 {
		out = append(out, "no upstream.urls configured: poller disabled, only manual /analyze requests will be processed")
	}
	if !c.UpstreamAuthEnabled() {
		out = append(out, "no upstream.username configured: polling unauthenticated upstream endpoints")
	}
	if !c.ReasoningEnabled() {
		out = append(out, "no reasoning.api_key/endpoint configured: reasoning tier disabled, pipeline will fall back from the anomaly tier")
	}
	if !c.LedgerEnabled() {
		out = append(out, "no ledger.id configured: ledger sink disabled, verdicts will not be persisted externally")
	}
	if c.Redis.Addr == "" {
		out = append(out, "no redis.addr configured: push fanout is in-process only")
	}
	return out
}
