// Package config provides configuration loading for the verdict service
// using Viper. Configuration is loaded from an optional YAML file with
// automatic environment variable binding.
//
// Environment variables use the DNSVERDICT_ prefix and underscore-separated
// keys:
//   - DNSVERDICT_POLL_INTERVAL     -> poll.interval
//   - DNSVERDICT_UPSTREAM_URLS     -> upstream.urls (comma-separated)
//   - DNSVERDICT_REASONING_API_KEY -> reasoning.api_key
//
// Any absent credential (upstream basic auth, the reasoning API key, ledger
// credentials) disables that subsystem with a logged warning rather than
// failing startup.
package config

import (
	"os"
	"strconv"
	"strings"
)

// WorkersMode specifies how the worker pool size is determined.
type WorkersMode int

const (
	// WorkersAuto sizes the pool from runtime.NumCPU.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the worker_pool_size configuration knob.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// PollConfig controls the Poller/Scheduler. Only Interval reaches them;
// BatchLimit and Timeout are loaded, but the Poller uses its
// own built-in batch limit and request timeout.
type PollConfig struct {
	Interval   string `yaml:"interval"    mapstructure:"interval"`
	BatchLimit int    `yaml:"batch_limit" mapstructure:"batch_limit"`
	Timeout    string `yaml:"timeout"     mapstructure:"timeout"`
}

// UpstreamConfig controls the DNS-sinkhole log API the Poller consumes.
// URLs are tried in order (primary, host-gateway alternate, loopback, ...);
// absent credentials disable basic auth, not the poller.
type UpstreamConfig struct {
	URLs     []string `yaml:"urls"     mapstructure:"urls"     json:"urls"`
	Username string   `yaml:"username" mapstructure:"username" json:"-"`
	Password string   `yaml:"password" mapstructure:"password" json:"-"`
}

// ReasoningConfig controls the remote reasoning client. An
// empty APIKey disables the tier: the Orchestrator is built without a
// Client and treats the tier as permanently unavailable (always falls
// back).
type ReasoningConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string `yaml:"api_key"  mapstructure:"api_key"  json:"-"`
}

// LedgerConfig controls the append-only ledger sink. An empty ID
// disables ledger writes; the sink itself writes to the same sqlite file as
// the disk cache tier and signature snapshot (Config.DBPath).
type LedgerConfig struct {
	ID          string `yaml:"id"          mapstructure:"id"`
	Credentials string `yaml:"credentials" mapstructure:"credentials" json:"-"`
}

// CacheConfig controls the two-tier Verdict Cache.
type CacheConfig struct {
	MemoryCapacity int    `yaml:"memory_capacity" mapstructure:"memory_capacity"`
	MemoryTTL      string `yaml:"memory_ttl"      mapstructure:"memory_ttl"`
	DiskPath       string `yaml:"disk_path"       mapstructure:"disk_path"`
	DiskTTL        string `yaml:"disk_ttl"        mapstructure:"disk_ttl"`
}

// DedupConfig controls the Deduplicator's recently-seen window.
type DedupConfig struct {
	Window int `yaml:"window" mapstructure:"window"`
}

// WorkerConfig controls the bounded analysis worker pool.
type WorkerConfig struct {
	PoolSize    WorkerSetting `yaml:"-"         mapstructure:"-"`
	PoolSizeRaw string        `yaml:"pool_size" mapstructure:"pool_size"`
}

// LoggingConfig controls log level, format, and per-component overrides.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"`
}

// APIConfig controls the verdict HTTP surface.
type APIConfig struct {
	Host   string `yaml:"host"    mapstructure:"host"`
	Port   int    `yaml:"port"    mapstructure:"port"`
	APIKey string `yaml:"api_key" mapstructure:"api_key" json:"-"`
}

// RedisConfig controls the optional cross-process verdict fanout transport.
// An empty Addr leaves the push channel in-process-only.
type RedisConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// Config is the root configuration structure.
type Config struct {
	Poll      PollConfig      `yaml:"poll"      mapstructure:"poll"`
	Upstream  UpstreamConfig  `yaml:"upstream"  mapstructure:"upstream"`
	Reasoning ReasoningConfig `yaml:"reasoning" mapstructure:"reasoning"`
	Ledger    LedgerConfig    `yaml:"ledger"    mapstructure:"ledger"`
	Cache     CacheConfig     `yaml:"cache"     mapstructure:"cache"`
	Dedup     DedupConfig     `yaml:"dedup"     mapstructure:"dedup"`
	Worker    WorkerConfig    `yaml:"worker"    mapstructure:"worker"`
	Logging   LoggingConfig   `yaml:"logging"   mapstructure:"logging"`
	API       APIConfig       `yaml:"api"       mapstructure:"api"`
	Redis     RedisConfig     `yaml:"redis"     mapstructure:"redis"`

	// DBPath is the sqlite file backing the disk cache tier, the signature
	// snapshot, and the ledger sink. Not loaded by Load: cmd/dnsverdict sets
	// it from cache.disk_path, or from the -db flag when one is given.
	DBPath string `yaml:"-" mapstructure:"-"`
}

// ReasoningEnabled reports whether the reasoning tier has credentials.
func (c *Config) ReasoningEnabled() bool {
	return c.Reasoning.APIKey != "" && c.Reasoning.Endpoint != ""
}

// LedgerEnabled reports whether the ledger sink has an identity configured.
func (c *Config) LedgerEnabled() bool {
	return c.Ledger.ID != ""
}

// UpstreamAuthEnabled reports whether basic auth credentials are configured
// for the Poller.
func (c *Config) UpstreamAuthEnabled() bool {
	return c.Upstream.Username != ""
}

// ResolveConfigPath determines the config file path from flag or
// environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("DNSVERDICT_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from an optional YAML file with environment
// variable overrides.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (DNSVERDICT_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
