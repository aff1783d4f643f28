package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jroosing/dnsverdict/internal/anomaly"
	"github.com/jroosing/dnsverdict/internal/api"
	"github.com/jroosing/dnsverdict/internal/api/handlers"
	"github.com/jroosing/dnsverdict/internal/cache"
	"github.com/jroosing/dnsverdict/internal/classifier"
	"github.com/jroosing/dnsverdict/internal/config"
	"github.com/jroosing/dnsverdict/internal/dedup"
	"github.com/jroosing/dnsverdict/internal/heuristics"
	"github.com/jroosing/dnsverdict/internal/learner"
	"github.com/jroosing/dnsverdict/internal/ledger"
	"github.com/jroosing/dnsverdict/internal/logging"
	"github.com/jroosing/dnsverdict/internal/model"
	"github.com/jroosing/dnsverdict/internal/orchestrator"
	"github.com/jroosing/dnsverdict/internal/reasoning"
	"github.com/jroosing/dnsverdict/internal/store"
	"github.com/jroosing/dnsverdict/internal/telemetry"
	"github.com/jroosing/dnsverdict/internal/upstream"
	"github.com/jroosing/dnsverdict/internal/verdictbus"
	"github.com/redis/go-redis/v9"
)

// DefaultDatabasePath is the default location for the sqlite file backing
// the disk cache tier, signature snapshot, and ledger sink.
const DefaultDatabasePath = "dnsverdict.db"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath   string
	dbPath       string
	host         string
	port         int
	pollInterval string
	workers      int
	jsonLogs     bool
	debug        bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&f.dbPath, "db", DefaultDatabasePath, "Path to SQLite database file")
	flag.StringVar(&f.host, "host", "", "Override API bind host")
	flag.IntVar(&f.port, "port", 0, "Override API bind port")
	flag.StringVar(&f.pollInterval, "poll-interval", "", "Override upstream poll interval (e.g. 30s)")
	flag.IntVar(&f.workers, "workers", 0, "Override worker pool size")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.host != "" {
		cfg.API.Host = f.host
	}
	if f.port != 0 {
		cfg.API.Port = f.port
	}
	if f.pollInterval != "" {
		cfg.Poll.Interval = f.pollInterval
	}
	if f.workers > 0 {
		cfg.Worker.PoolSize = config.WorkerSetting{Mode: config.WorkersFixed, Value: f.workers}
	}
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCLIOverrides(cfg, flags)
	cfg.DBPath = cfg.Cache.DiskPath
	if flags.dbPath != DefaultDatabasePath {
		cfg.DBPath = flags.dbPath
	}

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}
	logger.Info("dnsverdict starting",
		"database", cfg.DBPath,
		"host", cfg.API.Host,
		"port", cfg.API.Port,
		"workers", cfg.Worker.PoolSize.String(),
		"reasoning_enabled", cfg.ReasoningEnabled(),
		"ledger_enabled", cfg.LedgerEnabled(),
	)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	memTTL := parseDurationOr(cfg.Cache.MemoryTTL, 5*time.Minute)
	diskTTL := parseDurationOr(cfg.Cache.DiskTTL, time.Hour)
	diskCache := store.NewDiskCache(db)
	verdictCache := cache.New(cfg.Cache.MemoryCapacity, memTTL, cache.WithDisk(diskCache, diskTTL))
	verdictCache.PurgeExpired() // compact leftover disk entries from the previous run
	verdictCache.Start()
	defer verdictCache.Stop()

	sigStore := classifier.NewSignatureStore()
	cls := classifier.New(sigStore)

	heur := heuristics.NewEngine()

	anom := anomaly.NewEngine()
	anom.Start()
	defer anom.Stop()

	rec := telemetry.New()

	buf := verdictbus.NewBuffer(verdictbus.DefaultBufferCapacity)

	var hubOpts []verdictbus.HubOption
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		hubOpts = append(hubOpts, verdictbus.WithRedis(rdb))
	}
	hub := verdictbus.NewHub(256, logger, hubOpts...)

	var reasoningClient *reasoning.Client
	var breaker *reasoning.Breaker
	if cfg.ReasoningEnabled() {
		breaker = reasoning.NewBreaker()
		reasoningClient = reasoning.NewClient(cfg.Reasoning.Endpoint, cfg.Reasoning.APIKey, breaker)
	}

	var ledgerSink *ledger.Ledger
	if cfg.LedgerEnabled() {
		ledgerSink = ledger.New(store.NewLedgerSink(db), logger)
	}

	snapshotStore := store.NewSignatureSnapshot(db)
	patternLearner := learner.New(sigStore, snapshotStore, baselineSignatures(), logger)
	patternLearner.Seed()
	patternLearner.Start()
	defer patternLearner.Stop()

	orch := orchestrator.New(orchestrator.Deps{
		Cache:      verdictCache,
		Classifier: cls,
		Heuristics: heur,
		Anomaly:    anom,
		Reasoning:  reasoningClient,
		Buffer:     buf,
		Hub:        hub,
		Ledger:     ledgerSink,
		Learner:    patternLearner,
		Telemetry:  rec,
		Logger:     logger,
	})

	workers := resolveWorkerCount(cfg.Worker.PoolSize)
	pool := orchestrator.NewPool(orch, workers, logger, rec)
	defer pool.Stop()

	deduplicator := dedup.New(cfg.Dedup.Window, verdictCache)

	poller := upstream.New(cfg.Upstream.URLs, cfg.Upstream.Username, cfg.Upstream.Password, logger)
	pollInterval := parseDurationOr(cfg.Poll.Interval, upstream.DefaultInterval)
	scheduler := upstream.NewScheduler(poller, pollInterval, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	scheduler.Start(ctx, func(_ context.Context, events []model.UpstreamEvent) {
		for _, ev := range events {
			if !deduplicator.Admit(ev.Domain) {
				continue
			}
			domain := ev.Domain
			meta := ev.Meta
			pool.SubmitPolled(domain, &meta, func(model.Verdict, error) {
				deduplicator.Complete(domain)
			})
		}
	})
	defer scheduler.Stop()

	// Periodic gauge sampling: queue saturation and breaker state change too
	// often to record per event, so they are read on a coarse ticker.
	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				st := pool.Stats()
				if st.ManualCap > 0 {
					rec.SetPoolSaturation("manual", float64(st.ManualDepth)/float64(st.ManualCap))
				}
				if st.PolledCap > 0 {
					rec.SetPoolSaturation("polled", float64(st.PolledDepth)/float64(st.PolledCap))
				}
				if breaker != nil {
					rec.SetBreakerState(int(breaker.State()))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	apiSrv := api.New(cfg, handlers.Deps{
		Pool:       pool,
		Buffer:     buf,
		Hub:        hub,
		Cache:      verdictCache,
		Classifier: cls,
		Heuristics: heur,
		Anomaly:    anom,
		Breaker:    breaker,
		Telemetry:  rec,
	}, logger)

	logger.Info("verdict HTTP surface starting", "addr", apiSrv.Addr())

	go func() {
		serveErr := apiSrv.ListenAndServe()
		if serveErr == nil || errors.Is(serveErr, http.ErrServerClosed) {
			return
		}
		logger.Error("API server error", "err", serveErr)
		cancel()
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "err", err)
	}

	if ledgerSink != nil {
		ledgerSink.Wait()
	}

	return nil
}

// resolveWorkerCount turns a WorkerSetting into a worker count: auto sizes
// from the CPU count, never below the orchestrator's own default.
func resolveWorkerCount(w config.WorkerSetting) int {
	if w.Mode == config.WorkersFixed && w.Value > 0 {
		return w.Value
	}
	if n := runtime.NumCPU(); n > orchestrator.DefaultWorkers {
		return n
	}
	return orchestrator.DefaultWorkers
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// baselineSignatures seeds the classifier's signature store when no on-disk
// snapshot exists yet, covering the filter reasons a stock sinkhole emits.
// The Pattern Learner refines these from observed Reasoning and
// high-confidence Metadata verdicts.
func baselineSignatures() []model.Signature {
	now := time.Now()
	baseline := []struct {
		reason   string
		category model.Category
		risk     model.Risk
		conf     float64
	}{
		{"FilteredBlackList", model.CategoryAdvertising, model.RiskMedium, 0.8},
		{"FilteredSafeBrowsing", model.CategoryMalware, model.RiskHigh, 0.85},
		{"FilteredParental", model.CategoryTracker, model.RiskMedium, 0.8},
		{"NotFilteredWhiteList", model.CategorySystem, model.RiskLow, 0.8},
	}
	out := make([]model.Signature, 0, len(baseline))
	for _, b := range baseline {
		out = append(out, model.Signature{
			Key:        model.SignatureKey{Reason: b.reason},
			Category:   b.category,
			Risk:       b.risk,
			Confidence: b.conf,
			Hits:       1,
			LastSeen:   now,
		})
	}
	return out
}
