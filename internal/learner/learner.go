// Package learner implements the Pattern Learner: it observes
// committed Verdicts and writes back learned signatures, snapshotting them to
// disk on a timer and on clean shutdown.
package learner

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jroosing/dnsverdict/internal/classifier"
	"github.com/jroosing/dnsverdict/internal/model"
)

const snapshotInterval = 60 * time.Second

// SignatureSnapshotStore persists and restores signature snapshots. Backed
// by internal/store in production.
type SignatureSnapshotStore interface {
	LoadSignatures() ([]model.Signature, error)
	SaveSignatures(sigs []model.Signature) error
}

// Learner observes committed verdicts and mutates a classifier.SignatureStore:
// Reasoning verdicts and high-confidence Metadata verdicts feed back into
// signatures. It is the sole writer of the store.
type Learner struct {
	store    *classifier.SignatureStore
	snapshot SignatureSnapshotStore
	baseline []model.Signature
	logger   *slog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New returns a Learner over store, persisting via snapshot. baseline seeds
// the store when no on-disk snapshot exists.
func New(store *classifier.SignatureStore, snapshot SignatureSnapshotStore, baseline []model.Signature, logger *slog.Logger) *Learner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Learner{
		store:    store,
		snapshot: snapshot,
		baseline: baseline,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Seed loads signatures from disk, falling back to the baseline set if no
// snapshot exists or it fails to load.
func (l *Learner) Seed() {
	if l.snapshot == nil {
		l.store.LoadSnapshot(l.baseline)
		return
	}
	sigs, err := l.snapshot.LoadSignatures()
	if err != nil || len(sigs) == 0 {
		l.logger.Info("no signature snapshot found, seeding baseline", "baseline_count", len(l.baseline))
		l.store.LoadSnapshot(l.baseline)
		return
	}
	l.store.LoadSnapshot(sigs)
}

// Observe applies the committed-verdict policy: only Verdicts with
// source=Reasoning, or source=Metadata with confidence >= 0.9, feed the
// signature store.
func (l *Learner) Observe(v model.Verdict, observedConfidence float64) {
	if !l.shouldLearn(v, observedConfidence) {
		return
	}
	meta := model.UpstreamMeta{}
	if v.UpstreamMeta != nil {
		meta = *v.UpstreamMeta
	}
	l.store.Observe(classifier.KeyFor(meta), v.Category, v.Risk, observedConfidence, time.Now())
}

func (l *Learner) shouldLearn(v model.Verdict, observedConfidence float64) bool {
	if v.Source == model.SourceReasoning {
		return true
	}
	return v.Source == model.SourceMetadata && observedConfidence >= 0.9
}

// Start launches the periodic snapshot timer.
func (l *Learner) Start() {
	l.wg.Add(1)
	go l.snapshotLoop()
}

// Stop halts the timer and performs a final flush.
func (l *Learner) Stop() {
	close(l.stopChan)
	l.wg.Wait()
	l.flush()
}

func (l *Learner) snapshotLoop() {
	defer l.wg.Done()
	t := time.NewTicker(snapshotInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.flush()
		case <-l.stopChan:
			return
		}
	}
}

func (l *Learner) flush() {
	if l.snapshot == nil {
		return
	}
	if err := l.snapshot.SaveSignatures(l.store.Snapshot()); err != nil {
		l.logger.Warn("failed to snapshot signatures", "error", err)
	}
}
