package learner_test

import (
	"testing"

	"github.com/jroosing/dnsverdict/internal/classifier"
	"github.com/jroosing/dnsverdict/internal/learner"
	"github.com/jroosing/dnsverdict/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotStore struct {
	sigs []model.Signature
}

func (f *fakeSnapshotStore) LoadSignatures() ([]model.Signature, error) { return f.sigs, nil }
func (f *fakeSnapshotStore) SaveSignatures(sigs []model.Signature) error {
	f.sigs = sigs
	return nil
}

func TestLearner_ObservesReasoningVerdicts(t *testing.T) {
	store := classifier.NewSignatureStore()
	l := learner.New(store, nil, nil, nil)

	l.Observe(model.Verdict{
		Source:       model.SourceReasoning,
		Category:     model.CategoryMalware,
		Risk:         model.RiskHigh,
		UpstreamMeta: &model.UpstreamMeta{FilterReason: "Blocked by rule"},
	}, 0.95)

	assert.Equal(t, 1, store.Len())
}

func TestLearner_IgnoresLowConfidenceMetadata(t *testing.T) {
	store := classifier.NewSignatureStore()
	l := learner.New(store, nil, nil, nil)

	l.Observe(model.Verdict{Source: model.SourceMetadata, UpstreamMeta: &model.UpstreamMeta{FilterReason: "x"}}, 0.6)
	assert.Equal(t, 0, store.Len())
}

func TestLearner_AcceptsHighConfidenceMetadata(t *testing.T) {
	store := classifier.NewSignatureStore()
	l := learner.New(store, nil, nil, nil)

	l.Observe(model.Verdict{Source: model.SourceMetadata, UpstreamMeta: &model.UpstreamMeta{FilterReason: "x"}}, 0.95)
	assert.Equal(t, 1, store.Len())
}

func TestLearner_IgnoresHeuristicAndAnomalySources(t *testing.T) {
	store := classifier.NewSignatureStore()
	l := learner.New(store, nil, nil, nil)

	l.Observe(model.Verdict{Source: model.SourceHeuristic, UpstreamMeta: &model.UpstreamMeta{FilterReason: "x"}}, 1.0)
	l.Observe(model.Verdict{Source: model.SourceAnomaly, UpstreamMeta: &model.UpstreamMeta{FilterReason: "y"}}, 1.0)
	assert.Equal(t, 0, store.Len())
}

func TestLearner_SeedFallsBackToBaselineWhenNoSnapshot(t *testing.T) {
	store := classifier.NewSignatureStore()
	baseline := []model.Signature{{Key: model.SignatureKey{Reason: "seeded"}, Confidence: 0.8, Risk: model.RiskMedium}}
	snap := &fakeSnapshotStore{}
	l := learner.New(store, snap, baseline, nil)

	l.Seed()
	assert.Equal(t, 1, store.Len())
}

func TestLearner_SeedPrefersExistingSnapshot(t *testing.T) {
	store := classifier.NewSignatureStore()
	baseline := []model.Signature{{Key: model.SignatureKey{Reason: "seeded"}}}
	snap := &fakeSnapshotStore{sigs: []model.Signature{
		{Key: model.SignatureKey{Reason: "from-disk"}, Confidence: 0.9},
	}}
	l := learner.New(store, snap, baseline, nil)

	l.Seed()
	_, ok := store.Lookup(model.SignatureKey{Reason: "from-disk"})
	require.True(t, ok)
}

func TestLearner_StopFlushesSnapshot(t *testing.T) {
	store := classifier.NewSignatureStore()
	snap := &fakeSnapshotStore{}
	l := learner.New(store, snap, nil, nil)

	l.Observe(model.Verdict{Source: model.SourceReasoning, UpstreamMeta: &model.UpstreamMeta{FilterReason: "a"}}, 0.9)
	l.Start()
	l.Stop()

	assert.Len(t, snap.sigs, 1)
}
