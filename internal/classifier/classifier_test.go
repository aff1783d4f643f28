package classifier_test

import (
	"testing"
	"time"

	"github.com/jroosing/dnsverdict/internal/classifier"
	"github.com/jroosing/dnsverdict/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_PrivacyKeywordAlwaysEscalates(t *testing.T) {
	c := classifier.New(classifier.NewSignatureStore())
	res, ok := c.Classify("geo.telemetry.example.com", model.UpstreamMeta{})
	require.True(t, ok)
	assert.True(t, res.Escalate)
	assert.Equal(t, model.CategoryPrivacy, res.Verdict.Category)
	assert.Equal(t, model.RiskHigh, res.Verdict.Risk)
	// Keyword priors are hardcoded, never learned over: they must never
	// clear the Pattern Learner's 0.9 confidence gate.
	assert.Zero(t, res.Verdict.Confidence)
}

func TestClassify_TrackerKeyword(t *testing.T) {
	c := classifier.New(classifier.NewSignatureStore())
	res, ok := c.Classify("pixel.ads.example.com", model.UpstreamMeta{})
	require.True(t, ok)
	assert.False(t, res.Escalate)
	assert.Equal(t, model.CategoryTracker, res.Verdict.Category)
	assert.Zero(t, res.Verdict.Confidence)
}

func TestClassify_LearnedSignatureBeatsTrackerKeyword(t *testing.T) {
	// The keyword priors carry zero confidence: a learned signature above
	// the threshold must win even when the name contains a tracker keyword,
	// so its real confidence reaches the Pattern Learner's gate.
	store := classifier.NewSignatureStore()
	store.Observe(model.SignatureKey{Reason: "Blocked by rule"}, model.CategorySystem, model.RiskLow, 0.95, time.Now())

	c := classifier.New(store)
	res, ok := c.Classify("pixel.ads.example.com", model.UpstreamMeta{FilterReason: "Blocked by rule"})
	require.True(t, ok)
	assert.False(t, res.Escalate)
	assert.Equal(t, model.CategorySystem, res.Verdict.Category)
	assert.InDelta(t, 0.95, res.Verdict.Confidence, 1e-9)
}

func TestClassify_PrivacyKeywordEscalatesOverConfidentSignature(t *testing.T) {
	store := classifier.NewSignatureStore()
	store.Observe(model.SignatureKey{Reason: "Blocked by rule"}, model.CategoryTracker, model.RiskMedium, 0.95, time.Now())

	c := classifier.New(store)
	res, ok := c.Classify("geo-ping.example.com", model.UpstreamMeta{FilterReason: "Blocked by rule"})
	require.True(t, ok)
	assert.True(t, res.Escalate)
	assert.Equal(t, model.CategoryPrivacy, res.Verdict.Category)
	assert.False(t, res.Verdict.Risk.Less(model.RiskHigh))
}

func TestClassify_InconclusiveWithoutSignatureOrKeyword(t *testing.T) {
	c := classifier.New(classifier.NewSignatureStore())
	_, ok := c.Classify("plainsite.com", model.UpstreamMeta{FilterReason: "NotFilteredNotFound"})
	assert.False(t, ok)
}

func TestClassify_SignatureMatchAboveThreshold(t *testing.T) {
	store := classifier.NewSignatureStore()
	store.Observe(model.SignatureKey{Reason: "Blocked by rule"}, model.CategoryMalware, model.RiskHigh, 0.9, time.Now())

	c := classifier.New(store)
	res, ok := c.Classify("plainsite.com", model.UpstreamMeta{FilterReason: "Blocked by rule"})
	require.True(t, ok)
	assert.Equal(t, model.CategoryMalware, res.Verdict.Category)
	assert.Equal(t, model.SourceMetadata, res.Verdict.Source)
	assert.InDelta(t, 0.9, res.Verdict.Confidence, 1e-9)
}

func TestClassify_SignatureBelowThresholdIsInconclusive(t *testing.T) {
	store := classifier.NewSignatureStore()
	store.Observe(model.SignatureKey{Reason: "Blocked by rule"}, model.CategoryMalware, model.RiskHigh, 0.5, time.Now())

	c := classifier.New(store)
	_, ok := c.Classify("plainsite.com", model.UpstreamMeta{FilterReason: "Blocked by rule"})
	assert.False(t, ok)
}

func TestClassify_MoreSpecificKeyWins(t *testing.T) {
	store := classifier.NewSignatureStore()
	store.Observe(model.SignatureKey{Reason: "Blocked by rule"}, model.CategoryUnknown, model.RiskLow, 0.8, time.Now())
	store.Observe(model.SignatureKey{Reason: "Blocked by rule", FilterID: "f1", RulePrefix: "rule", ClientClass: "c1"},
		model.CategoryMalware, model.RiskCritical, 0.95, time.Now())

	c := classifier.New(store)
	res, ok := c.Classify("plainsite.com", model.UpstreamMeta{FilterReason: "Blocked by rule", FilterID: "f1", FilterRule: "rule", Client: "c1"})
	require.True(t, ok)
	assert.Equal(t, model.RiskCritical, res.Verdict.Risk)
}

func TestSignatureStore_ObserveBlendsConfidence(t *testing.T) {
	store := classifier.NewSignatureStore()
	key := model.SignatureKey{Reason: "x"}
	store.Observe(key, model.CategoryMalware, model.RiskHigh, 1.0, time.Now())
	store.Observe(key, model.CategoryMalware, model.RiskHigh, 0.5, time.Now())

	sig, ok := store.Lookup(key)
	require.True(t, ok)
	assert.InDelta(t, 0.9, sig.Confidence, 1e-9)
	assert.Equal(t, 2, sig.Hits)
}

func TestSignatureStore_SnapshotRoundTrip(t *testing.T) {
	store := classifier.NewSignatureStore()
	store.Observe(model.SignatureKey{Reason: "x"}, model.CategoryMalware, model.RiskHigh, 0.9, time.Now())

	snap := store.Snapshot()
	require.Len(t, snap, 1)

	restored := classifier.NewSignatureStore()
	restored.LoadSnapshot(snap)
	assert.Equal(t, 1, restored.Len())
}
