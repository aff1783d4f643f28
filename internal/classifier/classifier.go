package classifier

import (
	"strings"

	"github.com/jroosing/dnsverdict/internal/model"
)

// DefaultThreshold is the minimum signature confidence required to
// short-circuit with a Metadata verdict.
const DefaultThreshold = 0.75

var privacyKeywords = []string{"geo", "location", "gps", "telemetry"}
var trackerKeywords = []string{"pixel", "metrics", "collect", "analytics", "ads", "doubleclick"}

// Result is the outcome of a Classify call.
type Result struct {
	Verdict model.Verdict
	// Escalate is set when a conclusive classification must still be routed
	// to Reasoning (privacy traffic is always explained), even though a
	// Verdict was produced.
	Escalate bool
}

// Classifier applies the Metadata Classifier rule set against a
// SignatureStore maintained by the Pattern Learner.
type Classifier struct {
	store     *SignatureStore
	threshold float64
}

// New returns a Classifier backed by store, using the default confidence
// threshold.
func New(store *SignatureStore) *Classifier {
	return &Classifier{store: store, threshold: DefaultThreshold}
}

// LearnedPatternCount reports how many signatures the Pattern Learner has
// written, for the /api/stats/system learned_patterns surface.
func (c *Classifier) LearnedPatternCount() int {
	return c.store.Len()
}

// Classify probes the signature store at decreasing specificity, falling
// back to the hardcoded name-keyword priors only when no learned signature
// clears the confidence threshold: the keyword priors carry zero confidence,
// so they are the least-specific, lowest-confidence candidate, never an
// override of a learned match. ok=false means "inconclusive": the
// Orchestrator must fall through to the next tier.
func (c *Classifier) Classify(domain string, meta model.UpstreamMeta) (Result, bool) {
	kwVerdict, kwEscalate, kwOK := classifyKeywords(domain)

	sig, sigOK := c.probeSignatures(meta)
	if sigOK && sig.Confidence >= c.threshold {
		v := model.Verdict{
			Domain:     domain,
			Risk:       sig.Risk,
			Category:   sig.Category,
			Summary:    "matched learned signature",
			Source:     model.SourceMetadata,
			Confidence: sig.Confidence,
		}
		if kwOK && kwEscalate {
			// Privacy traffic is always explained, even when a confident
			// signature matched: surface it as Privacy at High or above and
			// route it on to Reasoning.
			v.Category = model.CategoryPrivacy
			if v.Risk.Less(model.RiskHigh) {
				v.Risk = model.RiskHigh
			}
			return Result{Verdict: v, Escalate: true}, true
		}
		return Result{Verdict: v}, true
	}

	if kwOK {
		return Result{Verdict: kwVerdict, Escalate: kwEscalate}, true
	}
	return Result{}, false
}

// probeSignatures tries keys at decreasing specificity: exact
// (reason,filter_id,rule_prefix,client) -> (reason,rule_prefix) ->
// (reason) and returns the highest-confidence match, ties broken by most
// recent LastSeen. Signatures are not filtered by age: an old signature
// competes on confidence like a recent one.
func (c *Classifier) probeSignatures(meta model.UpstreamMeta) (model.Signature, bool) {
	candidates := []model.SignatureKey{
		KeyFor(meta),
		{Reason: meta.FilterReason, RulePrefix: rulePrefix(meta.FilterRule)},
		{Reason: meta.FilterReason},
	}

	var best model.Signature
	found := false
	for _, key := range candidates {
		sig, ok := c.store.Lookup(key)
		if !ok {
			continue
		}
		if !found || sig.Confidence > best.Confidence ||
			(sig.Confidence == best.Confidence && sig.LastSeen.After(best.LastSeen)) {
			best = sig
			found = true
		}
	}
	return best, found
}

// KeyFor builds the most-specific signature key for an upstream event. The
// Pattern Learner writes under this key; Classify probes it first.
func KeyFor(meta model.UpstreamMeta) model.SignatureKey {
	return model.SignatureKey{
		Reason:      meta.FilterReason,
		FilterID:    meta.FilterID,
		RulePrefix:  rulePrefix(meta.FilterRule),
		ClientClass: meta.Client,
	}
}

func rulePrefix(rule string) string {
	if idx := strings.IndexByte(rule, '|'); idx >= 0 {
		return rule[:idx]
	}
	return rule
}

// classifyKeywords applies the hardcoded name-keyword priors. Privacy
// keywords are always escalated to Reasoning even though conclusive.
// These priors are hardcoded and never learned over, so they carry
// Confidence 0 rather than a real signature confidence: a keyword match must
// never clear the Pattern Learner's 0.9 source=Metadata threshold.
func classifyKeywords(domain string) (model.Verdict, bool, bool) {
	lower := strings.ToLower(domain)

	for _, kw := range privacyKeywords {
		if strings.Contains(lower, kw) {
			return model.Verdict{
				Domain:     domain,
				Risk:       model.RiskHigh,
				Category:   model.CategoryPrivacy,
				Summary:    "privacy-sensitive keyword match",
				Source:     model.SourceMetadata,
				Confidence: 0,
			}, true, true
		}
	}
	for _, kw := range trackerKeywords {
		if strings.Contains(lower, kw) {
			return model.Verdict{
				Domain:     domain,
				Risk:       model.RiskMedium,
				Category:   model.CategoryTracker,
				Summary:    "tracker keyword match",
				Source:     model.SourceMetadata,
				Confidence: 0,
			}, false, true
		}
	}
	return model.Verdict{}, false, false
}
