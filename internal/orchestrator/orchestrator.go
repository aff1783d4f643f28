// Package orchestrator sequences the analysis tiers: cache,
// metadata classifier, heuristic engine, anomaly engine, and the remote
// reasoning client, short-circuiting on the first sufficient verdict and
// committing the result to the cache, verdict buffer, subscribers, ledger,
// and pattern learner.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jroosing/dnsverdict/internal/anomaly"
	"github.com/jroosing/dnsverdict/internal/cache"
	"github.com/jroosing/dnsverdict/internal/classifier"
	"github.com/jroosing/dnsverdict/internal/fingerprint"
	"github.com/jroosing/dnsverdict/internal/heuristics"
	"github.com/jroosing/dnsverdict/internal/learner"
	"github.com/jroosing/dnsverdict/internal/ledger"
	"github.com/jroosing/dnsverdict/internal/model"
	"github.com/jroosing/dnsverdict/internal/reasoning"
	"github.com/jroosing/dnsverdict/internal/telemetry"
	"github.com/jroosing/dnsverdict/internal/verdictbus"
)

// DefaultDomainBudget is the global per-domain deadline.
const DefaultDomainBudget = 5 * time.Second

// ReasoningBudget is the timeout callReasoning sets on the reasoning call.
// That context is derived from the per-domain context, so the call still
// ends at the per-domain deadline: the reasoning tier gets at most what is
// left of DefaultDomainBudget, not the full ReasoningBudget.
const ReasoningBudget = 10 * time.Second

// Orchestrator wires together every analysis tier behind a per-domain
// state machine: Received -> MetaCheck -> Heuristic -> Anomaly -> Reasoning,
// terminating in Committed or Rejected.
type Orchestrator struct {
	cache      *cache.Cache
	classifier *classifier.Classifier
	heuristics *heuristics.Engine
	anomaly    *anomaly.Engine
	reasoning  *reasoning.Client
	buffer     *verdictbus.Buffer
	hub        *verdictbus.Hub
	ledger     *ledger.Ledger
	learner    *learner.Learner
	telemetry  *telemetry.Recorder

	logger *slog.Logger
}

// Deps bundles every collaborator an Orchestrator requires.
type Deps struct {
	Cache      *cache.Cache
	Classifier *classifier.Classifier
	Heuristics *heuristics.Engine
	Anomaly    *anomaly.Engine
	Reasoning  *reasoning.Client
	Buffer     *verdictbus.Buffer
	Hub        *verdictbus.Hub
	Ledger     *ledger.Ledger
	Learner    *learner.Learner
	Telemetry  *telemetry.Recorder
	Logger     *slog.Logger
}

// New returns an Orchestrator over the given dependencies.
func New(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Orchestrator{
		cache: d.Cache, classifier: d.Classifier, heuristics: d.Heuristics,
		anomaly: d.Anomaly, reasoning: d.Reasoning, buffer: d.Buffer, hub: d.Hub,
		ledger: d.Ledger, learner: d.Learner, telemetry: d.Telemetry, logger: d.Logger,
	}
}

// ErrInvalidDomain is returned by Analyze when the domain fails fingerprint
// validation; no Verdict is produced in this case.
var ErrInvalidDomain = errors.New("orchestrator: invalid domain")

// Analyze runs the full tiered pipeline for one domain: a cache hit commits
// immediately (Received -> Committed); a miss walks MetaCheck -> Heuristic ->
// Anomaly -> Reasoning. manual marks the request as
// originating from the ad-hoc /analyze endpoint rather than the Poller.
// Callers are responsible for Deduplicator admission/completion around this
// call — the in-flight bookkeeping lives there, not here.
// Every invocation produces exactly one Verdict or ErrInvalidDomain — never
// both, never neither.
func (o *Orchestrator) Analyze(ctx context.Context, rawDomain string, meta *model.UpstreamMeta, manual bool) (model.Verdict, error) {
	domain, err := fingerprint.Normalize(rawDomain)
	if err != nil {
		return model.Verdict{}, ErrInvalidDomain
	}

	if v, ok := o.cache.Lookup(domain); ok {
		o.telemetry.RecordCacheHit()
		v.Manual = manual
		v.Source = model.SourceCache
		o.commit(v)
		return v, nil
	}
	o.telemetry.RecordCacheMiss()

	ctx, cancel := context.WithTimeout(ctx, DefaultDomainBudget)
	defer cancel()

	v := o.runTiers(ctx, domain, meta)
	v.Manual = manual
	v.DecidedAt = time.Now().UTC()

	o.commit(v)
	return v, nil
}

// runTiers walks the tier state machine from MetaCheck through Reasoning,
// returning the first sufficient Verdict.
func (o *Orchestrator) runTiers(ctx context.Context, domain string, meta *model.UpstreamMeta) model.Verdict {
	upstreamMeta := model.UpstreamMeta{}
	if meta != nil {
		upstreamMeta = *meta
	}

	metaResult, metaOK := o.classifier.Classify(domain, upstreamMeta)
	if metaOK && !metaResult.Escalate {
		v := metaResult.Verdict
		v.Domain = domain
		v.UpstreamMeta = meta
		return v
	}

	tld := fingerprint.TLD(domain)
	heuristicVerdict, heuristicOK := o.heuristics.Classify(domain, tld)
	if heuristicOK && !metaResult.Escalate {
		heuristicVerdict.Domain = domain
		heuristicVerdict.UpstreamMeta = meta
		return heuristicVerdict
	}

	features := heuristics.Compute(domain, tld)
	sample := anomaly.Sample{
		Domain: domain, Length: float64(features.Length), Entropy: features.Entropy,
		DigitRatio: features.DigitRatio, VowelRatio: features.VowelRatio, TLDWeight: features.TLDWeight,
	}
	o.anomaly.FitIncremental(sample)
	isAnomalous := o.anomaly.IsAnomaly(sample)
	anomalyScore := o.anomaly.Score(sample)

	breakerOpen := o.reasoning == nil

	switch {
	case metaResult.Escalate, isAnomalous, heuristicOK:
		if !breakerOpen {
			hint := "possible DGA"
			if metaResult.Escalate {
				hint = "privacy escalation"
			} else if isAnomalous {
				hint = "anomaly escalation"
			}
			if v, err := o.callReasoning(ctx, domain, meta, features, anomalyScore, hint); err == nil {
				return v
			}
		}
		return o.fallback(domain, meta, metaResult, heuristicVerdict, heuristicOK, isAnomalous, anomalyScore, features.Entropy)
	default:
		if !breakerOpen {
			if v, err := o.callReasoning(ctx, domain, meta, features, anomalyScore, "inconclusive lower tiers"); err == nil {
				return v
			}
		}
		return model.Verdict{
			Domain: domain, Risk: model.RiskLow, Category: model.CategoryUnknown,
			Summary: "inconclusive across all tiers", Source: model.SourceFallback,
			Entropy: features.Entropy, AnomalyScore: anomalyScore, IsAnomaly: isAnomalous,
		}
	}
}

func (o *Orchestrator) callReasoning(ctx context.Context, domain string, meta *model.UpstreamMeta, features heuristics.Features, anomalyScore float64, hint string) (model.Verdict, error) {
	reqCtx := ctx
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < ReasoningBudget {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, ReasoningBudget)
			defer cancel()
		}
	}

	v, err := o.reasoning.Analyze(reqCtx, reasoning.Request{
		Domain: domain, Entropy: features.Entropy, DigitRatio: features.DigitRatio,
		AnomalyScore: anomalyScore, UpstreamMeta: meta,
	}, hint)
	if err != nil {
		return model.Verdict{}, err
	}
	v.Domain = domain
	v.UpstreamMeta = meta
	v.AnomalyScore = anomalyScore
	return v, nil
}

// fallback synthesizes a source=Fallback Verdict from the best lower-tier
// result. A privacy-escalate classification takes priority over the
// anomaly/heuristic/generic cases below: privacy traffic must surface as
// category=Privacy at High or above even when reasoning is unreachable, and
// the Metadata tier is the only one that already computed that.
func (o *Orchestrator) fallback(domain string, meta *model.UpstreamMeta, metaResult classifier.Result, heuristicVerdict model.Verdict, heuristicOK, isAnomalous bool, anomalyScore, entropy float64) model.Verdict {
	if metaResult.Escalate {
		v := metaResult.Verdict
		v.Domain = domain
		v.UpstreamMeta = meta
		v.Source = model.SourceFallback
		v.AnomalyScore = anomalyScore
		v.Entropy = entropy
		v.IsAnomaly = isAnomalous
		if v.Risk.Less(model.RiskHigh) {
			v.Risk = model.RiskHigh
		}
		v.Summary += " (reasoning unavailable, degraded mode)"
		return v
	}
	if isAnomalous {
		return model.Verdict{
			Domain: domain, Risk: model.RiskHigh, Category: "Zero-Day Suspect",
			Summary: "anomalous feature vector, reasoning unavailable", Source: model.SourceAnomaly,
			IsAnomaly: true, AnomalyScore: anomalyScore, Entropy: entropy, UpstreamMeta: meta,
		}
	}
	if heuristicOK {
		heuristicVerdict.Domain = domain
		heuristicVerdict.UpstreamMeta = meta
		heuristicVerdict.Summary += " (reasoning unavailable, degraded mode)"
		heuristicVerdict.Source = model.SourceFallback
		return heuristicVerdict
	}
	return model.Verdict{
		Domain: domain, Risk: model.RiskLow, Category: model.CategoryUnknown,
		Summary: "degraded mode: reasoning unavailable", Source: model.SourceFallback,
		AnomalyScore: anomalyScore, Entropy: entropy, UpstreamMeta: meta,
	}
}

// commit applies the Committed-state effects: cache store, buffer append,
// subscriber push, ledger write, pattern-learner observation.
func (o *Orchestrator) commit(v model.Verdict) {
	o.cache.Store(v.Domain, v)
	o.buffer.Append(v)
	if o.hub != nil {
		o.hub.Publish(v)
	}
	if o.ledger != nil {
		o.ledger.Append(v)
	}
	if o.learner != nil {
		o.learner.Observe(v, confidenceOf(v))
	}
	o.telemetry.RecordDecision(v.Source)
}

// confidenceOf derives the observed-confidence value the Pattern Learner
// gates on. Reasoning verdicts always count as fully confident; Metadata
// verdicts carry the classifier's own matched signature confidence (or 0 for
// a hardcoded keyword-prior match, which must never itself be learned over).
func confidenceOf(v model.Verdict) float64 {
	if v.Source == model.SourceReasoning {
		return 1.0
	}
	if v.Source == model.SourceMetadata {
		return v.Confidence
	}
	return 0
}
