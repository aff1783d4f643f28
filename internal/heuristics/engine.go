package heuristics

import (
	"sort"
	"sync"

	"github.com/jroosing/dnsverdict/internal/helpers"
	"github.com/jroosing/dnsverdict/internal/model"
)

const (
	initialEntropyThreshold = 3.8
	minEntropyThreshold     = 3.0
	maxEntropyThreshold     = 4.5
	recalibrateEvery        = 500
	digitRatioGate          = 0.3
)

// Engine applies the fast statistical Verdict rule and recalibrates its
// entropy threshold to the 90th percentile of recently observed entropy
// values every recalibrateEvery domains, clamped to [3.0, 4.5].
type Engine struct {
	mu        sync.Mutex
	threshold float64
	window    []float64
	seen      int
}

// NewEngine returns an Engine with the threshold seeded at its initial value.
func NewEngine() *Engine {
	return &Engine{threshold: initialEntropyThreshold}
}

// Threshold returns the current entropy threshold.
func (e *Engine) Threshold() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threshold
}

// Classify computes features for name and applies the Verdict rule:
//
//   - entropy >= threshold AND digit_ratio >= 0.3 -> High/Malware, "DGA-like"
//   - entropy >= threshold alone -> Medium/Unknown
//   - otherwise -> inconclusive (ok=false)
//
// The observed entropy is folded into the recalibration window regardless of
// outcome.
func (e *Engine) Classify(name, tld string) (v model.Verdict, ok bool) {
	f := Compute(name, tld)
	threshold := e.observe(f.Entropy)

	if f.Entropy >= threshold && f.DigitRatio >= digitRatioGate {
		return model.Verdict{
			Risk:     model.RiskHigh,
			Category: model.CategoryMalware,
			Summary:  "DGA-like",
			Entropy:  f.Entropy,
			Source:   model.SourceHeuristic,
		}, true
	}
	if f.Entropy >= threshold {
		return model.Verdict{
			Risk:     model.RiskMedium,
			Category: model.CategoryUnknown,
			Summary:  "elevated entropy",
			Entropy:  f.Entropy,
			Source:   model.SourceHeuristic,
		}, true
	}
	return model.Verdict{Entropy: f.Entropy}, false
}

// observe folds an entropy sample into the recalibration window and returns
// the threshold to use for the sample just observed (the threshold in effect
// before this sample, so recalibration never affects its own trigger).
func (e *Engine) observe(entropy float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.threshold
	e.window = append(e.window, entropy)
	e.seen++

	if e.seen >= recalibrateEvery {
		e.recalibrateLocked()
		e.seen = 0
		e.window = e.window[:0]
	}
	return current
}

// recalibrateLocked sets the threshold to the 90th percentile of the
// accumulated window, clamped to [3.0, 4.5]. Caller must hold e.mu.
func (e *Engine) recalibrateLocked() {
	if len(e.window) == 0 {
		return
	}
	sorted := append([]float64(nil), e.window...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)-1) * 0.90)
	p90 := sorted[idx]
	e.threshold = helpers.ClampFloat64(p90, minEntropyThreshold, maxEntropyThreshold)
}
