package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func normalSample(domain string) Sample {
	return Sample{Domain: domain, Length: 10, Entropy: 3.0, DigitRatio: 0.0, VowelRatio: 0.4, TLDWeight: 1.0}
}

// variedSample jitters the normal feature ranges deterministically so the
// trees have real split points to work with.
func variedSample(i int) Sample {
	return Sample{
		Domain:     "a",
		Length:     float64(8 + i%6),
		Entropy:    2.8 + 0.02*float64(i%15),
		DigitRatio: 0.01 * float64(i%8),
		VowelRatio: 0.3 + 0.01*float64(i%10),
		TLDWeight:  1.0,
	}
}

func outlierSample(domain string) Sample {
	return Sample{Domain: domain, Length: 63, Entropy: 4.9, DigitRatio: 0.9, VowelRatio: 0.0, TLDWeight: 1.5}
}

func TestEngine_ColdStart_BeforeMinSamples(t *testing.T) {
	e := NewEngine()
	for i := 0; i < minSamples-1; i++ {
		e.absorb(normalSample("a"))
	}
	assert.Equal(t, 0.0, e.Score(normalSample("new")))
	assert.False(t, e.IsAnomaly(outlierSample("new")))
}

func TestEngine_FitIncremental_SynchronousWithoutStart(t *testing.T) {
	e := NewEngine()
	for i := 0; i < minSamples; i++ {
		e.FitIncremental(normalSample("a"))
	}
	// a forest should now be fit; scores should no longer be the cold-start zero.
	assert.NotNil(t, e.current.Load().forest)
}

func TestEngine_OutlierScoresLower(t *testing.T) {
	e := NewEngine()
	for i := 0; i < 300; i++ {
		e.absorb(variedSample(i))
	}
	normalScore := e.Score(variedSample(3))
	outlierScore := e.Score(outlierSample("c"))
	assert.Less(t, outlierScore, normalScore)
}

func TestEngine_ThresholdStaysClamped(t *testing.T) {
	e := NewEngine()
	for i := 0; i < 2000; i++ {
		e.absorb(variedSample(i))
	}
	th := e.Threshold()
	assert.GreaterOrEqual(t, th, minAnomalyThreshold)
	assert.LessOrEqual(t, th, maxAnomalyThreshold)
}

func TestEngine_StartStop(t *testing.T) {
	e := NewEngine()
	e.Start()
	for i := 0; i < minSamples+5; i++ {
		e.FitIncremental(normalSample("a"))
	}
	e.Stop()
}
