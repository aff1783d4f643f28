package anomaly

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jroosing/dnsverdict/internal/helpers"
)

const (
	// minSamples is the cold-start floor: Score/IsAnomaly report (0.0, false)
	// until the ring buffer has accumulated at least this many observations.
	minSamples = 10

	defaultBufferCapacity = 10000
	refitGeometricCap     = 1000

	initialAnomalyThreshold = -0.1
	minAnomalyThreshold     = -0.3
	maxAnomalyThreshold     = 0.0
	thresholdPercentile     = 0.05

	incomingQueueSize = 1024
)

// snapshot is the immutable state read by Score/IsAnomaly: a fit forest
// paired with the threshold it was recalibrated against.
type snapshot struct {
	forest    *forest
	threshold float64
}

// Engine is the incremental anomaly detector: samples are folded into a
// ring buffer by a dedicated background goroutine, which
// periodically refits an isolation-forest-style model and atomically
// publishes a new snapshot. Score and IsAnomaly read the published snapshot
// without blocking on an in-progress fit.
type Engine struct {
	buffer *ringBuffer
	rng    *rand.Rand

	incoming chan Sample
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool

	current atomic.Pointer[snapshot]

	mu          sync.Mutex
	totalSeen   int
	nextRefitAt int
}

// NewEngine returns an Engine seeded with the default threshold and an empty
// history. Call Start to launch the background updater goroutine.
func NewEngine() *Engine {
	e := &Engine{
		buffer:      newRingBuffer(defaultBufferCapacity),
		rng:         rand.New(rand.NewSource(1)),
		incoming:    make(chan Sample, incomingQueueSize),
		stopChan:    make(chan struct{}),
		nextRefitAt: minSamples,
	}
	e.current.Store(&snapshot{threshold: initialAnomalyThreshold})
	return e
}

// Start launches the dedicated background updater goroutine. Safe to call
// once; subsequent calls are no-ops.
func (e *Engine) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	e.wg.Add(1)
	go e.run()
}

// Stop halts the background updater and waits for it to drain.
func (e *Engine) Stop() {
	if !e.started.CompareAndSwap(true, false) {
		return
	}
	close(e.stopChan)
	e.wg.Wait()
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case s := <-e.incoming:
			e.absorb(s)
		case <-e.stopChan:
			return
		}
	}
}

// FitIncremental submits a sample for absorption into the model. Non-blocking
// up to the internal queue capacity; a saturated queue drops the sample,
// since a missed refit input never corrupts state, only delays recalibration.
func (e *Engine) FitIncremental(s Sample) {
	if !e.started.Load() {
		e.absorb(s)
		return
	}
	select {
	case e.incoming <- s:
	default:
	}
}

// absorb appends the sample to the ring buffer and refits the model if this
// observation crosses the next scheduled refit point.
func (e *Engine) absorb(s Sample) {
	e.mu.Lock()
	e.buffer.add(s)
	e.totalSeen++
	due := e.totalSeen >= e.nextRefitAt
	if due {
		e.scheduleNextRefitLocked()
	}
	samples := e.buffer.snapshot()
	e.mu.Unlock()

	if due {
		e.refit(samples)
	}
}

// scheduleNextRefitLocked advances the refit schedule: geometric doubling
// from minSamples up to refitGeometricCap, then every refitGeometricCap
// samples thereafter. Caller must hold e.mu.
func (e *Engine) scheduleNextRefitLocked() {
	interval := e.nextRefitAt
	if interval >= refitGeometricCap {
		e.nextRefitAt += refitGeometricCap
		return
	}
	next := interval * 2
	if next > refitGeometricCap {
		next = refitGeometricCap
	}
	e.nextRefitAt = next
}

func (e *Engine) refit(samples []Sample) {
	f := fitForest(samples, e.rng)
	threshold := e.recalibratedThreshold(f, samples)
	e.current.Store(&snapshot{forest: f, threshold: threshold})
}

// recalibratedThreshold recomputes the anomaly threshold as the 5th
// percentile of raw scores over the fitted sample set, clamped to
// [-0.3, 0.0].
func (e *Engine) recalibratedThreshold(f *forest, samples []Sample) float64 {
	if f == nil || len(samples) == 0 {
		return initialAnomalyThreshold
	}
	scores := make([]float64, 0, len(samples))
	for _, s := range samples {
		scores = append(scores, 0.5-f.rawScore(s.vector()))
	}
	sort.Float64s(scores)
	idx := int(float64(len(scores)-1) * thresholdPercentile)
	p05 := scores[idx]
	return helpers.ClampFloat64(p05, minAnomalyThreshold, maxAnomalyThreshold)
}

// Score returns the signed anomaly score for x: lower values indicate a more
// anomalous sample. Returns 0.0 before minSamples observations have been
// absorbed.
func (e *Engine) Score(x Sample) float64 {
	snap := e.current.Load()
	if snap == nil || snap.forest == nil {
		return 0.0
	}
	return 0.5 - snap.forest.rawScore(x.vector())
}

// IsAnomaly reports whether x's score falls below the current adaptive
// threshold. Always false before minSamples observations have been absorbed.
func (e *Engine) IsAnomaly(x Sample) bool {
	snap := e.current.Load()
	if snap == nil || snap.forest == nil {
		return false
	}
	return e.Score(x) < snap.threshold
}

// Threshold returns the anomaly score threshold currently in effect.
func (e *Engine) Threshold() float64 {
	snap := e.current.Load()
	if snap == nil {
		return initialAnomalyThreshold
	}
	return snap.threshold
}

// SampleCount reports how many observations the ring buffer currently holds,
// for the /api/stats/system anomaly_engine_stats surface.
func (e *Engine) SampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer.len()
}

// Fitted reports whether the model has been fit at least once (i.e. the
// cold-start floor has been crossed).
func (e *Engine) Fitted() bool {
	snap := e.current.Load()
	return snap != nil && snap.forest != nil
}
