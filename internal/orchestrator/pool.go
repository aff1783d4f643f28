package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jroosing/dnsverdict/internal/fingerprint"
	"github.com/jroosing/dnsverdict/internal/model"
	"github.com/jroosing/dnsverdict/internal/telemetry"
)

// DefaultWorkers is the default bounded worker pool size.
const DefaultWorkers = 8

// manualFairnessRatio is the number of manual (priority) jobs drained for
// every one polled job, once both queues have work.
const manualFairnessRatio = 4

// job is one unit of work submitted to the Pool.
type job struct {
	domain string
	meta   *model.UpstreamMeta
	manual bool
	done   chan result
	onDone func(model.Verdict, error)
}

type result struct {
	verdict model.Verdict
	err     error
}

// Pool runs Orchestrator.Analyze calls on a bounded set of workers, draining
// the manual (priority) queue ahead of the polled queue at a 4:1 fairness
// ratio once both have pending work.
type Pool struct {
	orch *Orchestrator

	manualQ chan job
	polledQ chan job

	stopChan chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger

	telemetry *telemetry.Recorder
}

// NewPool returns a Pool with the given number of workers (0 uses the
// default), driving calls through orch.
func NewPool(orch *Orchestrator, workers int, logger *slog.Logger, rec *telemetry.Recorder) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		orch:      orch,
		manualQ:   make(chan job, workers*4),
		polledQ:   make(chan job, workers*4),
		stopChan:  make(chan struct{}),
		logger:    logger,
		telemetry: rec,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Stop signals all workers to exit after their current job and waits for
// them to drain.
func (p *Pool) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

// SubmitManual enqueues a manual /analyze request, returning its Verdict
// synchronously once processed.
func (p *Pool) SubmitManual(ctx context.Context, domain string, meta *model.UpstreamMeta) (model.Verdict, error) {
	return p.submit(ctx, p.manualQ, domain, meta, true)
}

// SubmitPolled enqueues a polled domain without waiting for a result;
// callers observe the outcome via the verdict bus. onDone, if non-nil, is
// invoked once on the worker goroutine that ran the analysis, after it
// completes; when the polled queue is full the domain is dropped and onDone
// is invoked synchronously from SubmitPolled with ErrPoolSaturated. A job
// still queued when the Pool stops is not run and its onDone is not invoked.
// This is the hook the Deduplicator uses to clear its in-flight entry on
// verdict completion rather than at submit time.
func (p *Pool) SubmitPolled(domain string, meta *model.UpstreamMeta, onDone ...func(model.Verdict, error)) {
	var cb func(model.Verdict, error)
	if len(onDone) > 0 {
		cb = onDone[0]
	}
	j := job{domain: domain, meta: meta, manual: false, onDone: cb}
	select {
	case p.polledQ <- j:
	default:
		p.logger.Warn("worker pool saturated, dropping polled domain", "domain", domain)
		p.telemetry.RecordPoolDrop("polled")
		if cb != nil {
			cb(model.Verdict{}, ErrPoolSaturated)
		}
	}
}

// ErrPoolSaturated is passed to a SubmitPolled onDone callback when the
// polled queue was full and the domain was dropped without analysis.
var ErrPoolSaturated = errors.New("orchestrator: worker pool saturated")

// Stats reports the current depth and capacity of each internal queue, for
// periodic saturation sampling (see telemetry.Recorder.SetPoolSaturation).
type Stats struct {
	ManualDepth, ManualCap int
	PolledDepth, PolledCap int
}

// Stats returns a point-in-time read of the manual and polled queue depths.
func (p *Pool) Stats() Stats {
	return Stats{
		ManualDepth: len(p.manualQ), ManualCap: cap(p.manualQ),
		PolledDepth: len(p.polledQ), PolledCap: cap(p.polledQ),
	}
}

func (p *Pool) submit(ctx context.Context, q chan job, domain string, meta *model.UpstreamMeta, manual bool) (model.Verdict, error) {
	j := job{domain: domain, meta: meta, manual: manual, done: make(chan result, 1)}
	select {
	case q <- j:
	case <-ctx.Done():
		return p.budgetExceededVerdict(domain, manual)
	}

	select {
	case r := <-j.done:
		return r.verdict, r.err
	case <-ctx.Done():
		return p.budgetExceededVerdict(domain, manual)
	}
}

// budgetExceededVerdict is returned when the caller's deadline expires before
// a submitted job is dequeued or finishes. A cancelled analysis still answers
// with a degraded source=Fallback verdict rather than an error: the only
// failure that ever surfaces from the pipeline is domain validation. If the
// job was already enqueued it keeps running and commits its real verdict
// through the usual path.
func (p *Pool) budgetExceededVerdict(rawDomain string, manual bool) (model.Verdict, error) {
	domain, err := fingerprint.Normalize(rawDomain)
	if err != nil {
		return model.Verdict{}, ErrInvalidDomain
	}
	return model.Verdict{
		Domain:    domain,
		Risk:      model.RiskLow,
		Category:  model.CategoryUnknown,
		Summary:   "analysis budget exceeded, degraded mode",
		Source:    model.SourceFallback,
		DecidedAt: time.Now().UTC(),
		Manual:    manual,
	}, nil
}

// worker implements the 4:1 manual:polled drain ratio: it always prefers a
// manual job when one is waiting, and only pulls from the polled queue after
// manualFairnessRatio consecutive manual jobs (or when no manual job is
// pending).
func (p *Pool) worker() {
	defer p.wg.Done()

	consecutiveManual := 0
	for {
		select {
		case <-p.stopChan:
			return
		default:
		}

		var j job
		var ok bool

		if consecutiveManual < manualFairnessRatio {
			select {
			case j, ok = <-p.manualQ:
				if ok {
					consecutiveManual++
					p.run(j)
					continue
				}
			default:
			}
		}

		select {
		case j, ok = <-p.polledQ:
			if ok {
				consecutiveManual = 0
				p.run(j)
				continue
			}
		default:
		}

		// Both queues empty: block on whichever produces work first, or stop.
		select {
		case j = <-p.manualQ:
			consecutiveManual++
			p.run(j)
		case j = <-p.polledQ:
			consecutiveManual = 0
			p.run(j)
		case <-p.stopChan:
			return
		}
	}
}

func (p *Pool) run(j job) {
	v, err := p.orch.Analyze(context.Background(), j.domain, j.meta, j.manual)
	if j.done != nil {
		j.done <- result{verdict: v, err: err}
	}
	if j.onDone != nil {
		j.onDone(v, err)
	}
}
