package upstream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jroosing/dnsverdict/internal/model"
)

// Scheduler drives the Poller on a single logical ticker. If a tick takes
// longer than the interval, the next tick is skipped rather than stacked.
type Scheduler struct {
	poller   *Poller
	interval time.Duration

	running  atomic.Bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewScheduler returns a Scheduler with the given interval; an interval
// below MinInterval (5s) is replaced by DefaultInterval.
func NewScheduler(poller *Poller, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval < MinInterval {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		poller:   poller,
		interval: interval,
		stopChan: make(chan struct{}),
		logger:   logger,
	}
}

// Start launches the scheduler loop, invoking onTick with each non-empty
// batch of events produced by a poll.
func (s *Scheduler) Start(ctx context.Context, onTick func(ctx context.Context, events []model.UpstreamEvent)) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.run(ctx, onTick)
}

// Stop halts the scheduler and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, onTick func(ctx context.Context, events []model.UpstreamEvent)) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// busy is a 1-slot semaphore: a tick only fires if the previous one has
	// released it, implementing skip-not-stack.
	busy := make(chan struct{}, 1)
	busy <- struct{}{}

	for {
		select {
		case <-ticker.C:
			select {
			case <-busy:
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					defer func() { busy <- struct{}{} }()
					events := s.poller.Poll(ctx)
					if len(events) == 0 {
						return
					}
					onTick(ctx, events)
				}()
			default:
				s.logger.Warn("poll tick skipped, previous tick still running")
			}
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
