// Package ledger implements the append-only Ledger sink: committed
// Verdicts are written fire-and-forget from the Orchestrator, with bounded
// retry on failure. Writes are idempotent on (decided_at, domain).
package ledger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jroosing/dnsverdict/internal/model"
)

// maxRetries bounds the retry attempts after the initial write.
const maxRetries = 3

// retryBackoff is the delay between retry attempts.
const retryBackoff = 200 * time.Millisecond

// Sink is the external ledger collaborator: an append-only row writer.
type Sink interface {
	AppendRow(v model.Verdict) error
}

// Ledger wraps a Sink with bounded, fire-and-forget retry so a slow or
// momentarily failing ledger backend never blocks the analysis pipeline.
type Ledger struct {
	sink   Sink
	logger *slog.Logger

	wg sync.WaitGroup
}

// New returns a Ledger writing to sink.
func New(sink Sink, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{sink: sink, logger: logger}
}

// Append schedules a fire-and-forget write of v, retrying up to maxRetries
// times with a fixed backoff before giving up and logging.
func (l *Ledger) Append(v model.Verdict) {
	if l.sink == nil {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.writeWithRetry(v)
	}()
}

func (l *Ledger) writeWithRetry(v model.Verdict) {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(retryBackoff), maxRetries)
	err := backoff.Retry(func() error {
		return l.sink.AppendRow(v)
	}, policy)
	if err != nil {
		l.logger.Warn("ledger write failed after retries", "domain", v.Domain, "error", err)
	}
}

// Wait blocks until all in-flight ledger writes have completed. Intended for
// use during graceful shutdown.
func (l *Ledger) Wait() {
	l.wg.Wait()
}
