// Package upstream implements the Poller: it periodically fetches
// recent DNS-sinkhole log entries over HTTP, tries a prioritized list of
// candidate URLs, and converts survivors into UpstreamEvents.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jroosing/dnsverdict/internal/model"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultBatchLimit = 100
	DefaultInterval   = 30 * time.Second
	MinInterval       = 5 * time.Second
)

// logEntry is one row of the upstream's JSON log payload.
type logEntry struct {
	Question struct {
		Name string `json:"name"`
	} `json:"question"`
	Time     time.Time `json:"time"`
	Reason   string    `json:"reason"`
	Rule     string    `json:"rule"`
	FilterID string    `json:"filter_id"`
	Client   string    `json:"client"`
}

type logPayload struct {
	Data []logEntry `json:"data"`
}

// Poller fetches recent filter-log entries from a DNS sinkhole, trying each
// configured URL in order and remembering the last one that succeeded.
type Poller struct {
	client     *http.Client
	urls       []string
	lastGood   int
	username   string
	password   string
	batchLimit int

	highWaterMark time.Time

	logger *slog.Logger
}

// New returns a Poller over the given prioritized candidate URLs
// (primary, host-gateway alternate, loopback, ...).
func New(urls []string, username, password string, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:     &http.Client{Timeout: DefaultTimeout},
		urls:       urls,
		username:   username,
		password:   password,
		batchLimit: DefaultBatchLimit,
		logger:     logger,
	}
}

// Poll fetches one tick's worth of entries, advancing the high-water mark so
// later ticks don't re-enqueue already-seen events. Returns an empty, nil-err
// result on any network/auth/malformed-payload failure: the Poller never
// surfaces an error into the Orchestrator.
func (p *Poller) Poll(ctx context.Context) []model.UpstreamEvent {
	if len(p.urls) == 0 {
		return nil
	}

	for attempt := 0; attempt < len(p.urls); attempt++ {
		idx := (p.lastGood + attempt) % len(p.urls)
		entries, err := p.fetch(ctx, p.urls[idx])
		if err != nil {
			p.logger.Warn("poll candidate failed", "url", p.urls[idx], "error", err)
			continue
		}
		p.lastGood = idx
		return p.toEvents(entries)
	}

	p.logger.Warn("poll exhausted all candidate urls")
	return nil
}

func (p *Poller) fetch(ctx context.Context, url string) ([]logEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if p.username != "" {
		req.SetBasicAuth(p.username, p.password)
	}
	q := req.URL.Query()
	q.Set("limit", fmt.Sprintf("%d", p.batchLimit))
	req.URL.RawQuery = q.Encode()

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload logPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}
	return payload.Data, nil
}

// toEvents converts entries newer than the high-water mark into
// UpstreamEvents and advances the mark.
func (p *Poller) toEvents(entries []logEntry) []model.UpstreamEvent {
	var out []model.UpstreamEvent
	newest := p.highWaterMark

	for _, e := range entries {
		if !e.Time.After(p.highWaterMark) {
			continue
		}
		if e.Time.After(newest) {
			newest = e.Time
		}
		out = append(out, model.UpstreamEvent{
			Domain:     e.Question.Name,
			AnsweredAt: e.Time,
			Meta: model.UpstreamMeta{
				FilterReason: e.Reason,
				FilterRule:   e.Rule,
				FilterID:     e.FilterID,
				Client:       e.Client,
			},
		})
	}
	p.highWaterMark = newest
	return out
}
