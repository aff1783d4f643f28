package upstream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jroosing/dnsverdict/internal/model"
	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testScheduler builds a Scheduler with an interval below the configured
// minimum, which NewScheduler would clamp up to the default.
func testScheduler(p *Poller, interval time.Duration) *Scheduler {
	return &Scheduler{
		poller:   p,
		interval: interval,
		stopChan: make(chan struct{}),
		logger:   discardLogger(),
	}
}

func TestScheduler_TicksAndDeliversEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"question": map[string]string{"name": "a.com"}, "time": time.Now().Format(time.RFC3339), "reason": "x"},
			},
		})
	}))
	defer srv.Close()

	p := New([]string{srv.URL}, "", "", nil)
	s := testScheduler(p, 10*time.Millisecond)

	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, func(ctx context.Context, events []model.UpstreamEvent) {
		atomic.AddInt32(&calls, 1)
	})

	time.Sleep(100 * time.Millisecond)
	cancel()
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestNewScheduler_ClampsIntervalBelowMinimum(t *testing.T) {
	p := New([]string{"http://unused.invalid"}, "", "", nil)
	s := NewScheduler(p, time.Second, nil)
	assert.Equal(t, DefaultInterval, s.interval)
}
