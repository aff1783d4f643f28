package upstream_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jroosing/dnsverdict/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoller_FetchesAndConvertsEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "u", user)
		assert.Equal(t, "p", pass)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{
					"question": map[string]string{"name": "example.com"},
					"time":     time.Now().Format(time.RFC3339),
					"reason":   "Blocked by rule",
					"rule":     "||example.com^",
					"client":   "192.168.1.2",
				},
			},
		})
	}))
	defer srv.Close()

	p := upstream.New([]string{srv.URL}, "u", "p", nil)
	events := p.Poll(context.Background())
	require.Len(t, events, 1)
	assert.Equal(t, "example.com", events[0].Domain)
	assert.Equal(t, "Blocked by rule", events[0].Meta.FilterReason)
}

func TestPoller_HighWaterMarkSkipsOldEntries(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	newer := time.Now()

	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		t := newer
		if call == 2 {
			t = old
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"question": map[string]string{"name": "a.com"}, "time": t.Format(time.RFC3339), "reason": "x"},
			},
		})
	}))
	defer srv.Close()

	p := upstream.New([]string{srv.URL}, "", "", nil)
	first := p.Poll(context.Background())
	require.Len(t, first, 1)

	second := p.Poll(context.Background())
	assert.Empty(t, second, "entry older than the high-water mark should be dropped")
}

func TestPoller_FailoverToNextURL(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]interface{}{}})
	}))
	defer good.Close()

	p := upstream.New([]string{"http://127.0.0.1:1", good.URL}, "", "", nil)
	events := p.Poll(context.Background())
	assert.Empty(t, events)
}

func TestPoller_MalformedPayloadDropsTick(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p := upstream.New([]string{srv.URL}, "", "", nil)
	events := p.Poll(context.Background())
	assert.Empty(t, events)
}
