package verdictbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jroosing/dnsverdict/internal/model"
	"github.com/redis/go-redis/v9"
)

// DefaultSubscriberQueueSize is the default bounded per-subscriber channel
// capacity.
const DefaultSubscriberQueueSize = 32

// redisChannel is the Pub/Sub channel used for cross-process verdict fanout
// when a Redis client is configured.
const redisChannel = "dnsverdict:verdicts"

// Subscriber is a single push-channel client's bounded inbox. Overflow drops
// the oldest queued verdict and increments Dropped rather than blocking the
// publisher.
type Subscriber struct {
	ch      chan model.Verdict
	Dropped atomic.Int64
}

func newSubscriber(size int) *Subscriber {
	if size <= 0 {
		size = DefaultSubscriberQueueSize
	}
	return &Subscriber{ch: make(chan model.Verdict, size)}
}

// C returns the channel clients should range over to receive verdicts.
func (s *Subscriber) C() <-chan model.Verdict { return s.ch }

func (s *Subscriber) deliver(v model.Verdict) {
	select {
	case s.ch <- v:
		return
	default:
	}
	// Full: drop the oldest queued entry to make room, never block.
	select {
	case <-s.ch:
		s.Dropped.Add(1)
	default:
	}
	select {
	case s.ch <- v:
	default:
	}
}

// Hub fans committed verdicts out to subscribers using a copy-on-write
// subscriber set, and optionally republishes them over Redis Pub/Sub for
// cross-process fanout.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	queueSize   int

	redisClient *redis.Client
	logger      *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithRedis attaches an optional Redis client used to republish committed
// verdicts for other processes subscribed to redisChannel.
func WithRedis(client *redis.Client) HubOption {
	return func(h *Hub) { h.redisClient = client }
}

// NewHub returns a Hub with subscriber queues of the given size.
func NewHub(queueSize int, logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		subscribers: map[*Subscriber]struct{}{},
		queueSize:   queueSize,
		logger:      logger,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Subscribe registers a new Subscriber. Callers must call Unsubscribe when
// done.
func (h *Hub) Subscribe() *Subscriber {
	s := newSubscriber(h.queueSize)
	h.mu.Lock()
	next := make(map[*Subscriber]struct{}, len(h.subscribers)+1)
	for k := range h.subscribers {
		next[k] = struct{}{}
	}
	next[s] = struct{}{}
	h.subscribers = next
	h.mu.Unlock()
	return s
}

// Unsubscribe removes s from the fanout set.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	next := make(map[*Subscriber]struct{}, len(h.subscribers))
	for k := range h.subscribers {
		if k != s {
			next[k] = struct{}{}
		}
	}
	h.subscribers = next
	h.mu.Unlock()
}

// Publish fans v out to a snapshot of current subscribers, and, if a Redis
// client is configured, republishes it for other processes.
func (h *Hub) Publish(v model.Verdict) {
	h.mu.Lock()
	snapshot := h.subscribers
	h.mu.Unlock()

	for s := range snapshot {
		s.deliver(v)
	}

	if h.redisClient != nil {
		h.publishRedis(v)
	}
}

func (h *Hub) publishRedis(v model.Verdict) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("failed to marshal verdict for redis fanout", "error", err)
		return
	}
	if err := h.redisClient.Publish(context.Background(), redisChannel, payload).Err(); err != nil {
		h.logger.Warn("failed to publish verdict to redis", "error", err)
	}
}

// SubscriberCount reports the current number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
