package telemetry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultQueueSize is the per-subscriber queue bound used by Subscribe.
const DefaultQueueSize = 1000

var (
	ErrHubClosed        = errors.New("telemetry: hub closed")
	ErrInvalidQueueSize = errors.New("telemetry: queue size must be positive")
)

// Subscription is a live hub subscription. C is closed on Unsubscribe or
// Close.
type Subscription struct {
	ID     string
	Prefix string
	C      <-chan string
}

type subscriber struct {
	id      string
	prefix  string
	ch      chan string
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Hub fans published lines out to subscribers whose prefix is a byte prefix
// of the line. Publish never blocks: a line for a subscriber whose queue is
// full is dropped for that subscriber only. Delivery is at most once.
type Hub struct {
	queueSize int

	mu     sync.Mutex
	subs   map[string]*subscriber
	closed bool

	published atomic.Uint64
	sent      atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub returns a hub whose Subscribe queues hold queueSize lines. A
// non-positive queueSize selects DefaultQueueSize.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		queueSize: queueSize,
		subs:      make(map[string]*subscriber),
	}
}

// QueueSize returns the default per-subscriber queue bound.
func (h *Hub) QueueSize() int { return h.queueSize }

// Subscribe registers a subscriber for lines starting with prefix. An empty
// prefix matches everything.
func (h *Hub) Subscribe(prefix string) (Subscription, error) {
	return h.SubscribeQueue(prefix, h.queueSize)
}

// SubscribeQueue is Subscribe with an explicit queue bound.
func (h *Hub) SubscribeQueue(prefix string, size int) (Subscription, error) {
	if size <= 0 {
		return Subscription{}, fmt.Errorf("%w: %d", ErrInvalidQueueSize, size)
	}
	s := &subscriber{
		id:     uuid.NewString(),
		prefix: prefix,
		ch:     make(chan string, size),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return Subscription{}, ErrHubClosed
	}
	h.subs[s.id] = s
	return Subscription{ID: s.id, Prefix: prefix, C: s.ch}, nil
}

// Unsubscribe removes the subscriber and closes its channel. It reports
// whether id was subscribed.
func (h *Hub) Unsubscribe(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.subs[id]
	if !ok {
		return false
	}
	delete(h.subs, id)
	close(s.ch)
	return true
}

// Publish offers line to every matching subscriber and returns how many
// accepted it. After Close it does nothing.
func (h *Hub) Publish(line string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0
	}
	h.published.Add(1)

	delivered := 0
	for _, s := range h.subs {
		if !strings.HasPrefix(line, s.prefix) {
			continue
		}
		select {
		case s.ch <- line:
			s.sent.Add(1)
			h.sent.Add(1)
			delivered++
		default:
			// queue full: drop for this subscriber only
			s.dropped.Add(1)
			h.dropped.Add(1)
		}
	}
	return delivered
}

// PublishFrame encodes f and publishes it.
func (h *Hub) PublishFrame(f Frame) int {
	return h.Publish(f.Encode())
}

// Close closes every subscriber channel. Later Subscribe calls fail and
// Publish becomes a no-op. Closing twice is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
}

// SubscriberStats are the counters of one subscriber.
type SubscriberStats struct {
	ID      string `json:"id"`
	Prefix  string `json:"prefix"`
	Queued  int    `json:"queued"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// HubStats is a snapshot of hub counters. Sent and Dropped include
// subscribers that have since gone away.
type HubStats struct {
	Published   uint64            `json:"published"`
	Sent        uint64            `json:"sent"`
	Dropped     uint64            `json:"dropped"`
	QueueSize   int               `json:"queue_size"`
	Closed      bool              `json:"closed"`
	Subscribers []SubscriberStats `json:"subscribers"`
}

// Stats returns a snapshot ordered by subscriber ID.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := HubStats{
		Published:   h.published.Load(),
		Sent:        h.sent.Load(),
		Dropped:     h.dropped.Load(),
		QueueSize:   h.queueSize,
		Closed:      h.closed,
		Subscribers: make([]SubscriberStats, 0, len(h.subs)),
	}
	for _, s := range h.subs {
		st.Subscribers = append(st.Subscribers, SubscriberStats{
			ID:      s.id,
			Prefix:  s.prefix,
			Queued:  len(s.ch),
			Sent:    s.sent.Load(),
			Dropped: s.dropped.Load(),
		})
	}
	sort.Slice(st.Subscribers, func(i, j int) bool { return st.Subscribers[i].ID < st.Subscribers[j].ID })
	return st
}
