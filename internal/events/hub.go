package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/optilead/internal/metrics"
)

// Event types.
const (
	TypeConnected = "connected"
	TypeHeartbeat = "heartbeat"
	TypeCallEnded = "call_ended"
)

// timeLayout matches JavaScript's Date.toISOString.
const timeLayout = "2006-01-02T15:04:05.000Z"

const defaultBuffer = 16

// Event is one message on the call-event stream.
type Event struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// CallEnded is the payload of a call_ended event.
type CallEnded struct {
	ConversationID string          `json:"conversation_id"`
	AgentID        string          `json:"agent_id"`
	PhoneNumber    string          `json:"phone_number"`
	DocumentID     string          `json:"document_id"`
	LeadData       json.RawMessage `json:"lead_data,omitempty"`
	Timestamp      string          `json:"timestamp"`
}

// Subscriber receives events from a Hub until unsubscribed or the hub stops.
type Subscriber struct {
	ch chan Event
}

// Events returns the channel events are delivered on. It is closed when the
// subscriber is removed.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Hub fans events out to connected stream subscribers. A subscriber whose
// buffer is full misses the event rather than blocking the broadcast.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscriber]struct{}
	stopped bool

	buffer  int
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewHub creates an empty hub. m may be nil.
func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[*Subscriber]struct{}),
		buffer:  defaultBuffer,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Timestamp formats the current time as an event timestamp.
func (h *Hub) Timestamp() string {
	return h.now().UTC().Format(timeLayout)
}

// NewEvent builds an event of type typ stamped with the current time.
func (h *Hub) NewEvent(typ string, data any) Event {
	return Event{Type: typ, Timestamp: h.Timestamp(), Data: data}
}

// Subscribe registers a new subscriber. After the hub has stopped the
// returned subscriber's channel is already closed.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		close(s.ch)
		return s
	}
	h.subs[s] = struct{}{}
	h.metrics.SubscriberAdded()
	return s
}

// Unsubscribe removes s and closes its channel. It is safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(s)
}

// remove must be called with h.mu held.
func (h *Hub) remove(s *Subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
	h.metrics.SubscriberRemoved()
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast delivers e to every subscriber and returns how many received it.
func (h *Hub) Broadcast(e Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for s := range h.subs {
		select {
		case s.ch <- e:
			delivered++
			h.metrics.EventDelivered(e.Type)
		default:
			h.logger.Warn("call event dropped for slow subscriber", "type", e.Type)
		}
	}
	return delivered
}

// BroadcastCallEnded stamps c and broadcasts it as a call_ended event.
func (h *Hub) BroadcastCallEnded(c CallEnded) int {
	ts := h.Timestamp()
	c.Timestamp = ts
	n := h.Broadcast(Event{Type: TypeCallEnded, Timestamp: ts, Data: c})
	h.logger.Info("broadcast call_ended", "phone_number", c.PhoneNumber, "subscribers", n)
	return n
}

// Run sends a heartbeat every interval until ctx is done, then closes every
// subscriber so open streams end.
func (h *Hub) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.stop()
			return nil
		case <-ticker.C:
			h.Broadcast(h.NewEvent(TypeHeartbeat, nil))
		}
	}
}

func (h *Hub) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for s := range h.subs {
		h.remove(s)
	}
}

// Write encodes e as a single SSE "data:" frame.
func Write(w io.Writer, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}
