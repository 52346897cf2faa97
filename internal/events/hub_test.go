package events

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func fixedHub() *Hub {
	h := NewHub(nil, nil)
	h.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 123_000_000, time.UTC) }
	return h
}

func TestTimestampFormat(t *testing.T) {
	if got := fixedHub().Timestamp(); got != "2024-05-06T07:08:09.123Z" {
		t.Errorf("Timestamp() = %q", got)
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := fixedHub()
	a := h.Subscribe()
	b := h.Subscribe()

	if n := h.Broadcast(h.NewEvent(TypeHeartbeat, nil)); n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	for _, s := range []*Subscriber{a, b} {
		select {
		case e := <-s.Events():
			if e.Type != TypeHeartbeat {
				t.Errorf("Type = %q", e.Type)
			}
		default:
			t.Error("subscriber received nothing")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := fixedHub()
	s := h.Subscribe()
	h.Unsubscribe(s)
	h.Unsubscribe(s)

	if _, ok := <-s.Events(); ok {
		t.Error("channel still open after Unsubscribe")
	}
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
	if n := h.Broadcast(h.NewEvent(TypeHeartbeat, nil)); n != 0 {
		t.Errorf("delivered = %d after unsubscribe", n)
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := fixedHub()
	h.buffer = 1
	s := h.Subscribe()

	if n := h.Broadcast(h.NewEvent(TypeHeartbeat, nil)); n != 1 {
		t.Fatalf("first delivered = %d", n)
	}
	if n := h.Broadcast(h.NewEvent(TypeHeartbeat, nil)); n != 0 {
		t.Errorf("second delivered = %d, want 0 for full buffer", n)
	}
	<-s.Events()
}

func TestBroadcastCallEnded(t *testing.T) {
	h := fixedHub()
	s := h.Subscribe()

	n := h.BroadcastCallEnded(CallEnded{
		ConversationID: "conv-1",
		AgentID:        "agent-7",
		PhoneNumber:    "+15550100",
		DocumentID:     "doc-3",
		LeadData:       json.RawMessage(`{"score":80}`),
	})
	if n != 1 {
		t.Fatalf("delivered = %d", n)
	}

	e := <-s.Events()
	var buf bytes.Buffer
	if err := Write(&buf, e); err != nil {
		t.Fatalf("Write: %v", err)
	}

	frame := buf.String()
	if !strings.HasPrefix(frame, "data: ") || !strings.HasSuffix(frame, "\n\n") {
		t.Fatalf("frame = %q", frame)
	}
	var decoded struct {
		Type      string         `json:"type"`
		Timestamp string         `json:"timestamp"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(frame, "data: "))), &decoded); err != nil {
		t.Fatalf("decoding frame: %v", err)
	}
	if decoded.Type != TypeCallEnded || decoded.Timestamp != "2024-05-06T07:08:09.123Z" {
		t.Errorf("event = %+v", decoded)
	}
	if decoded.Data["phone_number"] != "+15550100" || decoded.Data["timestamp"] != decoded.Timestamp {
		t.Errorf("data = %v", decoded.Data)
	}
	if lead, ok := decoded.Data["lead_data"].(map[string]any); !ok || lead["score"] != float64(80) {
		t.Errorf("lead_data = %v", decoded.Data["lead_data"])
	}
}

func TestHeartbeatEventOmitsData(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, fixedHub().NewEvent(TypeHeartbeat, nil))
	if got := buf.String(); got != `data: {"type":"heartbeat","timestamp":"2024-05-06T07:08:09.123Z"}`+"\n\n" {
		t.Errorf("frame = %q", got)
	}
}

func TestRunSendsHeartbeatsAndClosesOnStop(t *testing.T) {
	h := NewHub(nil, nil)
	s := h.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, 10*time.Millisecond) }()

	select {
	case e := <-s.Events():
		if e.Type != TypeHeartbeat {
			t.Errorf("Type = %q, want heartbeat", e.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat received")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	for range s.Events() {
	}
	late := h.Subscribe()
	if _, ok := <-late.Events(); ok {
		t.Error("subscribe after stop returned an open channel")
	}
}
