package events

import (
	"sync"
	"time"
)

const (
	AlertCreated      = "alert.created"
	AlertAcknowledged = "alert.acknowledged"
	AlertResolved     = "alert.resolved"
	AlertEscalated    = "alert.escalated"
	WorkflowStarted   = "workflow.started"
	WorkflowCompleted = "workflow.completed"
	WorkflowFailed    = "workflow.failed"
)

type Event struct {
	Kind    string      `json:"kind"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload"`
}

// Hub is an in-process broadcast bus for alert and workflow lifecycle events.
// Slow subscribers drop events instead of blocking publishers.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) Publish(kind string, payload interface{}) {
	ev := Event{Kind: kind, Time: time.Now().UTC(), Payload: payload}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
