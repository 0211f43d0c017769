package redact

import (
	"sync"

	"redactmail-server-go/src/core/redaction"
)

// ProgressHub fans pipeline progress events out to websocket subscribers,
// keyed by request id. Publishing never blocks: a subscriber that cannot
// keep up loses events rather than stalling the pipeline.
type ProgressHub struct {
	mu       sync.Mutex
	channels map[string][]chan redaction.ProgressEvent
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		channels: make(map[string][]chan redaction.ProgressEvent),
	}
}

// Subscribe returns a channel receiving events for the given request id.
// The caller must call Unsubscribe with the same channel when done.
func (h *ProgressHub) Subscribe(requestID string) chan redaction.ProgressEvent {
	ch := make(chan redaction.ProgressEvent, 32)
	h.mu.Lock()
	h.channels[requestID] = append(h.channels[requestID], ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel from the request's subscriber list.
func (h *ProgressHub) Unsubscribe(requestID string, ch chan redaction.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.channels[requestID]
	for i, sub := range subs {
		if sub == ch {
			h.channels[requestID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.channels[requestID]) == 0 {
		delete(h.channels, requestID)
	}
}

// Publish delivers an event to every subscriber of the request id.
func (h *ProgressHub) Publish(requestID string, event redaction.ProgressEvent) {
	h.mu.Lock()
	subs := append([]chan redaction.ProgressEvent(nil), h.channels[requestID]...)
	h.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close signals completion to every subscriber of the request id and
// drops the entry. Subscribed channels are closed so websocket writers
// can terminate their read loops.
func (h *ProgressHub) Close(requestID string) {
	h.mu.Lock()
	subs := h.channels[requestID]
	delete(h.channels, requestID)
	h.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}
