package redact

import (
	"testing"
	"time"

	"redactmail-server-go/src/core/redaction"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewProgressHub()
	ch := hub.Subscribe("req-1")
	defer hub.Unsubscribe("req-1", ch)

	hub.Publish("req-1", redaction.ProgressEvent{Stage: "text", Message: "working"})
	hub.Publish("req-2", redaction.ProgressEvent{Stage: "text", Message: "other request"})

	select {
	case ev := <-ch:
		if ev.Message != "working" {
			t.Errorf("got %q", ev.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case ev := <-ch:
		t.Errorf("unexpected cross-request event %+v", ev)
	default:
	}
}

func TestHubCloseSignalsCompletion(t *testing.T) {
	hub := NewProgressHub()
	ch := hub.Subscribe("req-1")

	hub.Publish("req-1", redaction.ProgressEvent{Stage: "done", Message: "finished"})
	hub.Close("req-1")

	// buffered event still drains, then the channel reports closed
	if ev, ok := <-ch; !ok || ev.Message != "finished" {
		t.Fatalf("expected buffered event, got ok=%v ev=%+v", ok, ev)
	}
	if _, ok := <-ch; ok {
		t.Error("channel must be closed after Close")
	}
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewProgressHub()
	ch := hub.Subscribe("req-1")
	defer hub.Unsubscribe("req-1", ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish("req-1", redaction.ProgressEvent{Stage: "image", Message: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestHubUnsubscribeRemovesChannel(t *testing.T) {
	hub := NewProgressHub()
	ch := hub.Subscribe("req-1")
	hub.Unsubscribe("req-1", ch)

	hub.Publish("req-1", redaction.ProgressEvent{Stage: "text"})
	select {
	case <-ch:
		t.Error("unsubscribed channel must not receive events")
	default:
	}
}
