package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Publish(Event{Type: "delivery.sent", Data: 42})

	select {
	case e := <-ch:
		if e.Type != "delivery.sent" || e.Data != 42 {
			t.Fatalf("got %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatalf("publish must stamp the time")
		}
	case <-time.After(time.Second):
		t.Fatalf("no event received")
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"}) // buffer full, dropped

	if e := <-ch; e.Type != "a" {
		t.Fatalf("got %q, want a", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %q", e.Type)
	default:
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe(1)
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Fatalf("channel not closed after cancel")
	}
	b.Publish(Event{Type: "a"}) // must not panic on closed subscriber
}
