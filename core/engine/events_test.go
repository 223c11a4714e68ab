package engine

import (
	"testing"
	"time"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	idA, chA := bus.Subscribe()
	idB, chB := bus.Subscribe()
	defer bus.Unsubscribe(idA)
	defer bus.Unsubscribe(idB)

	bus.Publish(EventPlaybackState, map[string]any{"state": "playing"})

	for _, ch := range []<-chan Event{chA, chB} {
		select {
		case event := <-ch:
			if event.Name != EventPlaybackState {
				t.Fatalf("unexpected event %s", event.Name)
			}
			if event.Payload["state"] != "playing" {
				t.Fatalf("unexpected payload %v", event.Payload)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	id, ch := bus.Subscribe()
	bus.Unsubscribe(id)

	if _, open := <-ch; open {
		t.Fatal("channel must be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(EventAudioError, map[string]any{"kind": "IoError"})
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	id, _ := bus.Subscribe() // never read
	defer bus.Unsubscribe(id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(EventPlaybackPosition, map[string]any{"seconds": float64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
