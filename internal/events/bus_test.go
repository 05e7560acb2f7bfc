package events

import (
	"errors"
	"testing"
	"time"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("expected non-nil bus")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	if bus.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", bus.SubscriberCount())
	}

	bus.Unsubscribe(ch1)
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}

	if _, ok := <-ch1; ok {
		t.Error("expected unsubscribed channel to be closed")
	}
	_ = ch2
}

func TestBusPublishMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()

	bus.Publish(NewIntroducedEvent(4, 12*time.Millisecond))

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.Type != EventSessionIntroduced {
				t.Errorf("subscriber %d: expected type %s, got %s", i, EventSessionIntroduced, received.Type)
			}
			if received.SessionID != 4 {
				t.Errorf("subscriber %d: expected session 4, got %d", i, received.SessionID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestBusPublishFullBufferDrops(t *testing.T) {
	bus := NewBusWithBuffer(1)
	ch := bus.Subscribe()

	bus.Publish(NewConnectedEvent(0))
	bus.Publish(NewConnectedEvent(1))
	bus.Publish(NewConnectedEvent(2))

	if bus.Dropped() != 2 {
		t.Errorf("expected 2 dropped deliveries, got %d", bus.Dropped())
	}

	select {
	case ev := <-ch:
		if ev.SessionID != 0 {
			t.Errorf("expected first event to be kept, got session %d", ev.SessionID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for first event")
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	bus.Close()

	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed")
	}

	late := bus.Subscribe()
	if _, ok := <-late; ok {
		t.Error("expected subscription after close to be closed")
	}

	// Publish after close must not panic
	bus.Publish(NewConnectedEvent(1))
}

func TestEventCreation(t *testing.T) {
	t.Run("Failed", func(t *testing.T) {
		event := NewFailedEvent(3, "connect", errors.New("refused"))
		if event.Type != EventSessionFailed {
			t.Errorf("expected %s, got %s", EventSessionFailed, event.Type)
		}
		if event.Data.Stage != "connect" || event.Data.Error != "refused" {
			t.Errorf("unexpected data: %+v", event.Data)
		}

		nilErr := NewFailedEvent(3, "intro", nil)
		if nilErr.Data.Error != "" {
			t.Errorf("expected empty error, got %q", nilErr.Data.Error)
		}
	})

	t.Run("Introduced", func(t *testing.T) {
		event := NewIntroducedEvent(1, 100*time.Millisecond)
		if event.Data.Handshake != "100ms" {
			t.Errorf("expected 100ms, got %s", event.Data.Handshake)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		event := NewClosedEvent(2, 42)
		if event.Type != EventSessionClosed || event.Data.Drained != 42 {
			t.Errorf("unexpected closed event: %+v", event)
		}
	})
}

func TestNewBusForSessionsHoldsAllEvents(t *testing.T) {
	const sessions = 1000
	bus := NewBusForSessions(sessions)
	ch := bus.Subscribe()

	for id := 0; id < sessions; id++ {
		bus.Publish(NewConnectedEvent(id))
		bus.Publish(NewIntroducedEvent(id, time.Millisecond))
		bus.Publish(NewFailedEvent(id, "signal", errors.New("not delivered")))
		bus.Publish(NewClosedEvent(id, 0))
	}

	if bus.Dropped() != 0 {
		t.Errorf("expected no dropped deliveries, got %d", bus.Dropped())
	}
	if len(ch) != sessions*EventsPerSession {
		t.Errorf("expected %d buffered events, got %d", sessions*EventsPerSession, len(ch))
	}
	bus.Close()
}

func TestNewBusForSessionsMinimumBuffer(t *testing.T) {
	bus := NewBusForSessions(1)
	ch := bus.Subscribe()
	if cap(ch) != defaultBufferSize {
		t.Errorf("expected buffer %d, got %d", defaultBufferSize, cap(ch))
	}
	bus.Close()
}
