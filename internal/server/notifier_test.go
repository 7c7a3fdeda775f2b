package server

import (
	"context"
	"testing"
	"time"
)

func TestNotifierDeliversToSubscriber(t *testing.T) {
	notifier := NewNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := notifier.Subscribe(ctx, "author-1")
	defer cleanup()

	notifier.Publish(Event{
		UserID:     "author-1",
		Type:       EventResponseCreated,
		TaskID:     "task-a",
		ResponseID: "response-a",
		FromUserID: "executor-1",
		Timestamp:  time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.Type != EventResponseCreated {
			t.Fatalf("expected event type %s, got %s", EventResponseCreated, received.Type)
		}
		if received.TaskID != "task-a" || received.ResponseID != "response-a" {
			t.Fatalf("unexpected event payload: %+v", received)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event within deadline")
	}
}

func TestNotifierIsolatesUsers(t *testing.T) {
	notifier := NewNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstStream, firstCleanup := notifier.Subscribe(ctx, "author-1")
	defer firstCleanup()
	secondStream, secondCleanup := notifier.Subscribe(ctx, "author-2")
	defer secondCleanup()

	notifier.Publish(Event{
		UserID:    "author-2",
		Type:      EventResponseCreated,
		TaskID:    "task-b",
		Timestamp: time.Now().UTC(),
	})

	select {
	case <-firstStream:
		t.Fatal("did not expect event for unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case event := <-secondStream:
		if event.TaskID != "task-b" {
			t.Fatalf("expected task-b, got %s", event.TaskID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event for subscribed user")
	}
}

func TestNotifierDropsEventsForSlowConsumers(t *testing.T) {
	notifier := NewNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := notifier.Subscribe(ctx, "author-1")
	defer cleanup()

	// Publish past the buffer without reading; publishers must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			notifier.Publish(Event{
				UserID:    "author-1",
				Type:      EventResponseCreated,
				Timestamp: time.Now().UTC(),
			})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow consumer")
	}

	delivered := 0
	for {
		select {
		case <-stream:
			delivered++
			continue
		default:
		}
		break
	}
	if delivered == 0 || delivered > 16 {
		t.Fatalf("expected between 1 and 16 buffered events, got %d", delivered)
	}
}

func TestNotifierUnsubscribesOnContextCancel(t *testing.T) {
	notifier := NewNotifier()
	ctx, cancel := context.WithCancel(context.Background())

	stream, cleanup := notifier.Subscribe(ctx, "author-1")
	defer cleanup()
	cancel()

	deadline := time.After(time.Second)
	for {
		notifier.mu.RLock()
		remaining := len(notifier.subscribers["author-1"])
		notifier.mu.RUnlock()
		if remaining == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected subscription removal after context cancel")
		case <-time.After(10 * time.Millisecond):
		}
	}

	notifier.Publish(Event{UserID: "author-1", Type: EventResponseCreated})
	select {
	case event := <-stream:
		t.Fatalf("did not expect delivery after cancel, got %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}
