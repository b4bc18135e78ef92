package events

import (
	"context"
	"errors"
	"testing"
)

func TestNoOpPublisher(t *testing.T) {
	pub := &NoOpPublisher{}
	if err := pub.PublishCalled(context.Background(), &CallEvent{Method: "Get", Outcome: OK}); err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
}

func TestCallbackPublisher(t *testing.T) {
	var captured *CallEvent
	pub := NewCallbackPublisher(func(_ context.Context, event *CallEvent) error {
		captured = event
		return nil
	})

	event := &CallEvent{Connector: "Avatar", Method: "Get", Session: "s1", Outcome: OK, DurationMs: 3}
	if err := pub.PublishCalled(context.Background(), event); err != nil {
		t.Fatalf("events:publisher_test - expected no error, got %v", err)
	}
	if captured != event {
		t.Fatal("events:publisher_test - expected callback to receive the event")
	}

	failing := NewCallbackPublisher(func(context.Context, *CallEvent) error { return errors.New("down") })
	if err := failing.PublishCalled(context.Background(), event); err == nil {
		t.Error("events:publisher_test - expected callback error to propagate")
	}
}
