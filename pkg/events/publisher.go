package events

import "context"

// EventPublisher publishes call events.
type EventPublisher interface {
	PublishCalled(ctx context.Context, event *CallEvent) error
}

// NoOpPublisher drops every event.
type NoOpPublisher struct{}

// PublishCalled is a no-op.
func (p *NoOpPublisher) PublishCalled(_ context.Context, _ *CallEvent) error {
	return nil
}

// CallbackPublisher hands events to a function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *CallEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *CallEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishCalled calls the callback.
func (p *CallbackPublisher) PublishCalled(ctx context.Context, event *CallEvent) error {
	return p.callback(ctx, event)
}
