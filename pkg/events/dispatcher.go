package events

import (
	"context"
)

// Delivery is one received queue message presented to a handler.
type Delivery struct {
	MessageID string
	SenderID  string
	Event     *Event
}

// Handler processes one event delivery and reports the outcome.
type Handler interface {
	Handle(ctx context.Context, d Delivery) Outcome
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, d Delivery) Outcome

func (f HandlerFunc) Handle(ctx context.Context, d Delivery) Outcome {
	return f(ctx, d)
}

// Dispatcher routes deliveries to handlers by event type.
type Dispatcher struct {
	handlers map[EventType]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventType]Handler)}
}

// Register binds a handler to an event type, replacing any previous binding.
func (d *Dispatcher) Register(t EventType, h Handler) {
	d.handlers[t] = h
}

// Handles reports whether a handler is registered for the event type.
func (d *Dispatcher) Handles(t EventType) bool {
	_, ok := d.handlers[t]
	return ok
}

// Dispatch routes one delivery. Messages with an unknown or empty event
// type are unprocessable and never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, delivery Delivery) Outcome {
	if delivery.Event == nil || delivery.Event.Type == "" {
		return Fatalf("message has no event type")
	}
	h, ok := d.handlers[delivery.Event.Type]
	if !ok {
		return Fatalf("no handler registered for event type %s", delivery.Event.Type)
	}
	return h.Handle(ctx, delivery)
}
