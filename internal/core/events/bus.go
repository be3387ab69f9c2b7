package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Event is anything routed by type through the bus.
type Event interface {
	EventType() string
	EventID() string
}

type Handler func(ctx context.Context, event Event) error

// EventBus fans gateway events out to in-process subscribers. Workers publish
// synchronously so a subscriber that cannot enqueue fails the job.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

func (eb *EventBus) Subscribe(eventType string, handler Handler) {
	eb.mu.Lock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	n := len(eb.handlers[eventType])
	eb.mu.Unlock()

	eb.logger.Debug("event subscriber added", "event_type", eventType, "subscribers", n)
}

func (eb *EventBus) HandlerCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}

// subscribers returns a copy so handlers may subscribe while being called.
func (eb *EventBus) subscribers(event Event) []Handler {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return append([]Handler(nil), eb.handlers[event.EventType()]...)
}

// Publish runs subscribers in the background on a context detached from the
// caller's cancellation. Failures are only logged.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	handlers := eb.subscribers(event)
	if len(handlers) == 0 {
		return nil
	}

	detached := context.WithoutCancel(ctx)
	for _, h := range handlers {
		go func(h Handler) {
			if err := h(detached, event); err != nil {
				eb.logger.Error("async event subscriber failed",
					"event_type", event.EventType(),
					"event_id", event.EventID(),
					"error", err)
			}
		}(h)
	}
	return nil
}

// PublishSync calls every subscriber in order and returns their joined errors.
// A failing subscriber does not stop the ones after it.
func (eb *EventBus) PublishSync(ctx context.Context, event Event) error {
	handlers := eb.subscribers(event)
	if len(handlers) == 0 {
		eb.logger.Debug("event has no subscribers", "event_type", event.EventType())
		return nil
	}

	var failed []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}

	err := errors.Join(failed...)
	eb.logger.Error("event subscribers failed",
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"failures", len(failed),
		"error", err)
	return fmt.Errorf("publish %s: %w", event.EventType(), err)
}
