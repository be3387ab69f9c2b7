package webhook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/payment-gateway/internal/core/events"
	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
)

type Subscriber interface {
	Subscribe(eventType string, handler events.Handler)
}

// Dispatcher turns merchant events on the bus into first delivery jobs.
type Dispatcher struct {
	queue  Enqueuer
	logger *slog.Logger
}

func NewDispatcher(queue Enqueuer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{queue: queue, logger: logger}
}

func (d *Dispatcher) Register(bus Subscriber) {
	for _, eventType := range events.MerchantEventTypes {
		bus.Subscribe(eventType, d.Handle)
	}
}

func (d *Dispatcher) Handle(ctx context.Context, event events.Event) error {
	me, ok := event.(*events.MerchantEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", event, event.EventType())
	}

	body, err := events.EnvelopeFor(me).Encode()
	if err != nil {
		return err
	}

	job, err := d.queue.EnqueueWebhook(ctx, jobqueue.WebhookJob{
		MerchantID: me.MerchantID,
		Event:      me.Type,
		Payload:    body,
		Attempt:    1,
	}, 0)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s webhook: %w", me.Type, err)
	}

	d.logger.Debug("webhook enqueued", "job_id", job.ID, "merchant_id", me.MerchantID, "event", me.Type)
	return nil
}
