package jobqueue

import (
	"context"
	"encoding/json"
	"time"
)

type PaymentJob struct {
	PaymentID string `json:"paymentId"`
}

type RefundJob struct {
	RefundID string `json:"refundId"`
}

// WebhookJob carries the exact serialized envelope; Payload is sent and signed as-is.
type WebhookJob struct {
	MerchantID string          `json:"merchantId"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	LogID      string          `json:"logId,omitempty"`
	// Generation ties the job to one delivery chain of its log; a manual
	// retry starts a new generation and earlier jobs become no-ops.
	Generation int             `json:"generation,omitempty"`
}

// Dispatcher is the producer side used by the API and by workers that chain jobs.
type Dispatcher struct {
	queue Queue
}

func NewDispatcher(queue Queue) *Dispatcher {
	return &Dispatcher{queue: queue}
}

func (d *Dispatcher) EnqueuePayment(ctx context.Context, paymentID string) (*Job, error) {
	return d.queue.Enqueue(ctx, QueuePayment, JobTypeProcessPayment, PaymentJob{PaymentID: paymentID})
}

func (d *Dispatcher) EnqueueRefund(ctx context.Context, refundID string) (*Job, error) {
	return d.queue.Enqueue(ctx, QueueRefund, JobTypeProcessRefund, RefundJob{RefundID: refundID})
}

func (d *Dispatcher) EnqueueWebhook(ctx context.Context, job WebhookJob, delay time.Duration) (*Job, error) {
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	return d.queue.Enqueue(ctx, QueueWebhook, JobTypeDeliverWebhook, job, WithDelay(delay))
}

// Status sums counts over every gateway queue.
func (d *Dispatcher) Status(ctx context.Context) (map[string]Counts, Counts, error) {
	perQueue := make(map[string]Counts, len(Queues))
	var total Counts
	for _, name := range Queues {
		c, err := d.queue.Counts(ctx, name)
		if err != nil {
			return nil, Counts{}, err
		}
		perQueue[name] = c
		total = total.Add(c)
	}
	return perQueue, total, nil
}
