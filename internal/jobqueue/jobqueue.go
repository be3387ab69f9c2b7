// Package jobqueue provides named, durable job queues with delayed delivery and
// at-least-once semantics, plus the worker pool that drains them.
//
// A dequeued job stays active for a visibility timeout. If the worker neither
// completes nor fails it in time (crash, kill -9), the job becomes eligible
// again and its Attempt counter grows. Handlers must therefore be safe to re-run.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	QueuePayment = "payment-processing"
	QueueRefund  = "refund-processing"
	QueueWebhook = "webhook-delivery"

	JobTypeProcessPayment = "process-payment"
	JobTypeProcessRefund  = "process-refund"
	JobTypeDeliverWebhook = "deliver-webhook"

	DefaultVisibilityTimeout = 5 * time.Minute
	DefaultPollInterval      = 500 * time.Millisecond

	// JobTTL bounds how long finished job bodies are retained by backends that expire them.
	JobTTL = 24 * time.Hour
)

// Queues lists every queue the gateway drains.
var Queues = []string{QueuePayment, QueueRefund, QueueWebhook}

var (
	ErrNoJob       = errors.New("jobqueue: no job available")
	ErrJobNotFound = errors.New("jobqueue: job not found")
	// ErrRedeliver asks the pool to leave the job claimed instead of failing
	// it, so it runs again once the visibility timeout lapses.
	ErrRedeliver = errors.New("jobqueue: redeliver job")
)

type JobStatus string

const (
	StatusWaiting   JobStatus = "waiting"
	StatusActive    JobStatus = "active"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

type Job struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq"`
	Queue     string          `json:"queue"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	Status    JobStatus       `json:"status"`
	RunAt     time.Time       `json:"run_at"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Error     string          `json:"error,omitempty"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload for job %s: %w", j.Type, j.ID, err)
	}
	return nil
}

// Counts is the per-queue tally exposed for operational status endpoints.
type Counts struct {
	Waiting   int64 `json:"waiting" db:"waiting"`
	Active    int64 `json:"active" db:"active"`
	Completed int64 `json:"completed" db:"completed"`
	Failed    int64 `json:"failed" db:"failed"`
	Delayed   int64 `json:"delayed" db:"delayed"`
}

func (c Counts) Add(o Counts) Counts {
	return Counts{
		Waiting:   c.Waiting + o.Waiting,
		Active:    c.Active + o.Active,
		Completed: c.Completed + o.Completed,
		Failed:    c.Failed + o.Failed,
		Delayed:   c.Delayed + o.Delayed,
	}
}

type Queue interface {
	Enqueue(ctx context.Context, queue, jobType string, payload any, opts ...EnqueueOption) (*Job, error)
	Dequeue(ctx context.Context, queue string) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	Fail(ctx context.Context, job *Job, cause error) error
	Counts(ctx context.Context, queue string) (Counts, error)
}

// Handler processes one job. A nil return completes the job, an error fails it.
type Handler func(ctx context.Context, job *Job) error

type enqueueOptions struct {
	delay time.Duration
}

type EnqueueOption func(*enqueueOptions)

// WithDelay makes the job visible no earlier than now+d.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

func buildOptions(opts []EnqueueOption) enqueueOptions {
	var o enqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newJob(queue, jobType string, payload any, now time.Time, opts []EnqueueOption) (*Job, error) {
	if queue == "" || jobType == "" {
		return nil, errors.New("jobqueue: queue and job type are required")
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &Job{
		ID:        uuid.NewString(),
		Queue:     queue,
		Type:      jobType,
		Payload:   raw,
		Status:    StatusWaiting,
		RunAt:     now.Add(o.delay),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("jobqueue: encode payload: %w", err)
		}
		return raw, nil
	}
}

func errorText(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}
