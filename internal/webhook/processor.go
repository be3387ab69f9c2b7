package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	errs "github.com/frahmantamala/payment-gateway/internal"
	webhookDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/webhook"
	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
	"github.com/frahmantamala/payment-gateway/internal/merchant"
)

type TargetResolver interface {
	WebhookTarget(ctx context.Context, merchantID string) (*merchant.WebhookTarget, error)
}

type Sender interface {
	Deliver(ctx context.Context, url, secret string, body []byte) Attempt
}

// Processor performs one delivery attempt per job and schedules the next
// attempt itself; the queue never retries a webhook job.
type Processor struct {
	repo      RepositoryAPI
	merchants TargetResolver
	sender    Sender
	queue     Enqueuer
	schedule  Schedule
	logger    *slog.Logger
	now       func() time.Time
}

func NewProcessor(repo RepositoryAPI, merchants TargetResolver, sender Sender, queue Enqueuer, schedule Schedule, logger *slog.Logger) *Processor {
	return &Processor{
		repo:      repo,
		merchants: merchants,
		sender:    sender,
		queue:     queue,
		schedule:  schedule,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

func (p *Processor) Handle(ctx context.Context, job *jobqueue.Job) error {
	var payload jobqueue.WebhookJob
	if err := job.Decode(&payload); err != nil {
		return err
	}
	if payload.Attempt < 1 {
		payload.Attempt = 1
	}

	target, err := p.merchants.WebhookTarget(ctx, payload.MerchantID)
	if errors.Is(err, errs.ErrMerchantNotFound) {
		return fmt.Errorf("merchant %s not found", payload.MerchantID)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve webhook target: %w", err)
	}
	if target.URL == "" {
		p.logger.Debug("merchant has no webhook url, skipping", "merchant_id", payload.MerchantID, "event", payload.Event)
		return nil
	}

	// the first attempt reuses the job id as log id so a redelivered job finds its own log
	if payload.LogID == "" {
		payload.LogID = job.ID
		err := p.repo.CreateIfAbsent(ctx, &webhookDatamodel.WebhookLog{
			ID:         job.ID,
			MerchantID: payload.MerchantID,
			Event:      payload.Event,
			Payload:    datatypes.JSON(payload.Payload),
			Status:     webhookDatamodel.StatusPending,
		})
		if err != nil {
			return fmt.Errorf("failed to create webhook log: %w", err)
		}
	}

	log := p.logger.With(
		"webhook_id", payload.LogID,
		"merchant_id", payload.MerchantID,
		"event", payload.Event,
		"attempt", payload.Attempt)

	entry, err := p.repo.GetByID(ctx, payload.LogID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("webhook log %s not found", payload.LogID)
	}
	if err != nil {
		return fmt.Errorf("failed to load webhook log %s: %w", payload.LogID, err)
	}
	if entry.Generation != payload.Generation {
		log.Info("webhook was retried manually, dropping superseded attempt",
			"generation", payload.Generation, "current_generation", entry.Generation)
		return nil
	}
	if entry.Status == webhookDatamodel.StatusSuccess {
		log.Info("webhook already delivered, skipping")
		return nil
	}
	if entry.Attempts >= payload.Attempt {
		return p.resumeRecorded(ctx, job, payload, entry, log)
	}

	result := p.sender.Deliver(ctx, target.URL, target.Secret, payload.Payload)
	now := p.now().UTC()

	rec := AttemptRecord{
		Attempts:      payload.Attempt,
		LastAttemptAt: now,
		ResponseCode:  result.StatusCode,
		ResponseBody:  &result.Body,
	}

	// every non-2xx attempt is recorded as failed; next_retry_at marks one still to come
	delay, retry := p.schedule.Next(payload.Attempt)
	rec.Status = webhookDatamodel.StatusFailed
	if result.Succeeded() {
		rec.Status = webhookDatamodel.StatusSuccess
	} else if retry {
		next := now.Add(delay)
		rec.NextRetryAt = &next
	}

	err = p.repo.RecordAttempt(ctx, payload.LogID, payload.Generation, rec)
	if errors.Is(err, ErrStaleGeneration) {
		log.Info("webhook was retried manually, dropping superseded attempt")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record webhook attempt: %w", err)
	}

	switch {
	case result.Succeeded():
		log.Info("webhook delivered", "response_code", result.Code())
		return nil
	case !retry:
		log.Warn("webhook delivery exhausted", "response_code", result.Code(), "error", result.Err)
		return nil
	}

	log.Warn("webhook delivery failed, retry scheduled",
		"response_code", result.Code(),
		"error", result.Err,
		"retry_in", delay)
	return p.enqueueNext(ctx, payload, delay)
}

// resumeRecorded handles a job whose attempt is already in the log. A job the
// queue redelivered may have crashed between recording and scheduling, so the
// next attempt is scheduled again; a fresh duplicate job does nothing.
func (p *Processor) resumeRecorded(ctx context.Context, job *jobqueue.Job, payload jobqueue.WebhookJob, entry *webhookDatamodel.WebhookLog, log *slog.Logger) error {
	if job.Attempt <= 1 || entry.NextRetryAt == nil || entry.Attempts >= MaxAttempts || entry.Attempts != payload.Attempt {
		log.Info("webhook attempt already recorded, skipping", "recorded_attempts", entry.Attempts)
		return nil
	}

	delay := entry.NextRetryAt.Sub(p.now())
	if delay < 0 {
		delay = 0
	}
	log.Warn("rescheduling webhook attempt lost by a crashed worker", "retry_in", delay)
	return p.enqueueNext(ctx, payload, delay)
}

func (p *Processor) enqueueNext(ctx context.Context, payload jobqueue.WebhookJob, delay time.Duration) error {
	next := payload
	next.Attempt = payload.Attempt + 1
	if _, err := p.queue.EnqueueWebhook(ctx, next, delay); err != nil {
		return fmt.Errorf("failed to schedule webhook attempt %d: %w", next.Attempt, err)
	}
	return nil
}
