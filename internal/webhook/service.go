package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	errs "github.com/frahmantamala/payment-gateway/internal"
	webhookDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/webhook"
	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

var (
	ErrNotFound = errors.New("webhook log not found")
	// ErrStaleGeneration means the log was restarted by a manual retry.
	ErrStaleGeneration = errors.New("webhook log generation changed")
)

type RepositoryAPI interface {
	CreateIfAbsent(ctx context.Context, l *webhookDatamodel.WebhookLog) error
	GetByID(ctx context.Context, id string) (*webhookDatamodel.WebhookLog, error)
	RecordAttempt(ctx context.Context, id string, generation int, rec AttemptRecord) error
	ResetForRetry(ctx context.Context, id string, generation int) (int, error)
	List(ctx context.Context, merchantID, status string, limit, offset int) ([]webhookDatamodel.WebhookLog, int64, error)
}

type Enqueuer interface {
	EnqueueWebhook(ctx context.Context, job jobqueue.WebhookJob, delay time.Duration) (*jobqueue.Job, error)
}

type Service struct {
	repo   RepositoryAPI
	queue  Enqueuer
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, queue Enqueuer, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		queue:  queue,
		logger: logger,
	}
}

func (s *Service) ListWebhooks(ctx context.Context, merchantID, status string, limit, offset int) (*ListResponse, error) {
	switch status {
	case "", webhookDatamodel.StatusPending, webhookDatamodel.StatusSuccess, webhookDatamodel.StatusFailed:
	default:
		return nil, errs.NewValidationFieldError("status", "status must be one of pending, success, failed", errs.ErrCodeBadRequest)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, total, err := s.repo.List(ctx, merchantID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook logs: %w", err)
	}

	data := make([]*Log, 0, len(rows))
	for i := range rows {
		data = append(data, FromDataModel(&rows[i]))
	}
	return &ListResponse{Data: data, Total: total, Limit: limit, Offset: offset}, nil
}

// RetryWebhook restarts delivery of a logged webhook from attempt 1 with the
// stored payload.
func (s *Service) RetryWebhook(ctx context.Context, merchantID, logID string) (*RetryResponse, error) {
	l, err := s.repo.GetByID(ctx, logID)
	if errors.Is(err, ErrNotFound) {
		return nil, errs.ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook log %s: %w", logID, err)
	}
	if l.MerchantID != merchantID {
		return nil, errs.ErrWebhookNotFound
	}

	generation, err := s.repo.ResetForRetry(ctx, logID, l.Generation)
	if errors.Is(err, ErrStaleGeneration) {
		return nil, errs.ErrWebhookRetryRace
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reset webhook log %s: %w", logID, err)
	}

	job := jobqueue.WebhookJob{
		MerchantID: l.MerchantID,
		Event:      l.Event,
		Payload:    []byte(l.Payload),
		Attempt:    1,
		LogID:      l.ID,
		Generation: generation,
	}
	if _, err := s.queue.EnqueueWebhook(ctx, job, 0); err != nil {
		return nil, errs.ErrQueueUnavailable.WithCause(err)
	}

	s.logger.Info("webhook retry scheduled", "webhook_id", logID, "merchant_id", merchantID, "event", l.Event)
	return &RetryResponse{ID: l.ID, Status: webhookDatamodel.StatusPending, Message: "Webhook retry scheduled"}, nil
}
