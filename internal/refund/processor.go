package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/payment-gateway/internal/core/common/simulation"
	paymentDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	refundDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/refund"
	"github.com/frahmantamala/payment-gateway/internal/core/events"
	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
)

type Publisher interface {
	PublishSync(ctx context.Context, event events.Event) error
}

type Processor struct {
	repo      RepositoryAPI
	delay     simulation.Delay
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewProcessor(repo RepositoryAPI, delay simulation.Delay, publisher Publisher, logger *slog.Logger) *Processor {
	return &Processor{
		repo:      repo,
		delay:     delay,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func decide(p *paymentDatamodel.Payment, r *refundDatamodel.Refund, reservedByOthers int64) string {
	if err := Refundable(p, r.Amount, reservedByOthers); err != nil {
		return refundDatamodel.StatusFailed
	}
	return refundDatamodel.StatusProcessed
}

func (p *Processor) Handle(ctx context.Context, job *jobqueue.Job) error {
	var payload jobqueue.RefundJob
	if err := job.Decode(&payload); err != nil {
		return err
	}
	log := p.logger.With("refund_id", payload.RefundID, "job_id", job.ID, "attempt", job.Attempt)

	row, err := p.repo.GetByID(ctx, payload.RefundID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("refund %s not found", payload.RefundID)
	}
	if err != nil {
		return fmt.Errorf("failed to load refund %s: %w", payload.RefundID, err)
	}
	if row.AwaitsAnnouncement() {
		log.Info("refund finalized but not announced, publishing again", "status", row.Status)
		return p.announce(ctx, log, row)
	}
	if row.Status != refundDatamodel.StatusPending {
		log.Info("refund already finalized, skipping", "status", row.Status)
		return nil
	}

	if err := p.delay.Sleep(ctx); err != nil {
		return err
	}

	row, changed, err := p.repo.Finalize(ctx, payload.RefundID, decide, p.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to finalize refund %s: %w", payload.RefundID, err)
	}
	if !changed {
		log.Info("refund finalized by another delivery, skipping")
		return nil
	}

	if row.Status == refundDatamodel.StatusFailed {
		log.Warn("refund no longer fits the payment, marked failed")
	}
	if err := p.announce(ctx, log, row); err != nil {
		return err
	}

	log.Info("refund finalized", "status", row.Status)
	return nil
}

func (p *Processor) announce(ctx context.Context, log *slog.Logger, row *refundDatamodel.Refund) error {
	eventType := events.EventTypeRefundProcessed
	if row.Status == refundDatamodel.StatusFailed {
		eventType = events.EventTypeRefundFailed
	}

	view := FromDataModel(row)
	event := events.NewMerchantEvent(eventType, view.MerchantID, map[string]any{"refund": view})
	if err := p.publisher.PublishSync(ctx, event); err != nil {
		return fmt.Errorf("failed to publish %s: %w: %w", eventType, err, jobqueue.ErrRedeliver)
	}

	if err := p.repo.MarkAnnounced(ctx, row.ID); err != nil {
		log.Error("failed to mark refund announced", "error", err)
	}
	return nil
}
