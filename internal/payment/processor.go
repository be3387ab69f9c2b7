package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	errs "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/common/simulation"
	paymentDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-gateway/internal/core/events"
	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
)

const failureDescription = "Payment processing failed"

type Publisher interface {
	PublishSync(ctx context.Context, event events.Event) error
}

// Processor settles pending payments. It is safe to run the same job more
// than once: only the first delivery moves the payment out of pending.
type Processor struct {
	repo      RepositoryAPI
	oracle    SettlementOracle
	delay     simulation.Delay
	publisher Publisher
	logger    *slog.Logger
}

func NewProcessor(repo RepositoryAPI, oracle SettlementOracle, delay simulation.Delay, publisher Publisher, logger *slog.Logger) *Processor {
	return &Processor{
		repo:      repo,
		oracle:    oracle,
		delay:     delay,
		publisher: publisher,
		logger:    logger,
	}
}

func (p *Processor) Handle(ctx context.Context, job *jobqueue.Job) error {
	var payload jobqueue.PaymentJob
	if err := job.Decode(&payload); err != nil {
		return err
	}
	log := p.logger.With("payment_id", payload.PaymentID, "job_id", job.ID, "attempt", job.Attempt)

	row, err := p.repo.GetByID(ctx, payload.PaymentID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("payment %s not found", payload.PaymentID)
	}
	if err != nil {
		return fmt.Errorf("failed to load payment %s: %w", payload.PaymentID, err)
	}
	if row.AwaitsAnnouncement() {
		log.Info("payment settled but not announced, publishing again", "status", row.Status)
		return p.announce(ctx, log, row)
	}
	if row.IsTerminal() {
		log.Info("payment already settled, skipping", "status", row.Status)
		return nil
	}

	if err := p.delay.Sleep(ctx); err != nil {
		return err
	}

	outcome, err := p.oracle.Settle(ctx, FromDataModel(row))
	if err != nil {
		return fmt.Errorf("settlement oracle: %w", err)
	}

	status := paymentDatamodel.StatusSuccess
	var code, description *string
	if !outcome.Success {
		status = paymentDatamodel.StatusFailed
		c, d := string(errs.ErrCodePaymentFailed), failureDescription
		code, description = &c, &d
	}

	won, err := p.repo.Settle(ctx, payload.PaymentID, status, code, description)
	if err != nil {
		return fmt.Errorf("failed to settle payment %s: %w", payload.PaymentID, err)
	}
	if !won {
		log.Info("payment settled by another delivery, skipping")
		return nil
	}

	row, err = p.repo.GetByID(ctx, payload.PaymentID)
	if err != nil {
		return fmt.Errorf("failed to reload payment %s: %w", payload.PaymentID, err)
	}
	if err := p.announce(ctx, log, row); err != nil {
		return err
	}

	log.Info("payment settled", "status", status)
	return nil
}

// announce publishes the settlement event. A failed publish leaves the job
// claimed, and the redelivery finds the payment still unannounced.
func (p *Processor) announce(ctx context.Context, log *slog.Logger, row *paymentDatamodel.Payment) error {
	view := FromDataModel(row)

	eventType := events.EventTypePaymentSuccess
	if row.Status == paymentDatamodel.StatusFailed {
		eventType = events.EventTypePaymentFailed
	}
	event := events.NewMerchantEvent(eventType, view.MerchantID, map[string]any{"payment": view})
	if err := p.publisher.PublishSync(ctx, event); err != nil {
		return fmt.Errorf("failed to publish %s: %w: %w", eventType, err, jobqueue.ErrRedeliver)
	}

	if err := p.repo.MarkAnnounced(ctx, row.ID); err != nil {
		log.Error("failed to mark payment announced", "error", err)
	}
	return nil
}
