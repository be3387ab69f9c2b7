package refund

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	errs "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/common/ids"
	"github.com/frahmantamala/payment-gateway/internal/core/common/validation"
	idempotencyDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/idempotency"
	paymentDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	refundDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/refund"
	"github.com/frahmantamala/payment-gateway/internal/idempotency"
	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
)

var (
	ErrNotFound        = errors.New("refund not found")
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrKeyTaken means another request committed the same idempotency key first.
	ErrKeyTaken = errors.New("idempotency key already committed")
)

// CreateFunc validates a refund against the locked payment and the amount
// already reserved by pending and processed refunds, and builds the row.
type CreateFunc func(p *paymentDatamodel.Payment, reserved int64) (*refundDatamodel.Refund, error)

// DecideFunc returns the final status for a pending refund, given the locked
// payment and what the other refunds of that payment reserve.
type DecideFunc func(p *paymentDatamodel.Payment, r *refundDatamodel.Refund, reservedByOthers int64) string

// RememberFunc builds the idempotency entry for a freshly inserted refund, or
// nil when the request carried no key.
type RememberFunc func(r *refundDatamodel.Refund) (*idempotencyDatamodel.IdempotencyKey, error)

type RepositoryAPI interface {
	CreateLocked(ctx context.Context, paymentID string, create CreateFunc, remember RememberFunc) (*refundDatamodel.Refund, error)
	GetByID(ctx context.Context, id string) (*refundDatamodel.Refund, error)
	Finalize(ctx context.Context, id string, decide DecideFunc, now time.Time) (*refundDatamodel.Refund, bool, error)
	Abandon(ctx context.Context, id, idempotencyKey, merchantID string) error
	MarkAnnounced(ctx context.Context, id string) error
}

type IdempotencyStore interface {
	Check(ctx context.Context, key, merchantID string) (idempotency.Result, error)
	NewEntry(key, merchantID string, statusCode int, response []byte) *idempotencyDatamodel.IdempotencyKey
}

type Enqueuer interface {
	EnqueueRefund(ctx context.Context, refundID string) (*jobqueue.Job, error)
}

type Service struct {
	repo        RepositoryAPI
	idempotency IdempotencyStore
	queue       Enqueuer
	logger      *slog.Logger
}

func NewService(repo RepositoryAPI, idem IdempotencyStore, queue Enqueuer, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		idempotency: idem,
		queue:       queue,
		logger:      logger,
	}
}

// Refundable is the rule shared by creation and settlement: the payment
// succeeded and the refund fits in what is left of it.
func Refundable(p *paymentDatamodel.Payment, amount, reserved int64) error {
	if p.Status != paymentDatamodel.StatusSuccess {
		return errs.ErrNotRefundable
	}
	if amount+reserved > p.Amount {
		return errs.ErrRefundExceeds
	}
	return nil
}

func (s *Service) CreateRefund(ctx context.Context, merchantID, paymentID, idempotencyKey string, dto *CreateRefundDTO) (*CreateResult, error) {
	if res, err := s.idempotency.Check(ctx, idempotencyKey, merchantID); err != nil {
		return nil, errs.NewInternalError("failed to check idempotency key", err)
	} else if res.Replay {
		return &CreateResult{StatusCode: res.StatusCode, Body: res.Response, Replayed: true}, nil
	}

	v := validation.NewValidator()
	v.Field("amount", dto.Amount).MinInt(1, errs.ErrCodeBadRequest)
	if err := v.Validate(); err != nil {
		return nil, err
	}

	// the refund row and its idempotency entry commit together under the
	// payment lock; a request losing the key race replays the winner
	var body []byte
	remember := func(r *refundDatamodel.Refund) (*idempotencyDatamodel.IdempotencyKey, error) {
		var err error
		if body, err = json.Marshal(FromDataModel(r)); err != nil {
			return nil, fmt.Errorf("failed to encode refund: %w", err)
		}
		if idempotencyKey == "" {
			return nil, nil
		}
		return s.idempotency.NewEntry(idempotencyKey, merchantID, http.StatusCreated, body), nil
	}

	row, err := s.repo.CreateLocked(ctx, paymentID, func(p *paymentDatamodel.Payment, reserved int64) (*refundDatamodel.Refund, error) {
		if p.MerchantID != merchantID {
			return nil, errs.ErrPaymentNotFound
		}
		if err := Refundable(p, dto.Amount, reserved); err != nil {
			return nil, err
		}
		return &refundDatamodel.Refund{
			ID:         ids.NewRefundID(),
			PaymentID:  p.ID,
			MerchantID: merchantID,
			Amount:     dto.Amount,
			Reason:     dto.Reason,
			Status:     refundDatamodel.StatusPending,
		}, nil
	}, remember)
	if errors.Is(err, ErrKeyTaken) {
		return s.replayWinner(ctx, merchantID, idempotencyKey)
	}
	if errors.Is(err, ErrPaymentNotFound) {
		return nil, errs.ErrPaymentNotFound
	}
	if err != nil {
		if _, ok := errs.IsAppError(err); ok {
			return nil, err
		}
		return nil, errs.NewInternalError("failed to create refund", err)
	}

	if _, err := s.queue.EnqueueRefund(ctx, row.ID); err != nil {
		s.logger.Error("failed to enqueue refund", "error", err, "refund_id", row.ID)
		if aerr := s.repo.Abandon(context.WithoutCancel(ctx), row.ID, idempotencyKey, merchantID); aerr != nil {
			s.logger.Error("failed to release unqueued refund", "error", aerr, "refund_id", row.ID)
		}
		return nil, errs.ErrQueueUnavailable.WithCause(err)
	}

	s.logger.Info("refund created",
		"refund_id", row.ID,
		"payment_id", paymentID,
		"merchant_id", merchantID,
		"amount", row.Amount)

	return &CreateResult{StatusCode: http.StatusCreated, Body: body}, nil
}

func (s *Service) replayWinner(ctx context.Context, merchantID, key string) (*CreateResult, error) {
	res, err := s.idempotency.Check(ctx, key, merchantID)
	if err != nil {
		return nil, errs.NewInternalError("failed to check idempotency key", err)
	}
	if !res.Replay {
		return nil, errs.NewConflictError("Idempotency key is already in use", errs.ErrCodeBadRequest)
	}
	return &CreateResult{StatusCode: res.StatusCode, Body: res.Response, Replayed: true}, nil
}

func (s *Service) GetRefund(ctx context.Context, merchantID, refundID string) (*Refund, error) {
	row, err := s.repo.GetByID(ctx, refundID)
	if errors.Is(err, ErrNotFound) {
		return nil, errs.ErrRefundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load refund %s: %w", refundID, err)
	}

	r := FromDataModel(row)
	if !r.BelongsTo(merchantID) {
		return nil, errs.ErrRefundNotFound
	}
	return r, nil
}
