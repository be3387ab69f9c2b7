package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	errs "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/common/validation"
	idempotencyDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/idempotency"
	paymentDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-gateway/internal/idempotency"
	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
	"github.com/frahmantamala/payment-gateway/internal/order"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

var (
	ErrNotFound = errors.New("payment not found")
	// ErrKeyTaken means another request committed the same idempotency key first.
	ErrKeyTaken = errors.New("idempotency key already committed")
)

type RepositoryAPI interface {
	Create(ctx context.Context, p *paymentDatamodel.Payment) error
	CreateWithIdempotency(ctx context.Context, p *paymentDatamodel.Payment, entry *idempotencyDatamodel.IdempotencyKey) error
	GetByID(ctx context.Context, id string) (*paymentDatamodel.Payment, error)
	ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]paymentDatamodel.Payment, int64, error)
	Settle(ctx context.Context, id, status string, errorCode, errorDescription *string) (bool, error)
	MarkCaptured(ctx context.Context, id string) (bool, error)
	MarkAnnounced(ctx context.Context, id string) error
	AbandonUnqueued(ctx context.Context, id, idempotencyKey, merchantID string) error
}

type OrderReader interface {
	GetOrder(ctx context.Context, merchantID, orderID string) (*order.Order, error)
}

type IdempotencyStore interface {
	Check(ctx context.Context, key, merchantID string) (idempotency.Result, error)
	Commit(ctx context.Context, key, merchantID string, statusCode int, response []byte) error
	NewEntry(key, merchantID string, statusCode int, response []byte) *idempotencyDatamodel.IdempotencyKey
}

type Enqueuer interface {
	EnqueuePayment(ctx context.Context, paymentID string) (*jobqueue.Job, error)
}

type Service struct {
	repo        RepositoryAPI
	orders      OrderReader
	idempotency IdempotencyStore
	queue       Enqueuer
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(repo RepositoryAPI, orders OrderReader, idem IdempotencyStore, queue Enqueuer, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		orders:      orders,
		idempotency: idem,
		queue:       queue,
		logger:      logger,
		now:         time.Now,
	}
}

// CreatePayment validates the request against the order, stores a pending
// payment and schedules it for settlement. With an idempotency key the payment
// row and the cached response commit together, and a repeated key replays the
// first response byte for byte.
func (s *Service) CreatePayment(ctx context.Context, merchantID, idempotencyKey string, dto *CreatePaymentDTO) (*CreateResult, error) {
	if res, err := s.idempotency.Check(ctx, idempotencyKey, merchantID); err != nil {
		return nil, errs.NewInternalError("failed to check idempotency key", err)
	} else if res.Replay {
		return &CreateResult{StatusCode: res.StatusCode, Body: res.Response, Replayed: true}, nil
	}

	o, err := s.orders.GetOrder(ctx, merchantID, dto.OrderID)
	if err != nil {
		return nil, err
	}

	p := newPending(merchantID, o.ID, o.Amount, o.Currency, dto.Method)
	if err := s.applyMethod(p, dto); err != nil {
		return nil, err
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, errs.NewInternalError("failed to encode payment", err)
	}

	row := ToDataModel(p)
	if idempotencyKey == "" {
		err = s.repo.Create(ctx, row)
	} else {
		err = s.repo.CreateWithIdempotency(ctx, row, s.idempotency.NewEntry(idempotencyKey, merchantID, http.StatusCreated, body))
	}
	if errors.Is(err, ErrKeyTaken) {
		return s.replayWinner(ctx, merchantID, idempotencyKey)
	}
	if err != nil {
		s.logger.Error("failed to create payment", "error", err, "merchant_id", merchantID, "order_id", o.ID)
		return nil, errs.NewInternalError("failed to create payment", err)
	}

	if _, err := s.queue.EnqueuePayment(ctx, p.ID); err != nil {
		s.logger.Error("failed to enqueue payment", "error", err, "payment_id", p.ID)
		if cerr := s.repo.AbandonUnqueued(context.WithoutCancel(ctx), p.ID, idempotencyKey, merchantID); cerr != nil {
			s.logger.Error("failed to roll back unqueued payment", "error", cerr, "payment_id", p.ID)
		}
		return nil, errs.ErrQueueUnavailable.WithCause(err)
	}

	s.logger.Info("payment created",
		"payment_id", p.ID,
		"order_id", o.ID,
		"merchant_id", merchantID,
		"method", p.Method,
		"amount", p.Amount)

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

func (s *Service) applyMethod(p *Payment, dto *CreatePaymentDTO) error {
	switch dto.Method {
	case paymentDatamodel.MethodUPI:
		if !validation.ValidVPA(dto.VPA) {
			return errs.NewValidationFieldError("vpa", "VPA format invalid", errs.ErrCodeInvalidVPA)
		}
		vpa := dto.VPA
		p.VPA = &vpa

	case paymentDatamodel.MethodCard:
		if !dto.Card.complete() {
			return errs.ErrMissingCardDetail
		}
		if !validation.ValidLuhn(dto.Card.Number) {
			return errs.NewValidationFieldError("card.number", "Card validation failed", errs.ErrCodeInvalidCard)
		}
		if !validation.ValidExpiry(dto.Card.ExpiryMonth, dto.Card.ExpiryYear, s.now()) {
			return errs.NewValidationFieldError("card.expiry", "Card expiry date invalid", errs.ErrCodeExpiredCard)
		}
		network := validation.CardNetwork(dto.Card.Number)
		last4 := validation.CardLast4(dto.Card.Number)
		p.CardNetwork = &network
		p.CardLast4 = &last4

	default:
		return errs.ErrInvalidPayMethod
	}
	return nil
}

func (s *Service) GetPayment(ctx context.Context, merchantID, paymentID string) (*Payment, error) {
	row, err := s.repo.GetByID(ctx, paymentID)
	if errors.Is(err, ErrNotFound) {
		return nil, errs.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}

	p := FromDataModel(row)
	if !p.BelongsTo(merchantID) {
		return nil, errs.ErrPaymentNotFound
	}
	return p, nil
}

// ListPayments returns the merchant's payments, newest first.
func (s *Service) ListPayments(ctx context.Context, merchantID string, limit, offset int) (*ListResponse, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, total, err := s.repo.ListByMerchant(ctx, merchantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	data := make([]*Payment, 0, len(rows))
	for i := range rows {
		data = append(data, FromDataModel(&rows[i]))
	}
	return &ListResponse{Data: data, Total: total, Limit: limit, Offset: offset}, nil
}

// CapturePayment flags a successful payment as captured. Only one capture
// wins; with an idempotency key a retried capture replays the first response.
func (s *Service) CapturePayment(ctx context.Context, merchantID, paymentID, idempotencyKey string) (*CreateResult, error) {
	if res, err := s.idempotency.Check(ctx, idempotencyKey, merchantID); err != nil {
		return nil, errs.NewInternalError("failed to check idempotency key", err)
	} else if res.Replay {
		return &CreateResult{StatusCode: res.StatusCode, Body: res.Response, Replayed: true}, nil
	}

	p, err := s.GetPayment(ctx, merchantID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != paymentDatamodel.StatusSuccess || p.Captured {
		return nil, errs.ErrNotCapturable
	}

	ok, err := s.repo.MarkCaptured(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to capture payment %s: %w", paymentID, err)
	}
	if !ok {
		return nil, errs.ErrNotCapturable
	}

	s.logger.Info("payment captured", "payment_id", paymentID, "merchant_id", merchantID)
	p, err = s.GetPayment(ctx, merchantID, paymentID)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment: %w", err)
	}

	// the capture already happened; a lost entry only costs the replay
	if err := s.idempotency.Commit(ctx, idempotencyKey, merchantID, http.StatusOK, body); err != nil {
		s.logger.Error("failed to store capture response", "error", err, "payment_id", paymentID)
	}
	return &CreateResult{StatusCode: http.StatusOK, Body: body}, nil
}
