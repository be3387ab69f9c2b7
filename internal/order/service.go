package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	errs "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/common/validation"
	orderDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/order"
)

var ErrNotFound = errors.New("order not found")

type RepositoryAPI interface {
	Create(ctx context.Context, o *orderDatamodel.Order) error
	GetByID(ctx context.Context, id string) (*orderDatamodel.Order, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) CreateOrder(ctx context.Context, merchantID string, dto *CreateOrderDTO) (*Order, error) {
	if err := validation.ValidateOrderAmount(dto.Amount); err != nil {
		return nil, err
	}
	if dto.Currency != "" {
		if err := validation.ValidateCurrency(dto.Currency); err != nil {
			return nil, err
		}
	}

	o := NewOrder(merchantID, dto.Amount, dto.Currency, dto.Receipt)
	if err := s.repo.Create(ctx, ToDataModel(o)); err != nil {
		s.logger.Error("failed to create order", "error", err, "merchant_id", merchantID)
		return nil, errs.NewInternalError("failed to create order", err)
	}

	s.logger.Info("order created", "order_id", o.ID, "merchant_id", merchantID, "amount", o.Amount)
	return o, nil
}

// GetOrder returns the order only when it belongs to merchantID; other
// merchants' orders are reported as not found.
func (s *Service) GetOrder(ctx context.Context, merchantID, orderID string) (*Order, error) {
	data, err := s.repo.GetByID(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		return nil, errs.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	o := FromDataModel(data)
	if !o.BelongsTo(merchantID) {
		return nil, errs.ErrOrderNotFound
	}
	return o, nil
}
