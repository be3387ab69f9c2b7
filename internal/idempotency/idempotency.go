// Package idempotency replays the first response produced for a client
// supplied Idempotency-Key instead of repeating the side effect.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	datamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/idempotency"
)

const (
	HeaderKey = "Idempotency-Key"
	TTL       = 24 * time.Hour
)

var ErrNotFound = errors.New("idempotency key not found")

type RepositoryAPI interface {
	Get(ctx context.Context, key, merchantID string) (*datamodel.IdempotencyKey, error)
	Delete(ctx context.Context, key, merchantID string) error
	Upsert(ctx context.Context, entry *datamodel.IdempotencyKey) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Result tells the caller whether to replay a stored response or proceed.
type Result struct {
	Replay     bool
	StatusCode int
	Response   []byte
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Check(ctx context.Context, key, merchantID string) (Result, error) {
	if key == "" {
		return Result{}, nil
	}

	entry, err := s.repo.Get(ctx, key, merchantID)
	if errors.Is(err, ErrNotFound) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to load idempotency key: %w", err)
	}

	if entry.Expired(s.now()) {
		if err := s.repo.Delete(ctx, key, merchantID); err != nil {
			return Result{}, fmt.Errorf("failed to delete expired idempotency key: %w", err)
		}
		s.logger.Debug("expired idempotency key removed", "merchant_id", merchantID)
		return Result{}, nil
	}

	s.logger.Info("replaying idempotent response", "merchant_id", merchantID, "status_code", entry.StatusCode)
	return Result{Replay: true, StatusCode: entry.StatusCode, Response: entry.Response}, nil
}

func (s *Service) Commit(ctx context.Context, key, merchantID string, statusCode int, response []byte) error {
	if key == "" {
		return nil
	}
	if err := s.repo.Upsert(ctx, s.NewEntry(key, merchantID, statusCode, response)); err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}

// NewEntry builds the row for callers that persist it inside their own transaction.
func (s *Service) NewEntry(key, merchantID string, statusCode int, response []byte) *datamodel.IdempotencyKey {
	return NewEntry(key, merchantID, statusCode, response, s.now())
}

func NewEntry(key, merchantID string, statusCode int, response []byte, now time.Time) *datamodel.IdempotencyKey {
	return &datamodel.IdempotencyKey{
		Key:        key,
		MerchantID: merchantID,
		StatusCode: statusCode,
		Response:   response,
		ExpiresAt:  now.Add(TTL),
		CreatedAt:  now,
	}
}

func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
