package postgres

import (
	"context"
	"errors"
	"time"

	datamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/idempotency"
	"github.com/frahmantamala/payment-gateway/internal/idempotency"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IdempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) idempotency.RepositoryAPI {
	return &IdempotencyRepository{
		db: db,
	}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key, merchantID string) (*datamodel.IdempotencyKey, error) {
	var entry datamodel.IdempotencyKey
	err := r.db.WithContext(ctx).Where("key = ? AND merchant_id = ?", key, merchantID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, idempotency.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *IdempotencyRepository) Delete(ctx context.Context, key, merchantID string) error {
	return r.db.WithContext(ctx).
		Where("key = ? AND merchant_id = ?", key, merchantID).
		Delete(&datamodel.IdempotencyKey{}).Error
}

func (r *IdempotencyRepository) Upsert(ctx context.Context, entry *datamodel.IdempotencyKey) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}, {Name: "merchant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status_code", "response", "expires_at"}),
	}).Create(entry).Error
}

func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&datamodel.IdempotencyKey{})
	return res.RowsAffected, res.Error
}
