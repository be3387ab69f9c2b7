package postgres

import (
	"context"
	"errors"
	"time"

	webhookDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/webhook"
	webhookpkg "github.com/frahmantamala/payment-gateway/internal/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookLogRepository struct {
	db *gorm.DB
}

func NewWebhookLogRepository(db *gorm.DB) webhookpkg.RepositoryAPI {
	return &WebhookLogRepository{
		db: db,
	}
}

func (r *WebhookLogRepository) CreateIfAbsent(ctx context.Context, l *webhookDatamodel.WebhookLog) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(l).Error
}

func (r *WebhookLogRepository) GetByID(ctx context.Context, id string) (*webhookDatamodel.WebhookLog, error) {
	var l webhookDatamodel.WebhookLog
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, webhookpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// RecordAttempt writes an attempt only while the log is still on generation.
func (r *WebhookLogRepository) RecordAttempt(ctx context.Context, id string, generation int, rec webhookpkg.AttemptRecord) error {
	res := r.db.WithContext(ctx).Model(&webhookDatamodel.WebhookLog{}).
		Where("id = ? AND generation = ?", id, generation).
		Updates(map[string]interface{}{
			"attempts":        rec.Attempts,
			"status":          rec.Status,
			"last_attempt_at": rec.LastAttemptAt,
			"next_retry_at":   rec.NextRetryAt,
			"response_code":   rec.ResponseCode,
			"response_body":   rec.ResponseBody,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrStale(ctx, id)
	}
	return nil
}

func (r *WebhookLogRepository) missOrStale(ctx context.Context, id string) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&webhookDatamodel.WebhookLog{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return webhookpkg.ErrNotFound
	}
	return webhookpkg.ErrStaleGeneration
}

// ResetForRetry restarts the log at attempt 0 on the next generation. It
// fails with ErrStaleGeneration when another retry got there first.
func (r *WebhookLogRepository) ResetForRetry(ctx context.Context, id string, generation int) (int, error) {
	res := r.db.WithContext(ctx).Model(&webhookDatamodel.WebhookLog{}).
		Where("id = ? AND generation = ?", id, generation).
		Updates(map[string]interface{}{
			"attempts":      0,
			"generation":    gorm.Expr("generation + 1"),
			"status":        webhookDatamodel.StatusPending,
			"next_retry_at": nil,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, r.missOrStale(ctx, id)
	}
	return generation + 1, nil
}

func (r *WebhookLogRepository) List(ctx context.Context, merchantID, status string, limit, offset int) ([]webhookDatamodel.WebhookLog, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("merchant_id = ?", merchantID)
		if status != "" {
			db = db.Where("status = ?", status)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&webhookDatamodel.WebhookLog{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []webhookDatamodel.WebhookLog
	err := r.db.WithContext(ctx).Scopes(scope).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&logs).Error
	return logs, total, err
}
