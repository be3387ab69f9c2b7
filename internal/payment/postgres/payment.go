package postgres

import (
	"context"
	"errors"
	"time"

	errs "github.com/frahmantamala/payment-gateway/internal"
	idempotencyDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/idempotency"
	orderDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/order"
	paymentDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/payment-gateway/internal/payment"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *paymentDatamodel.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// CreateWithIdempotency stores the payment and the cached response in one
// transaction. A key already present rolls everything back with ErrKeyTaken.
func (r *PaymentRepository) CreateWithIdempotency(ctx context.Context, p *paymentDatamodel.Payment, entry *idempotencyDatamodel.IdempotencyKey) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(entry)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return paymentpkg.ErrKeyTaken
		}
		return tx.Create(p).Error
	})
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*paymentDatamodel.Payment, error) {
	var p paymentDatamodel.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, paymentpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]paymentDatamodel.Payment, int64, error) {
	var total int64
	q := r.db.WithContext(ctx).Model(&paymentDatamodel.Payment{}).Where("merchant_id = ?", merchantID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []paymentDatamodel.Payment
	err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&payments).Error
	return payments, total, err
}

// Settle moves a pending payment to its final status. It reports false when
// the payment had already left pending.
func (r *PaymentRepository) Settle(ctx context.Context, id, status string, errorCode, errorDescription *string) (bool, error) {
	var won bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&paymentDatamodel.Payment{}).
			Where("id = ? AND status = ?", id, paymentDatamodel.StatusPending).
			Updates(map[string]interface{}{
				"status":            status,
				"error_code":        errorCode,
				"error_description": errorDescription,
				"updated_at":        time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		won = res.RowsAffected == 1
		if !won || status != paymentDatamodel.StatusSuccess {
			return nil
		}

		var p paymentDatamodel.Payment
		if err := tx.Select("order_id").Where("id = ?", id).First(&p).Error; err != nil {
			return err
		}
		return tx.Model(&orderDatamodel.Order{}).
			Where("id = ?", p.OrderID).
			Update("status", orderDatamodel.StatusPaid).Error
	})
	return won, err
}

func (r *PaymentRepository) MarkCaptured(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&paymentDatamodel.Payment{}).
		Where("id = ? AND status = ? AND captured = ?", id, paymentDatamodel.StatusSuccess, false).
		Updates(map[string]interface{}{
			"captured":   true,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *PaymentRepository) MarkAnnounced(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&paymentDatamodel.Payment{}).
		Where("id = ?", id).
		Update("announced", true).Error
}

// AbandonUnqueued undoes a create whose job never reached the queue: the
// cached response is dropped so a retry starts fresh, and the payment is
// failed so it is never left pending without a job.
func (r *PaymentRepository) AbandonUnqueued(ctx context.Context, id, idempotencyKey, merchantID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if idempotencyKey != "" {
			if err := tx.Where("key = ? AND merchant_id = ?", idempotencyKey, merchantID).
				Delete(&idempotencyDatamodel.IdempotencyKey{}).Error; err != nil {
				return err
			}
		}
		return tx.Model(&paymentDatamodel.Payment{}).
			Where("id = ? AND status = ?", id, paymentDatamodel.StatusPending).
			Updates(map[string]interface{}{
				"status":            paymentDatamodel.StatusFailed,
				"error_code":        string(errs.ErrCodeEnqueueFailed),
				"error_description": "Payment could not be scheduled for processing",
				"updated_at":        time.Now().UTC(),
			}).Error
	})
}
