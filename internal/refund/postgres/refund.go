package postgres

import (
	"context"
	"errors"
	"time"

	idempotencyDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/idempotency"
	paymentDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	refundDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/refund"
	refundpkg "github.com/frahmantamala/payment-gateway/internal/refund"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) refundpkg.RepositoryAPI {
	return &RefundRepository{
		db: db,
	}
}

func lockPayment(tx *gorm.DB, id string) (*paymentDatamodel.Payment, error) {
	var p paymentDatamodel.Payment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, refundpkg.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// reserved sums pending and processed refunds of a payment, optionally
// leaving one refund out.
func reserved(tx *gorm.DB, paymentID, excludeID string) (int64, error) {
	var sum int64
	q := tx.Model(&refundDatamodel.Refund{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("payment_id = ? AND status IN ?", paymentID, []string{refundDatamodel.StatusPending, refundDatamodel.StatusProcessed})
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Scan(&sum).Error
	return sum, err
}

// CreateLocked holds the payment row lock while the refund is validated and
// inserted, so concurrent creates cannot oversubscribe the payment. The
// idempotency entry from remember is inserted in the same transaction; a key
// that already exists rolls the refund back with ErrKeyTaken.
func (r *RefundRepository) CreateLocked(ctx context.Context, paymentID string, create refundpkg.CreateFunc, remember refundpkg.RememberFunc) (*refundDatamodel.Refund, error) {
	var out *refundDatamodel.Refund
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, paymentID)
		if err != nil {
			return err
		}
		sum, err := reserved(tx, paymentID, "")
		if err != nil {
			return err
		}

		row, err := create(p, sum)
		if err != nil {
			return err
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}

		entry, err := remember(row)
		if err != nil {
			return err
		}
		if entry != nil {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(entry)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return refundpkg.ErrKeyTaken
			}
		}
		out = row
		return nil
	})
	return out, err
}

func (r *RefundRepository) GetByID(ctx context.Context, id string) (*refundDatamodel.Refund, error) {
	var rf refundDatamodel.Refund
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, refundpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rf, nil
}

// Finalize moves a pending refund to the status chosen by decide. Once the
// processed refunds cover the whole payment, the payment becomes refunded.
// The bool is false when the refund was no longer pending.
func (r *RefundRepository) Finalize(ctx context.Context, id string, decide refundpkg.DecideFunc, now time.Time) (*refundDatamodel.Refund, bool, error) {
	var (
		out     refundDatamodel.Refund
		changed bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var probe refundDatamodel.Refund
		if err := tx.Select("payment_id").Where("id = ?", id).First(&probe).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return refundpkg.ErrNotFound
			}
			return err
		}

		p, err := lockPayment(tx, probe.PaymentID)
		if err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).First(&out).Error; err != nil {
			return err
		}
		if out.Status != refundDatamodel.StatusPending {
			return nil
		}

		others, err := reserved(tx, p.ID, id)
		if err != nil {
			return err
		}

		status := decide(p, &out, others)
		updates := map[string]interface{}{"status": status, "updated_at": now}
		if status == refundDatamodel.StatusProcessed {
			updates["processed_at"] = now
		}
		if err := tx.Model(&refundDatamodel.Refund{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		changed = true

		out.Status = status
		if status == refundDatamodel.StatusProcessed {
			processedAt := now
			out.ProcessedAt = &processedAt
			return markFullyRefunded(tx, p)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, changed, nil
}

func markFullyRefunded(tx *gorm.DB, p *paymentDatamodel.Payment) error {
	var processed int64
	if err := tx.Model(&refundDatamodel.Refund{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("payment_id = ? AND status = ?", p.ID, refundDatamodel.StatusProcessed).
		Scan(&processed).Error; err != nil {
		return err
	}
	if processed != p.Amount {
		return nil
	}
	return tx.Model(&paymentDatamodel.Payment{}).
		Where("id = ? AND status = ?", p.ID, paymentDatamodel.StatusSuccess).
		Updates(map[string]interface{}{
			"status":     paymentDatamodel.StatusRefunded,
			"updated_at": time.Now().UTC(),
		}).Error
}

// Abandon fails a refund whose job never reached the queue, releasing its
// share of the payment, and drops its idempotency entry so a retry starts fresh.
func (r *RefundRepository) Abandon(ctx context.Context, id, idempotencyKey, merchantID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if idempotencyKey != "" {
			if err := tx.Where("key = ? AND merchant_id = ?", idempotencyKey, merchantID).
				Delete(&idempotencyDatamodel.IdempotencyKey{}).Error; err != nil {
				return err
			}
		}
		return tx.Model(&refundDatamodel.Refund{}).
			Where("id = ? AND status = ?", id, refundDatamodel.StatusPending).
			Updates(map[string]interface{}{
				"status":     refundDatamodel.StatusFailed,
				"updated_at": time.Now().UTC(),
			}).Error
	})
}

func (r *RefundRepository) MarkAnnounced(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&refundDatamodel.Refund{}).
		Where("id = ?", id).
		Update("announced", true).Error
}
