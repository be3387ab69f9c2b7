package idempotency

import "time"

// IdempotencyKey caches the response produced for a client key, scoped per merchant.
type IdempotencyKey struct {
	Key        string    `gorm:"column:key;primaryKey;size:255"`
	MerchantID string    `gorm:"column:merchant_id;primaryKey;size:64"`
	StatusCode int       `gorm:"column:status_code;not null"`
	Response   []byte    `gorm:"column:response;not null"`
	ExpiresAt  time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (IdempotencyKey) TableName() string {
	return "idempotency_keys"
}

func (k *IdempotencyKey) Expired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}
