package refund

import "time"

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

type Refund struct {
	ID          string     `gorm:"column:id;primaryKey;size:64"`
	PaymentID   string     `gorm:"column:payment_id;not null;index;size:64"`
	MerchantID  string     `gorm:"column:merchant_id;not null;index;size:64"`
	Amount      int64      `gorm:"column:amount;not null"`
	Reason      *string    `gorm:"column:reason"`
	Status      string     `gorm:"column:status;not null;index;size:20"`
	ProcessedAt *time.Time `gorm:"column:processed_at"`
	Announced   bool       `gorm:"column:announced;not null;default:false"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Refund) TableName() string {
	return "refunds"
}

func (r *Refund) AwaitsAnnouncement() bool {
	return !r.Announced && r.Status != StatusPending
}
