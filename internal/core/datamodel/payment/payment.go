package payment

import "time"

const (
	StatusPending  = "pending"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusRefunded = "refunded"

	MethodUPI  = "upi"
	MethodCard = "card"
)

type Payment struct {
	ID               string    `gorm:"column:id;primaryKey;size:64"`
	OrderID          string    `gorm:"column:order_id;not null;index;size:64"`
	MerchantID       string    `gorm:"column:merchant_id;not null;index;size:64"`
	Amount           int64     `gorm:"column:amount;not null"`
	Currency         string    `gorm:"column:currency;not null;size:3"`
	Method           string    `gorm:"column:method;not null;size:20"`
	VPA              *string   `gorm:"column:vpa;size:255"`
	CardNetwork      *string   `gorm:"column:card_network;size:20"`
	CardLast4        *string   `gorm:"column:card_last4;size:4"`
	Status           string    `gorm:"column:status;not null;index;size:20"`
	ErrorCode        *string   `gorm:"column:error_code;size:50"`
	ErrorDescription *string   `gorm:"column:error_description"`
	Captured         bool      `gorm:"column:captured;not null;default:false"`
	Announced        bool      `gorm:"column:announced;not null;default:false"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) IsTerminal() bool {
	return p.Status != StatusPending
}

// AwaitsAnnouncement reports a settlement whose merchant event was never
// published.
func (p *Payment) AwaitsAnnouncement() bool {
	return !p.Announced && (p.Status == StatusSuccess || p.Status == StatusFailed)
}
