package order

import "time"

const (
	StatusCreated = "created"
	StatusPaid    = "paid"
)

type Order struct {
	ID         string    `gorm:"column:id;primaryKey;size:64"`
	MerchantID string    `gorm:"column:merchant_id;not null;index;size:64"`
	Amount     int64     `gorm:"column:amount;not null"`
	Currency   string    `gorm:"column:currency;not null;size:3"`
	Receipt    *string   `gorm:"column:receipt;size:255"`
	Status     string    `gorm:"column:status;not null;size:20"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}
