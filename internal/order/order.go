package order

import (
	"time"

	"github.com/frahmantamala/payment-gateway/internal/core/common/ids"
	orderDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/order"
)

const DefaultCurrency = "INR"

type Order struct {
	ID         string    `json:"id"`
	MerchantID string    `json:"merchant_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Receipt    *string   `json:"receipt"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewOrder(merchantID string, amount int64, currency string, receipt *string) *Order {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Order{
		ID:         ids.NewOrderID(),
		MerchantID: merchantID,
		Amount:     amount,
		Currency:   currency,
		Receipt:    receipt,
		Status:     orderDatamodel.StatusCreated,
		CreatedAt:  time.Now().UTC(),
	}
}

func (o *Order) BelongsTo(merchantID string) bool {
	return o.MerchantID == merchantID
}

func ToDataModel(o *Order) *orderDatamodel.Order {
	return &orderDatamodel.Order{
		ID:         o.ID,
		MerchantID: o.MerchantID,
		Amount:     o.Amount,
		Currency:   o.Currency,
		Receipt:    o.Receipt,
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
	}
}

func FromDataModel(o *orderDatamodel.Order) *Order {
	return &Order{
		ID:         o.ID,
		MerchantID: o.MerchantID,
		Amount:     o.Amount,
		Currency:   o.Currency,
		Receipt:    o.Receipt,
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
	}
}
