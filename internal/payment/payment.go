package payment

import (
	"time"

	"github.com/frahmantamala/payment-gateway/internal/core/common/ids"
	paymentDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
)

// Payment is the merchant facing view of a payment row.
type Payment struct {
	ID               string    `json:"id"`
	OrderID          string    `json:"order_id"`
	MerchantID       string    `json:"-"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Method           string    `json:"method"`
	VPA              *string   `json:"vpa,omitempty"`
	CardNetwork      *string   `json:"card_network,omitempty"`
	CardLast4        *string   `json:"card_last4,omitempty"`
	Status           string    `json:"status"`
	ErrorCode        *string   `json:"error_code,omitempty"`
	ErrorDescription *string   `json:"error_description,omitempty"`
	Captured         bool      `json:"captured"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (p *Payment) BelongsTo(merchantID string) bool {
	return p.MerchantID == merchantID
}

func (p *Payment) IsPending() bool {
	return p.Status == paymentDatamodel.StatusPending
}

func newPending(merchantID, orderID string, amount int64, currency, method string) *Payment {
	now := time.Now().UTC()
	return &Payment{
		ID:         ids.NewPaymentID(),
		OrderID:    orderID,
		MerchantID: merchantID,
		Amount:     amount,
		Currency:   currency,
		Method:     method,
		Status:     paymentDatamodel.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func FromDataModel(p *paymentDatamodel.Payment) *Payment {
	return &Payment{
		ID:               p.ID,
		OrderID:          p.OrderID,
		MerchantID:       p.MerchantID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Method:           p.Method,
		VPA:              p.VPA,
		CardNetwork:      p.CardNetwork,
		CardLast4:        p.CardLast4,
		Status:           p.Status,
		ErrorCode:        p.ErrorCode,
		ErrorDescription: p.ErrorDescription,
		Captured:         p.Captured,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func ToDataModel(p *Payment) *paymentDatamodel.Payment {
	return &paymentDatamodel.Payment{
		ID:               p.ID,
		OrderID:          p.OrderID,
		MerchantID:       p.MerchantID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Method:           p.Method,
		VPA:              p.VPA,
		CardNetwork:      p.CardNetwork,
		CardLast4:        p.CardLast4,
		Status:           p.Status,
		ErrorCode:        p.ErrorCode,
		ErrorDescription: p.ErrorDescription,
		Captured:         p.Captured,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}
