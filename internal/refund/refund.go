package refund

import (
	"time"

	refundDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/refund"
)

type Refund struct {
	ID          string     `json:"id"`
	PaymentID   string     `json:"payment_id"`
	MerchantID  string     `json:"-"`
	Amount      int64      `json:"amount"`
	Reason      *string    `json:"reason"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

func (r *Refund) BelongsTo(merchantID string) bool {
	return r.MerchantID == merchantID
}

func FromDataModel(r *refundDatamodel.Refund) *Refund {
	return &Refund{
		ID:          r.ID,
		PaymentID:   r.PaymentID,
		MerchantID:  r.MerchantID,
		Amount:      r.Amount,
		Reason:      r.Reason,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		ProcessedAt: r.ProcessedAt,
	}
}
