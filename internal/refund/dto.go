package refund

type CreateRefundDTO struct {
	Amount int64   `json:"amount"`
	Reason *string `json:"reason,omitempty"`
}

// CreateResult mirrors the payment create result so both endpoints replay
// stored bytes the same way.
type CreateResult struct {
	StatusCode int
	Body       []byte
	Replayed   bool
}
