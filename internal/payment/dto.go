package payment

type CardDTO struct {
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVV         string `json:"cvv"`
	HolderName  string `json:"holder_name"`
}

func (c *CardDTO) complete() bool {
	return c != nil &&
		c.Number != "" &&
		c.ExpiryMonth != "" &&
		c.ExpiryYear != "" &&
		c.CVV != "" &&
		c.HolderName != ""
}

type CreatePaymentDTO struct {
	OrderID string   `json:"order_id"`
	Method  string   `json:"method"`
	VPA     string   `json:"vpa,omitempty"`
	Card    *CardDTO `json:"card,omitempty"`
}

// CreateResult is what the create endpoint writes. Body is the exact bytes
// stored for idempotent replay.
type CreateResult struct {
	StatusCode int
	Body       []byte
	Replayed   bool
}

type ListResponse struct {
	Data   []*Payment `json:"data"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}
