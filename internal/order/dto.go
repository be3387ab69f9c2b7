package order

type CreateOrderDTO struct {
	Amount   int64   `json:"amount"`
	Currency string  `json:"currency"`
	Receipt  *string `json:"receipt"`
}
