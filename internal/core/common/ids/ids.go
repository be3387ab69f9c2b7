package ids

import (
	"strings"

	"github.com/google/uuid"
)

const (
	PrefixOrder   = "order_"
	PrefixPayment = "pay_"
	PrefixRefund  = "rfnd_"
)

// New returns prefix followed by 16 random lowercase hex characters.
func New(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + hex[:16]
}

func NewOrderID() string   { return New(PrefixOrder) }
func NewPaymentID() string { return New(PrefixPayment) }
func NewRefundID() string  { return New(PrefixRefund) }
