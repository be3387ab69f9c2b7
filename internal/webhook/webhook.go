package webhook

import (
	"encoding/json"
	"time"

	webhookDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/webhook"
)

type Log struct {
	ID            string          `json:"id"`
	MerchantID    string          `json:"-"`
	Event         string          `json:"event"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt *time.Time      `json:"last_attempt_at"`
	NextRetryAt   *time.Time      `json:"next_retry_at"`
	ResponseCode  *int            `json:"response_code"`
	ResponseBody  *string         `json:"response_body"`
	CreatedAt     time.Time       `json:"created_at"`
}

func FromDataModel(l *webhookDatamodel.WebhookLog) *Log {
	return &Log{
		ID:            l.ID,
		MerchantID:    l.MerchantID,
		Event:         l.Event,
		Payload:       json.RawMessage(l.Payload),
		Status:        l.Status,
		Attempts:      l.Attempts,
		LastAttemptAt: l.LastAttemptAt,
		NextRetryAt:   l.NextRetryAt,
		ResponseCode:  l.ResponseCode,
		ResponseBody:  l.ResponseBody,
		CreatedAt:     l.CreatedAt,
	}
}

// AttemptRecord is written after every delivery.
type AttemptRecord struct {
	Attempts      int
	Status        string
	LastAttemptAt time.Time
	NextRetryAt   *time.Time
	ResponseCode  *int
	ResponseBody  *string
}

type ListResponse struct {
	Data   []*Log `json:"data"`
	Total  int64  `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type RetryResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
