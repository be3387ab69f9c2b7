package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentSuccess  = "payment.success"
	EventTypePaymentFailed   = "payment.failed"
	EventTypeRefundProcessed = "refund.processed"
	EventTypeRefundFailed    = "refund.failed"
	EventTypeWebhookTest     = "webhook.test"
)

// MerchantEventTypes lists the events forwarded to merchant webhooks.
var MerchantEventTypes = []string{
	EventTypePaymentSuccess,
	EventTypePaymentFailed,
	EventTypeRefundProcessed,
	EventTypeRefundFailed,
	EventTypeWebhookTest,
}

// MerchantEvent is an outcome a merchant should be notified about. Body is
// the object placed under "data" in the webhook envelope.
type MerchantEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	MerchantID string    `json:"merchant_id"`
	Timestamp  time.Time `json:"timestamp"`
	Body       any       `json:"body"`
}

func (e *MerchantEvent) EventType() string { return e.Type }
func (e *MerchantEvent) EventID() string   { return e.ID }

func NewMerchantEvent(eventType, merchantID string, body any) *MerchantEvent {
	return &MerchantEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		MerchantID: merchantID,
		Timestamp:  time.Now(),
		Body:       body,
	}
}

// Envelope is the exact body POSTed to merchants. Field order is part of the
// wire format, so it is a struct rather than a map.
type Envelope struct {
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Encode serializes the envelope once. The returned bytes are what gets
// signed and sent on every attempt.
func (e Envelope) Encode() (json.RawMessage, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", e.Event, err)
	}
	return raw, nil
}

func EnvelopeFor(event *MerchantEvent) Envelope {
	return Envelope{
		Event:     event.Type,
		Timestamp: event.Timestamp.Unix(),
		Data:      event.Body,
	}
}
