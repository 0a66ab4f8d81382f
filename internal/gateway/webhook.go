package gateway

import (
	"encoding/json"
	"fmt"
)

// EventKind is the closed set of webhook notification kinds the engine acts
// on. Anything else maps to EventUnrecognized, which callers log and
// acknowledge without action (the gateway retries on non-2xx).
type EventKind string

const (
	EventCheckoutCompleted EventKind = "checkout.completed"
	EventPaymentFailed     EventKind = "payment.failed"
	EventChargeRefunded    EventKind = "charge.refunded"
	EventUnrecognized      EventKind = "unrecognized"
)

// WebhookEvent is a decoded gateway notification.
type WebhookEvent struct {
	Kind          EventKind
	RawKind       string
	SessionID     string
	TransactionID string
	Amount        float64
}

// ParseWebhookEvent decodes a verified webhook payload into its tagged kind.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			SessionID     string  `json:"session_id"`
			TransactionID string  `json:"transaction_id"`
			Amount        float64 `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode webhook payload: %w", err)
	}

	event := WebhookEvent{
		RawKind:       payload.Event,
		SessionID:     payload.Data.SessionID,
		TransactionID: payload.Data.TransactionID,
		Amount:        payload.Data.Amount,
	}
	switch EventKind(payload.Event) {
	case EventCheckoutCompleted:
		event.Kind = EventCheckoutCompleted
	case EventPaymentFailed:
		event.Kind = EventPaymentFailed
	case EventChargeRefunded:
		event.Kind = EventChargeRefunded
	default:
		event.Kind = EventUnrecognized
	}
	return event, nil
}
