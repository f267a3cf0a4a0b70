// Package payments turns payment service provider webhooks into provider-neutral events.
package payments

import "errors"

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusSucceeded indicates the PSP reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded in full.
	StatusRefunded Status = "refunded"
)

// OrderIDMetadataKey is the metadata key the storefront sets on payment intents.
const OrderIDMetadataKey = "order_id"

var (
	// ErrInvalidSignature is returned when a webhook payload fails signature verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrMalformedEvent is returned when a signed payload cannot be decoded.
	ErrMalformedEvent = errors.New("payments: malformed webhook event")
)

// Event is a verified webhook notification. Status is empty for events that do not change
// the payment state of an order; those are acknowledged and otherwise ignored.
type Event struct {
	ID       string
	Type     string
	Provider string
	OrderID  string
	IntentID string
	Status   Status
	Amount   int64
	Currency string
}

// Actionable reports whether the event names an order and a payment transition.
func (e Event) Actionable() bool {
	return e.OrderID != "" && e.Status != ""
}

// WebhookVerifier authenticates and decodes a raw webhook delivery.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (Event, error)
}
