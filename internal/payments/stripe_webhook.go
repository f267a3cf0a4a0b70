package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeSignatureHeader carries the Stripe webhook signature.
const StripeSignatureHeader = "Stripe-Signature"

const (
	stripeEventIntentSucceeded = "payment_intent.succeeded"
	stripeEventIntentFailed    = "payment_intent.payment_failed"
	stripeEventChargeRefunded  = "charge.refunded"
)

// StripeWebhookVerifier checks Stripe-Signature headers with an endpoint signing secret.
type StripeWebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

// StripeOption customises StripeWebhookVerifier.
type StripeOption func(*StripeWebhookVerifier)

// WithStripeTolerance overrides how old a signed timestamp may be.
func WithStripeTolerance(d time.Duration) StripeOption {
	return func(v *StripeWebhookVerifier) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

// NewStripeWebhookVerifier constructs a verifier for the given signing secret (whsec_...).
func NewStripeWebhookVerifier(secret string, opts ...StripeOption) (*StripeWebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("stripe: webhook signing secret is required")
	}
	v := &StripeWebhookVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify validates the signature and maps payment intent and charge events. The event API
// version is not enforced; only the fields read here need to be present.
func (v *StripeWebhookVerifier) Verify(payload []byte, signatureHeader string) (Event, error) {
	if v == nil {
		return Event{}, errors.New("stripe: verifier is nil")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := Event{ID: event.ID, Type: string(event.Type), Provider: "stripe"}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case stripeEventIntentSucceeded, stripeEventIntentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return Event{}, fmt.Errorf("%w: payment intent: %v", ErrMalformedEvent, err)
		}
		out.IntentID = intent.ID
		out.OrderID = strings.TrimSpace(intent.Metadata[OrderIDMetadataKey])
		out.Amount = intent.Amount
		out.Currency = strings.ToUpper(string(intent.Currency))
		out.Status = StatusSucceeded
		if out.Type == stripeEventIntentFailed {
			out.Status = StatusFailed
		}
	case stripeEventChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return Event{}, fmt.Errorf("%w: charge: %v", ErrMalformedEvent, err)
		}
		if charge.PaymentIntent != nil {
			out.IntentID = charge.PaymentIntent.ID
		}
		out.OrderID = strings.TrimSpace(charge.Metadata[OrderIDMetadataKey])
		out.Amount = charge.AmountRefunded
		out.Currency = strings.ToUpper(string(charge.Currency))
		// partial refunds leave the order paid
		if charge.Refunded || (charge.Amount > 0 && charge.AmountRefunded >= charge.Amount) {
			out.Status = StatusRefunded
		}
	}
	return out, nil
}
