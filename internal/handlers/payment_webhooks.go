package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/payments"
	"github.com/atelier-gallery/api/internal/platform/httpx"
	"github.com/atelier-gallery/api/internal/platform/requestctx"
	"github.com/atelier-gallery/api/internal/services"
)

const maxWebhookBodySize = 64 * 1024

var paymentStatusByEvent = map[payments.Status]domain.PaymentStatus{
	payments.StatusSucceeded: domain.PaymentStatusPaid,
	payments.StatusFailed:    domain.PaymentStatusFailed,
	payments.StatusRefunded:  domain.PaymentStatusRefunded,
}

// PaymentWebhookHandlers applies PSP notifications to orders.
type PaymentWebhookHandlers struct {
	stripe payments.WebhookVerifier
	orders services.OrderService
}

// NewPaymentWebhookHandlers constructs the webhook handlers.
func NewPaymentWebhookHandlers(stripe payments.WebhookVerifier, orders services.OrderService) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{stripe: stripe, orders: orders}
}

// Routes registers the /webhooks endpoints.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/stripe", h.handleStripe)
}

func (h *PaymentWebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)
	if h.stripe == nil || h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "payment webhooks are not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}

	event, err := h.stripe.Verify(body, r.Header.Get(payments.StripeSignatureHeader))
	switch {
	case errors.Is(err, payments.ErrInvalidSignature):
		logger.Warn("stripe webhook signature rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	case err != nil:
		logger.Warn("stripe webhook payload rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "webhook payload could not be decoded", http.StatusBadRequest))
		return
	}

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("order_id", event.OrderID),
		zap.String("payment_intent", event.IntentID),
	}
	if !event.Actionable() {
		logger.Debug("stripe webhook acknowledged without action", fields...)
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	if event.Status == payments.StatusSucceeded {
		order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{Actor: services.SystemActor, OrderID: event.OrderID})
		switch {
		case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrOrderInvalidInput):
			logger.Warn("stripe webhook references unusable order", append(fields, zap.Error(err))...)
			writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
			return
		case err != nil:
			logger.Error("stripe webhook order lookup failed", append(fields, zap.Error(err))...)
			writeOrderError(ctx, w, err)
			return
		}
		if !paymentMatchesOrder(event, order) {
			// the order stays unpaid until a capture for the full total arrives
			logger.Warn("stripe webhook amount does not match order",
				append(fields,
					zap.Int64("event_amount", event.Amount),
					zap.String("event_currency", event.Currency),
					zap.Int64("order_total", order.Totals.Total),
					zap.String("order_currency", order.Currency),
				)...)
			writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
			return
		}
	}

	status := paymentStatusByEvent[event.Status]
	_, err = h.orders.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{
		Actor:         services.SystemActor,
		OrderID:       event.OrderID,
		PaymentStatus: &status,
	})
	switch {
	case err == nil:
		logger.Info("stripe webhook applied", append(fields, zap.String("payment_status", string(status)))...)
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, Applied: true})
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrOrderInvalidInput):
		// retrying cannot succeed; acknowledge so Stripe stops redelivering
		logger.Warn("stripe webhook references unusable order", append(fields, zap.Error(err))...)
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
	default:
		logger.Error("stripe webhook processing failed", append(fields, zap.Error(err))...)
		writeOrderError(ctx, w, err)
	}
}

func paymentMatchesOrder(event payments.Event, order services.Order) bool {
	return event.Amount == order.Totals.Total && strings.EqualFold(strings.TrimSpace(event.Currency), order.Currency)
}

type webhookAck struct {
	Received bool `json:"received"`
	Applied  bool `json:"applied,omitempty"`
}
