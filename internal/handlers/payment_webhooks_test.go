package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/payments"
	"github.com/atelier-gallery/api/internal/services"
)

type stubWebhookVerifier struct {
	event     payments.Event
	err       error
	gotHeader string
}

func (s *stubWebhookVerifier) Verify(_ []byte, header string) (payments.Event, error) {
	s.gotHeader = header
	return s.event, s.err
}

func postWebhook(t *testing.T, h *PaymentWebhookHandlers, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := mountRoutes("/webhooks", h.Routes)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/stripe", strings.NewReader(body))
	req.Header.Set(payments.StripeSignatureHeader, "t=1,v1=abc")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func paidOrderLookup(total int64, currency string) func(context.Context, services.GetOrderQuery) (services.Order, error) {
	return func(_ context.Context, query services.GetOrderQuery) (services.Order, error) {
		return services.Order{
			ID:       query.OrderID,
			Currency: currency,
			Totals:   domain.OrderTotals{Subtotal: total, Total: total},
		}, nil
	}
}

func TestPaymentWebhookAppliesPaymentStatus(t *testing.T) {
	cases := []struct {
		status payments.Status
		want   domain.PaymentStatus
	}{
		{payments.StatusSucceeded, domain.PaymentStatusPaid},
		{payments.StatusFailed, domain.PaymentStatusFailed},
		{payments.StatusRefunded, domain.PaymentStatusRefunded},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			var captured services.UpdateOrderStatusCommand
			orders := &stubOrderService{
				getFn: paidOrderLookup(108000, "USD"),
				updateFn: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
					captured = cmd
					return services.Order{ID: cmd.OrderID}, nil
				},
			}
			verifier := &stubWebhookVerifier{event: payments.Event{ID: "evt_1", Type: "x", OrderID: "ord_1", Status: tc.status, Amount: 108000, Currency: "usd"}}
			rr := postWebhook(t, NewPaymentWebhookHandlers(verifier, orders), `{"id":"evt_1"}`)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			if verifier.gotHeader != "t=1,v1=abc" {
				t.Fatalf("signature header not forwarded, got %q", verifier.gotHeader)
			}
			if captured.Actor != services.SystemActor || captured.OrderID != "ord_1" || captured.Status != nil {
				t.Fatalf("unexpected command %+v", captured)
			}
			if captured.PaymentStatus == nil || *captured.PaymentStatus != tc.want {
				t.Fatalf("expected payment status %q, got %v", tc.want, captured.PaymentStatus)
			}
			if decodeBody(t, rr)["applied"] != true {
				t.Fatalf("expected applied ack, got %s", rr.Body.String())
			}
		})
	}
}

func TestPaymentWebhookIgnoresCaptureThatDoesNotMatchOrder(t *testing.T) {
	cases := []struct {
		name     string
		amount   int64
		currency string
	}{
		{name: "wrong amount", amount: 1, currency: "USD"},
		{name: "wrong currency", amount: 108000, currency: "JPY"},
		{name: "both wrong", amount: 1, currency: "JPY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var lookedUp services.GetOrderQuery
			updated := false
			orders := &stubOrderService{
				getFn: func(ctx context.Context, query services.GetOrderQuery) (services.Order, error) {
					lookedUp = query
					return paidOrderLookup(108000, "USD")(ctx, query)
				},
				updateFn: func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error) {
					updated = true
					return services.Order{}, nil
				},
			}
			verifier := &stubWebhookVerifier{event: payments.Event{
				ID:       "evt_4",
				Type:     "payment_intent.succeeded",
				OrderID:  "ord_1",
				Status:   payments.StatusSucceeded,
				Amount:   tc.amount,
				Currency: tc.currency,
			}}
			rr := postWebhook(t, NewPaymentWebhookHandlers(verifier, orders), `{"id":"evt_4"}`)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			if lookedUp.OrderID != "ord_1" || lookedUp.Actor != services.SystemActor {
				t.Fatalf("unexpected lookup %+v", lookedUp)
			}
			if updated {
				t.Fatal("mismatched capture must not change the order")
			}
			body := decodeBody(t, rr)
			if body["received"] != true {
				t.Fatalf("expected received ack, got %s", rr.Body.String())
			}
			if _, applied := body["applied"]; applied {
				t.Fatalf("mismatched capture should not report applied")
			}
		})
	}
}

func TestPaymentWebhookOrderLookupErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "missing order is acknowledged", err: services.ErrOrderNotFound, status: http.StatusOK},
		{name: "transient failure asks for retry", err: services.ErrOrderUnavailable, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			updated := false
			orders := &stubOrderService{
				getFn: func(context.Context, services.GetOrderQuery) (services.Order, error) {
					return services.Order{}, tc.err
				},
				updateFn: func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error) {
					updated = true
					return services.Order{}, nil
				},
			}
			verifier := &stubWebhookVerifier{event: payments.Event{ID: "evt_5", OrderID: "ord_x", Status: payments.StatusSucceeded, Amount: 100, Currency: "USD"}}
			rr := postWebhook(t, NewPaymentWebhookHandlers(verifier, orders), `{"id":"evt_5"}`)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if updated {
				t.Fatal("status must not change when the order cannot be read")
			}
		})
	}
}

func TestPaymentWebhookRejectsInvalidSignature(t *testing.T) {
	verifier := &stubWebhookVerifier{err: fmt.Errorf("%w: bad", payments.ErrInvalidSignature)}
	rr := postWebhook(t, NewPaymentWebhookHandlers(verifier, &stubOrderService{}), `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if decodeBody(t, rr)["error"] != "invalid_signature" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestPaymentWebhookAcknowledgesIgnoredEvents(t *testing.T) {
	called := false
	orders := &stubOrderService{
		updateFn: func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error) {
			called = true
			return services.Order{}, nil
		},
	}
	verifier := &stubWebhookVerifier{event: payments.Event{ID: "evt_2", Type: "customer.created"}}
	rr := postWebhook(t, NewPaymentWebhookHandlers(verifier, orders), `{"id":"evt_2"}`)
	if rr.Code != http.StatusOK || called {
		t.Fatalf("expected silent ack, status %d called %v", rr.Code, called)
	}
	if _, applied := decodeBody(t, rr)["applied"]; applied {
		t.Fatalf("ignored event should not report applied")
	}
}

func TestPaymentWebhookOrderErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "missing order is acknowledged", err: services.ErrOrderNotFound, status: http.StatusOK},
		{name: "transient failure asks for retry", err: services.ErrOrderUnavailable, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &stubOrderService{
				getFn: paidOrderLookup(100, "USD"),
				updateFn: func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			verifier := &stubWebhookVerifier{event: payments.Event{ID: "evt_3", OrderID: "ord_x", Status: payments.StatusSucceeded, Amount: 100, Currency: "USD"}}
			rr := postWebhook(t, NewPaymentWebhookHandlers(verifier, orders), `{"id":"evt_3"}`)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestPaymentWebhookBodyLimits(t *testing.T) {
	h := NewPaymentWebhookHandlers(&stubWebhookVerifier{}, &stubOrderService{})
	if rr := postWebhook(t, h, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", rr.Code)
	}
	large := `{"pad":"` + strings.Repeat("x", maxWebhookBodySize) + `"}`
	if rr := postWebhook(t, h, large); rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestPaymentWebhookUnconfigured(t *testing.T) {
	rr := postWebhook(t, NewPaymentWebhookHandlers(nil, &stubOrderService{}), `{}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
