package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atelier-gallery/api/internal/platform/auth"
)

var fixedTime = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

func newOrderRequest(body, key, uid string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderName, key)
	}
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
	}
	return req
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"order":{"id":"o1"}}`))
	})
}

func TestMiddleware_PassesThroughWithoutKey(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store, WithClock(fixedClock))(countingHandler(&calls, http.StatusCreated))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newOrderRequest(`{"items":[]}`, "", "u1"))
		if rr.Code != http.StatusCreated {
			t.Fatalf("unexpected status %d", rr.Code)
		}
	}
	if calls != 2 || store.Len() != 0 {
		t.Fatalf("expected two handler calls and nothing stored, got calls=%d stored=%d", calls, store.Len())
	}
}

func TestMiddleware_RequiredKey(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithRequiredKey())(countingHandler(&calls, http.StatusCreated))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest(`{}`, "", "u1"))
	if rr.Code != http.StatusBadRequest || calls != 0 {
		t.Fatalf("expected 400 without handler call, got %d calls=%d", rr.Code, calls)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_required")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest(`{}`, "has space", "u1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid key, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "invalid_idempotency_key")
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store, WithClock(fixedClock))(countingHandler(&calls, http.StatusCreated))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newOrderRequest(`{"items":[1]}`, "key-1", "u1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, newOrderRequest(`{"items":[1]}`, "key-1", "u1"))

	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("expected identical replay, got %d %q", second.Code, second.Body.String())
	}
	if second.Header().Get(ReplayHeader) != "true" {
		t.Fatal("expected replay header")
	}
	if first.Header().Get(ReplayHeader) != "" {
		t.Fatal("first response must not be marked as replay")
	}
}

func TestMiddleware_KeysAreScopedPerCaller(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store, WithClock(fixedClock))(countingHandler(&calls, http.StatusCreated))

	handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest(`{}`, "shared", "u1"))
	handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest(`{}`, "shared", "u2"))
	if calls != 2 {
		t.Fatalf("expected separate callers not to share keys, got %d calls", calls)
	}
}

func TestMiddleware_DifferentBodyConflicts(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store, WithClock(fixedClock))(countingHandler(&calls, http.StatusCreated))

	handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest(`{"items":[1]}`, "key-1", "u1"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest(`{"items":[2]}`, "key-1", "u1"))

	if rr.Code != http.StatusConflict || calls != 1 {
		t.Fatalf("expected 409 without second call, got %d calls=%d", rr.Code, calls)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddleware_PendingReservationConflicts(t *testing.T) {
	store := &stubStore{reservation: Reservation{State: ReservationStatePending}}
	var calls int
	handler := Middleware(store)(countingHandler(&calls, http.StatusCreated))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest(`{}`, "key-1", "u1"))
	if rr.Code != http.StatusConflict || calls != 0 {
		t.Fatalf("expected 409, got %d calls=%d", rr.Code, calls)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddleware_ServerErrorsAreNotStored(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store, WithClock(fixedClock))(countingHandler(&calls, http.StatusServiceUnavailable))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newOrderRequest(`{}`, "key-1", "u1"))
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("unexpected status %d", rr.Code)
		}
	}
	if calls != 2 || store.Len() != 0 {
		t.Fatalf("expected retry to reach the handler, calls=%d stored=%d", calls, store.Len())
	}
}

func TestMiddleware_SaveFailureStillReturnsResponse(t *testing.T) {
	store := &stubStore{reservation: Reservation{State: ReservationStateNew}, saveErr: errors.New("firestore down")}
	var calls int
	handler := Middleware(store)(countingHandler(&calls, http.StatusCreated))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest(`{}`, "key-1", "u1"))
	if rr.Code != http.StatusCreated || calls != 1 {
		t.Fatalf("expected handler response, got %d calls=%d", rr.Code, calls)
	}
	if store.released != 1 {
		t.Fatalf("expected key release after failed save, got %d", store.released)
	}
}

func TestMiddleware_ReserveFailure(t *testing.T) {
	store := &stubStore{reserveErr: errors.New("unavailable")}
	var calls int
	handler := Middleware(store)(countingHandler(&calls, http.StatusCreated))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest(`{}`, "key-1", "u1"))
	if rr.Code != http.StatusServiceUnavailable || calls != 0 {
		t.Fatalf("expected 503, got %d calls=%d", rr.Code, calls)
	}
}

func TestMiddleware_SafeMethodsBypass(t *testing.T) {
	store := &stubStore{reserveErr: errors.New("must not be called")}
	var calls int
	handler := Middleware(store)(countingHandler(&calls, http.StatusOK))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set(HeaderName, "key-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || calls != 1 {
		t.Fatalf("expected GET to bypass the store, got %d", rr.Code)
	}
}

func TestMemoryStoreExpiryAndCleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Reserve(ctx, "a", "fp", fixedTime, time.Minute); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := store.Reserve(ctx, "b", "fp", fixedTime, time.Hour); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	// an expired key can be reused for a different request
	res, err := store.Reserve(ctx, "a", "other", fixedTime.Add(2*time.Minute), time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected fresh reservation, got %+v err=%v", res, err)
	}

	removed, err := store.CleanupExpired(ctx, fixedTime.Add(2*time.Hour), 10)
	if err != nil || removed != 2 || store.Len() != 0 {
		t.Fatalf("expected both records removed, got %d err=%v len=%d", removed, err, store.Len())
	}
}

func TestCleanerPurgesInBatches(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		if _, err := store.Reserve(ctx, key, "fp", fixedTime, time.Minute); err != nil {
			t.Fatalf("Reserve: %v", err)
		}
	}
	cleaner := NewCleaner(store, 2, nil)
	cleaner.clock = func() time.Time { return fixedTime.Add(time.Hour) }

	removed, err := cleaner.Purge(ctx, 0)
	if err != nil || removed != 5 {
		t.Fatalf("expected 5 removed, got %d err=%v", removed, err)
	}
}

type stubStore struct {
	reservation Reservation
	reserveErr  error
	saveErr     error
	released    int
}

func (s *stubStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	return s.reservation, s.reserveErr
}

func (s *stubStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	return s.saveErr
}

func (s *stubStore) Release(context.Context, string) error {
	s.released++
	return nil
}

func (s *stubStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func assertErrorCode(t *testing.T, payload []byte, expected string) {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if code, _ := body["error"].(string); !strings.EqualFold(code, expected) {
		t.Fatalf("expected error %q, got %v", expected, body["error"])
	}
}
