package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type oidcFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	requests *atomic.Int32
}

func newOIDCFixture(t *testing.T, cacheControl string) oidcFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "svc-key", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}

	requests := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if cacheControl != "" {
			w.Header().Set("Cache-Control", cacheControl)
		}
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)

	return oidcFixture{key: key, server: server, requests: requests}
}

func (f oidcFixture) sign(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"aud":   "https://api.example.com",
		"iss":   "https://accounts.google.com",
		"sub":   "1234567890",
		"email": "scheduler@project.iam.gserviceaccount.com",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "svc-key"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func serveOIDC(validator *OIDCValidator, token string) *httptest.ResponseRecorder {
	handler := validator.RequireOIDC("https://api.example.com", GoogleIssuers)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := ServiceIdentityFromContext(r.Context())
		if !ok || identity.Email == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/idempotency-cleanup", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestJWKSCacheHonoursMaxAge(t *testing.T) {
	fixture := newOIDCFixture(t, "public, max-age=3600")
	now := time.Unix(1_000_000, 0)
	cache := NewJWKSCache(fixture.server.URL, WithJWKSClock(func() time.Time { return now }))

	ctx := context.Background()
	got, err := cache.Key(ctx, "svc-key")
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if _, ok := got.(*rsa.PublicKey); !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", got)
	}
	if _, err := cache.Key(ctx, "svc-key"); err != nil {
		t.Fatalf("second Key: %v", err)
	}
	if n := fixture.requests.Load(); n != 1 {
		t.Fatalf("expected single fetch, got %d", n)
	}

	now = now.Add(2 * time.Hour)
	if _, err := cache.Key(ctx, "svc-key"); err != nil {
		t.Fatalf("Key after expiry: %v", err)
	}
	if n := fixture.requests.Load(); n != 2 {
		t.Fatalf("expected refresh after max-age, got %d fetches", n)
	}
}

func TestJWKSCacheUnknownKid(t *testing.T) {
	fixture := newOIDCFixture(t, "max-age=600")
	cache := NewJWKSCache(fixture.server.URL)

	if _, err := cache.Key(context.Background(), "rotated"); err == nil {
		t.Fatalf("expected error for unknown kid")
	}
}

func TestMaxAge(t *testing.T) {
	cases := map[string]time.Duration{
		"max-age=60":                time.Minute,
		"public, max-age=19845":     19845 * time.Second,
		"no-store":                  0,
		"max-age=abc":               0,
		"must-revalidate,max-age=1": time.Second,
	}
	for header, want := range cases {
		if got := maxAge(header); got != want {
			t.Fatalf("maxAge(%q) = %v, want %v", header, got, want)
		}
	}
}

func TestRequireOIDCAcceptsSchedulerToken(t *testing.T) {
	fixture := newOIDCFixture(t, "max-age=600")
	validator := NewOIDCValidator(NewJWKSCache(fixture.server.URL), nil)

	rr := serveOIDC(validator, fixture.sign(t, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRequireOIDCRejections(t *testing.T) {
	fixture := newOIDCFixture(t, "max-age=600")
	validator := NewOIDCValidator(NewJWKSCache(fixture.server.URL), nil)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{name: "missing token", token: "", status: http.StatusUnauthorized},
		{name: "garbage", token: "not-a-jwt", status: http.StatusUnauthorized},
		{name: "wrong audience", token: fixture.sign(t, func(c jwt.MapClaims) { c["aud"] = "https://other.example.com" }), status: http.StatusUnauthorized},
		{name: "wrong issuer", token: fixture.sign(t, func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }), status: http.StatusUnauthorized},
		{name: "expired", token: fixture.sign(t, func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Minute).Unix() }), status: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := serveOIDC(validator, tc.token)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestRequireOIDCKeySetUnavailable(t *testing.T) {
	fixture := newOIDCFixture(t, "max-age=600")
	token := fixture.sign(t, nil)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	validator := NewOIDCValidator(NewJWKSCache(broken.URL), nil)
	rr := serveOIDC(validator, token)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestRequireOIDCWithoutAudience(t *testing.T) {
	validator := NewOIDCValidator(NewJWKSCache("http://127.0.0.1:0"), nil)
	handler := validator.RequireOIDC("", nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/x", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
