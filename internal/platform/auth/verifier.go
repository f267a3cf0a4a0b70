package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the bearer token failed verification for any other reason.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// VerifiedToken is the backend-neutral result of a successful bearer token verification.
type VerifiedToken struct {
	Subject  string
	Claims   map[string]any
	Provider string
}

// TokenVerifier checks a raw bearer token and returns its subject and claims.
// Implementations wrap failures with ErrTokenExpired or ErrTokenInvalid.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (VerifiedToken, error)
}

// TokenVerifierFunc adapts a function to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, raw string) (VerifiedToken, error)

// Verify implements TokenVerifier.
func (f TokenVerifierFunc) Verify(ctx context.Context, raw string) (VerifiedToken, error) {
	return f(ctx, raw)
}

const (
	mockSubjectPrefix = "mock-"
	mockAdminPrefix   = "admin-"
)

// MockVerifier accepts any non-empty token. The subject becomes "mock-<token>" and tokens
// starting with "admin-" carry the admin role. Only wired when the memory backend is selected.
type MockVerifier struct{}

// Verify implements TokenVerifier.
func (MockVerifier) Verify(_ context.Context, raw string) (VerifiedToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return VerifiedToken{}, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}
	role := RoleUser
	if strings.HasPrefix(raw, mockAdminPrefix) {
		role = RoleAdmin
	}
	return VerifiedToken{
		Subject:  mockSubjectPrefix + raw,
		Claims:   map[string]any{defaultRoleClaim: role},
		Provider: "mock",
	}, nil
}

// JWTVerifier validates HS256 tokens signed with a shared secret. The subject comes from the
// "sub" claim and roles from the "role" claim.
type JWTVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// JWTOption customises JWTVerifier instances.
type JWTOption func(*JWTVerifier)

// WithJWTIssuer requires the "iss" claim to equal issuer.
func WithJWTIssuer(issuer string) JWTOption {
	return func(v *JWTVerifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// WithJWTClock overrides the clock used for expiry checks.
func WithJWTClock(now func() time.Time) JWTOption {
	return func(v *JWTVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewJWTVerifier constructs a verifier for HS256 tokens.
func NewJWTVerifier(secret string, opts ...JWTOption) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	verifier := &JWTVerifier{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier, nil
}

// Verify implements TokenVerifier.
func (v *JWTVerifier) Verify(_ context.Context, raw string) (VerifiedToken, error) {
	if v == nil {
		return VerifiedToken{}, fmt.Errorf("%w: verifier not configured", ErrTokenInvalid)
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return VerifiedToken{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := v.now().Unix()
	if !claims.VerifyExpiresAt(now, false) {
		return VerifiedToken{}, fmt.Errorf("%w: token is expired", ErrTokenExpired)
	}
	if !claims.VerifyNotBefore(now, false) || !claims.VerifyIssuedAt(now, false) {
		return VerifiedToken{}, fmt.Errorf("%w: token used before issued", ErrTokenInvalid)
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return VerifiedToken{}, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}

	subject := claimAsString(claims, "sub")
	if subject == "" {
		return VerifiedToken{}, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}

	return VerifiedToken{Subject: subject, Claims: map[string]any(claims), Provider: "jwt"}, nil
}
