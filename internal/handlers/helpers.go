package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atelier-gallery/api/internal/platform/auth"
	"github.com/atelier-gallery/api/internal/platform/httpx"
	"github.com/atelier-gallery/api/internal/platform/pagination"
	"github.com/atelier-gallery/api/internal/services"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

// Middleware is the standard net/http middleware shape used across route groups.
type Middleware = func(http.Handler) http.Handler

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// actorFromRequest resolves the authenticated caller. The second return is false when the
// request reached the handler without an identity.
func actorFromRequest(r *http.Request) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return services.Actor{}, false
	}
	return services.Actor{ID: strings.TrimSpace(identity.UID), Admin: identity.IsAdmin()}, true
}

func writeUnauthenticated(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
}

func parsePage(r *http.Request, defaultSize, maxSize int) (services.Pagination, error) {
	params, err := pagination.FromRequest(r, pagination.Options{DefaultPageSize: defaultSize, MaxPageSize: maxSize})
	if err != nil {
		return services.Pagination{}, err
	}
	return services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, nil
}

func writePaginationError(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func parseBoolParam(raw string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("must be true or false")
	}
	return &value, nil
}

func parseInt64Param(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("must be an integer amount in minor units")
	}
	return &value, nil
}

func parseLimitParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return value, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// validationError renders a services.ValidationError with the offending field paths so clients
// can highlight them. Other errors fall back to the plain message.
func validationError(code string, err error) httpx.Error {
	httpErr := httpx.NewError(code, err.Error(), http.StatusBadRequest)
	var verr *services.ValidationError
	if errors.As(err, &verr) && len(verr.Violations) > 0 {
		fields := make([]map[string]string, 0, len(verr.Violations))
		for _, v := range verr.Violations {
			fields = append(fields, map[string]string{"field": v.Field, "message": v.Message})
		}
		httpErr = httpErr.WithDetails(map[string]any{"fields": fields})
	}
	return httpErr
}
