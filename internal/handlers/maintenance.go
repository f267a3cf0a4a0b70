package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atelier-gallery/api/internal/platform/auth"
	"github.com/atelier-gallery/api/internal/platform/httpx"
	"github.com/atelier-gallery/api/internal/platform/requestctx"
)

const (
	defaultCleanupBatches = 10
	maxCleanupBatches     = 100
)

// IdempotencyPurger deletes expired idempotency records.
type IdempotencyPurger interface {
	Purge(ctx context.Context, maxBatches int) (int, error)
}

// MaintenanceHandlers exposes scheduler-triggered maintenance jobs under /internal.
type MaintenanceHandlers struct {
	purger IdempotencyPurger
}

// NewMaintenanceHandlers constructs MaintenanceHandlers.
func NewMaintenanceHandlers(purger IdempotencyPurger) *MaintenanceHandlers {
	return &MaintenanceHandlers{purger: purger}
}

// Routes registers the /internal/maintenance endpoints. Authentication is applied by the
// router through the internal middlewares.
func (h *MaintenanceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/maintenance/idempotency-cleanup", h.cleanupIdempotency)
}

func (h *MaintenanceHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.purger == nil {
		httpx.WriteError(ctx, w, httpx.NewError("maintenance_unavailable", "idempotency cleanup is not configured", http.StatusServiceUnavailable))
		return
	}

	batches, err := parseLimitParam(r.URL.Query().Get("max_batches"), defaultCleanupBatches)
	if err != nil {
		writeQueryParamError(ctx, w, "max_batches", err)
		return
	}
	batches = min(batches, maxCleanupBatches)

	caller := ""
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc != nil {
		caller = svc.Email
	}

	removed, err := h.purger.Purge(ctx, batches)
	logger := requestctx.Logger(ctx).With(zap.Int("removed", removed), zap.String("caller", caller))
	if err != nil {
		logger.Error("idempotency cleanup failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("cleanup_failed", "idempotency cleanup did not complete", http.StatusServiceUnavailable).
			WithDetails(map[string]any{"removed": removed}))
		return
	}
	logger.Info("idempotency cleanup finished")
	writeJSONResponse(w, http.StatusOK, cleanupResponse{Removed: removed})
}

type cleanupResponse struct {
	Removed int `json:"removed"`
}
