package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/atelier-gallery/api/internal/domain"
	"github.com/atelier-gallery/api/internal/platform/httpx"
	"github.com/atelier-gallery/api/internal/platform/requestctx"
	"github.com/atelier-gallery/api/internal/services"
)

const readinessTimeout = 5 * time.Second

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService sets the service used to probe dependencies.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

// WithHealthBuildInfo reports build metadata when no system service is configured.
func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock, mainly for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// Healthz reports that the process is serving. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	report := h.liveness(r.Context())
	writeJSONResponse(w, http.StatusOK, buildHealthPayload(report))
}

// Readyz probes dependencies. Only an error status fails the probe; degraded optional
// dependencies keep the instance in rotation.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, buildHealthPayload(h.liveness(ctx)))
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	report, err := h.system.HealthReport(probeCtx)
	if err != nil {
		requestctx.Logger(ctx).Error("readiness probe failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("health_unavailable", "unable to evaluate readiness", http.StatusServiceUnavailable))
		return
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = h.clock()
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, buildHealthPayload(report))
}

func (h *HealthHandlers) liveness(ctx context.Context) services.SystemHealthReport {
	if h.system != nil {
		return h.system.Liveness(ctx)
	}
	now := h.clock()
	return services.SystemHealthReport{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt),
		GeneratedAt: now,
	}
}

type healthCheckPayload struct {
	Status    string  `json:"status"`
	Detail    string  `json:"detail,omitempty"`
	Error     string  `json:"error,omitempty"`
	LatencyMS float64 `json:"latencyMs"`
	CheckedAt string  `json:"checkedAt,omitempty"`
}

type healthPayload struct {
	Status        string                        `json:"status"`
	Version       string                        `json:"version,omitempty"`
	CommitSHA     string                        `json:"commitSha,omitempty"`
	Environment   string                        `json:"environment,omitempty"`
	Uptime        string                        `json:"uptime"`
	UptimeSeconds int64                         `json:"uptimeSeconds"`
	Timestamp     string                        `json:"timestamp"`
	Checks        map[string]healthCheckPayload `json:"checks,omitempty"`
	Details       []string                      `json:"details,omitempty"`
}

func buildHealthPayload(report services.SystemHealthReport) healthPayload {
	payload := healthPayload{
		Status:        report.Status,
		Version:       report.Version,
		CommitSHA:     report.CommitSHA,
		Environment:   report.Environment,
		Uptime:        report.Uptime.Truncate(time.Second).String(),
		UptimeSeconds: int64(report.Uptime / time.Second),
		Timestamp:     formatTime(report.GeneratedAt),
	}
	if payload.Status == "" {
		payload.Status = domain.HealthStatusOK
	}
	if len(report.Checks) == 0 {
		return payload
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	payload.Checks = make(map[string]healthCheckPayload, len(names))
	for _, name := range names {
		check := report.Checks[name]
		payload.Checks[name] = healthCheckPayload{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: float64(check.Latency.Microseconds()) / 1000,
			CheckedAt: formatTime(check.CheckedAt),
		}
		if check.Status != domain.HealthStatusOK {
			reason := strings.TrimSpace(check.Error)
			if reason == "" {
				reason = strings.TrimSpace(check.Detail)
			}
			if reason == "" {
				reason = check.Status
			}
			payload.Details = append(payload.Details, name+": "+reason)
		}
	}
	return payload
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}
