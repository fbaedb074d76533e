package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/oesukam/mus-sub000/internal/platform/httpx"
)

// BuildInfo describes the running binary for the health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessProbe reports whether a backing dependency is reachable.
type ReadinessProbe func(ctx context.Context) error

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	build  BuildInfo
	clock  func() time.Time
	probes map[string]ReadinessProbe
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs health handlers with optional build metadata
// and readiness probes.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		build:  BuildInfo{StartedAt: time.Now().UTC()},
		clock:  time.Now,
		probes: map[string]ReadinessProbe{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithHealthBuildInfo attaches build metadata to health responses.
func WithHealthBuildInfo(build BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock overrides the clock used for uptime calculation.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessProbe registers a named dependency check on /readyz.
func WithReadinessProbe(name string, probe ReadinessProbe) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && probe != nil {
			h.probes[name] = probe
		}
	}
}

// Healthz is the liveness endpoint; it never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    "ok",
		"timestamp": now.Format(time.RFC3339),
	}
	if !h.build.StartedAt.IsZero() {
		payload["uptime"] = now.Sub(h.build.StartedAt).String()
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz runs every registered probe and fails when any dependency is down.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := make(map[string]string, len(h.probes))
	failed := false
	for name, probe := range h.probes {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := probe(probeCtx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			failed = true
			continue
		}
		checks[name] = "ok"
	}

	if failed {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "one or more dependencies are unavailable", http.StatusServiceUnavailable).
			WithDetails(map[string]any{"checks": checks}))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status": "ok",
		"checks": checks,
	})
}
