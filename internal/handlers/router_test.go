package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestRouterHealthz(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Second)
	health := NewHealthHandlers(
		WithHealthBuildInfo(BuildInfo{
			Version:     "1.0.0",
			CommitSHA:   "abc123",
			Environment: "prod",
			StartedAt:   start,
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	router := NewRouter(WithHealthHandlers(health))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["version"] != "1.0.0" {
		t.Fatalf("expected version 1.0.0, got %v", body["version"])
	}
	if body["uptime"] != "30s" {
		t.Fatalf("expected uptime 30s, got %v", body["uptime"])
	}
}

func TestRouterReadyzReportsFailure(t *testing.T) {
	health := NewHealthHandlers(
		WithReadinessProbe("firestore", func(ctx context.Context) error {
			return errors.New("firestore unreachable")
		}),
	)

	router := NewRouter(WithHealthHandlers(health))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestRouterUnknownRouteReturnsJSON(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error envelope: %v", err)
	}
	if body["error"] != errorNotFoundCode {
		t.Fatalf("expected %s, got %v", errorNotFoundCode, body["error"])
	}
}

func TestRouterMountsRouteGroups(t *testing.T) {
	router := NewRouter(
		WithOrderRoutes(func(r chi.Router) {
			r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ping", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected mounted route to answer 204, got %d", rr.Code)
	}
}
