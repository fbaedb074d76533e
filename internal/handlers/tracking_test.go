package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	"github.com/oesukam/mus-sub000/internal/services"
)

func newPublicRouter(service services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewPublicHandlers(service).Routes(r)
	return r
}

func TestPublicHandlersTrackOrderSuccess(t *testing.T) {
	now := time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)
	pending := now.Add(-48 * time.Hour)
	processing := now.Add(-24 * time.Hour)

	service := &stubOrderService{
		trackFn: func(ctx context.Context, cmd services.TrackOrderCommand) (services.TrackedOrder, error) {
			if cmd.OrderNumber != "RW2501-0000001" || cmd.Email != "alice@example.com" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return services.TrackedOrder{
				Order: domain.Order{
					OrderNumber:    "RW2501-0000001",
					DeliveryStatus: domain.DeliveryStatusProcessing,
					Customer:       domain.Contact{Name: "Alice", Email: "alice@example.com"},
					TotalAmount:    11800,
					CreatedAt:      pending,
				},
				Timeline: []services.TimelineStep{
					{Status: domain.DeliveryStatusPending, Timestamp: &pending, Completed: true},
					{Status: domain.DeliveryStatusProcessing, Timestamp: &processing, Completed: true, Current: true},
					{Status: domain.DeliveryStatusShipped},
					{Status: domain.DeliveryStatusDelivered},
				},
			}, nil
		},
	}

	body := `{"order_number": "RW2501-0000001", "email": "alice@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/orders:track", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	newPublicRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Order    map[string]any `json:"order"`
		Timeline []struct {
			Status      string  `json:"status"`
			Timestamp   *string `json:"timestamp"`
			IsCompleted bool    `json:"is_completed"`
			IsCurrent   bool    `json:"is_current"`
		} `json:"timeline"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if len(resp.Timeline) != 4 {
		t.Fatalf("expected 4 timeline steps, got %d", len(resp.Timeline))
	}
	if !resp.Timeline[1].IsCurrent || !resp.Timeline[1].IsCompleted {
		t.Fatalf("expected processing current and completed, got %+v", resp.Timeline[1])
	}
	if resp.Timeline[2].Timestamp != nil || resp.Timeline[2].IsCompleted {
		t.Fatalf("expected shipped step pending, got %+v", resp.Timeline[2])
	}

	// The public view must not expose identity or money fields.
	for _, field := range []string{"customer", "total_amount", "items", "user_id"} {
		if _, ok := resp.Order[field]; ok {
			t.Fatalf("public payload must not contain %q", field)
		}
	}
}

func TestPublicHandlersTrackOrderDeniedLooksLikeNotFound(t *testing.T) {
	service := &stubOrderService{
		trackFn: func(ctx context.Context, cmd services.TrackOrderCommand) (services.TrackedOrder, error) {
			return services.TrackedOrder{}, services.ErrOrderTrackingDenied
		},
	}

	body := `{"order_number": "RW2501-0000001", "email": "mallory@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/orders:track", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	newPublicRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != "order_not_found" {
		t.Fatalf("expected generic order_not_found code, got %q", resp.Error)
	}
}

func TestPublicHandlersTrackOrderRequiresContact(t *testing.T) {
	service := &stubOrderService{
		trackFn: func(ctx context.Context, cmd services.TrackOrderCommand) (services.TrackedOrder, error) {
			return services.TrackedOrder{}, fmt.Errorf("%w: email or phone is required", services.ErrOrderInvalidInput)
		},
	}

	body := `{"order_number": "RW2501-0000001"}`
	req := httptest.NewRequest(http.MethodPost, "/orders:track", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	newPublicRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestPublicHandlersTrackOrderEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/orders:track", nil)
	rr := httptest.NewRecorder()
	newPublicRouter(&stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty body, got %d", rr.Code)
	}
}
