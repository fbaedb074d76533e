package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	"github.com/oesukam/mus-sub000/internal/platform/auth"
	"github.com/oesukam/mus-sub000/internal/repositories"
	"github.com/oesukam/mus-sub000/internal/services"
)

type stubOrderService struct {
	createFn      func(context.Context, services.CreateOrderCommand) (domain.Order, error)
	getFn         func(context.Context, string) (domain.Order, error)
	getByNumberFn func(context.Context, string) (domain.Order, error)
	listFn        func(context.Context, services.ListOrdersQuery) (domain.CursorPage[domain.Order], error)
	transitionFn  func(context.Context, services.TransitionDeliveryStatusCommand) (domain.Order, error)
	notesFn       func(context.Context, services.AddDeliveryNotesCommand) (domain.Order, error)
	trackFn       func(context.Context, services.TrackOrderCommand) (services.TrackedOrder, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if s.getByNumberFn != nil {
		return s.getByNumberFn(ctx, orderNumber)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.ListOrdersQuery) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderService) TransitionDeliveryStatus(ctx context.Context, cmd services.TransitionDeliveryStatusCommand) (domain.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) AddDeliveryNotes(ctx context.Context, cmd services.AddDeliveryNotesCommand) (domain.Order, error) {
	if s.notesFn != nil {
		return s.notesFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) TrackOrder(ctx context.Context, cmd services.TrackOrderCommand) (services.TrackedOrder, error) {
	if s.trackFn != nil {
		return s.trackFn(ctx, cmd)
	}
	return services.TrackedOrder{}, errors.New("not implemented")
}

func newOrderRouter(service services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewOrderHandlers(nil, service).Routes(r)
	return r
}

func TestOrderHandlersCreateOrderGuest(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	var captured services.CreateOrderCommand

	service := &stubOrderService{
		createFn: func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			captured = cmd
			return domain.Order{
				ID:             "ord_1",
				OrderNumber:    "RW2501-0000001",
				Country:        "RW",
				Currency:       "RWF",
				Customer:       cmd.Customer,
				DeliveryStatus: domain.DeliveryStatusPending,
				PaymentStatus:  domain.PaymentStatusPending,
				TotalAmount:    11800,
				CreatedAt:      now,
			}, nil
		},
	}

	body := `{
		"items": [{"product_id": "prod-1", "quantity": 2}],
		"customer": {"name": "Alice Uwase", "email": "alice@example.com"},
		"shipping_address": {"line1": "KG 11 Ave", "city": "Kigali"},
		"payment_method": "mtn_momo"
	}`

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != nil {
		t.Fatalf("guest checkout must carry no user id, got %v", captured.UserID)
	}
	if len(captured.Items) != 1 || captured.Items[0].ProductID != "prod-1" || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", captured.Items)
	}

	var resp struct {
		Order struct {
			OrderNumber string `json:"order_number"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.OrderNumber != "RW2501-0000001" {
		t.Fatalf("expected order number in response, got %q", resp.Order.OrderNumber)
	}
}

func TestOrderHandlersCreateOrderInsufficientStock(t *testing.T) {
	service := &stubOrderService{
		createFn: func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			return domain.Order{}, repositories.NewInsufficientStockError([]repositories.StockShortfall{
				{ProductID: "prod-1", Requested: 5, Available: 2},
			})
		},
	}

	body := `{
		"items": [{"product_id": "prod-1", "quantity": 5}],
		"customer": {"name": "Alice", "email": "alice@example.com"},
		"shipping_address": {"line1": "KG 11 Ave", "city": "Kigali"}
	}`

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Error   string `json:"error"`
		Details struct {
			Lines []struct {
				ProductID string `json:"product_id"`
				Requested int    `json:"requested"`
				Available int    `json:"available"`
			} `json:"lines"`
		} `json:"details"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock code, got %q", resp.Error)
	}
	if len(resp.Details.Lines) != 1 || resp.Details.Lines[0].Available != 2 {
		t.Fatalf("expected shortfall detail, got %+v", resp.Details.Lines)
	}
}

func TestOrderHandlersCreateOrderRejectsBadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	newOrderRouter(&stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrderHidesForeignOrders(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: strPtrHandlers("someone-else")}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/ord_1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for foreign order, got %d", rr.Code)
	}
}

func TestOrderHandlersListOrdersScopesToIdentity(t *testing.T) {
	var captured services.ListOrdersQuery
	service := &stubOrderService{
		listFn: func(ctx context.Context, query services.ListOrdersQuery) (domain.CursorPage[domain.Order], error) {
			captured = query
			return domain.CursorPage[domain.Order]{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/?status=PENDING,SHIPPED&page_size=5", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected listing scoped to caller, got %q", captured.UserID)
	}
	if len(captured.Statuses) != 2 || captured.Statuses[1] != domain.DeliveryStatusShipped {
		t.Fatalf("unexpected status filter %v", captured.Statuses)
	}
	if captured.PageSize != 5 {
		t.Fatalf("expected page size 5, got %d", captured.PageSize)
	}
}

func strPtrHandlers(v string) *string {
	return &v
}
