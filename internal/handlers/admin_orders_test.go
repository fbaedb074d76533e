package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	"github.com/oesukam/mus-sub000/internal/platform/auth"
	"github.com/oesukam/mus-sub000/internal/services"
)

type stubPaymentService struct {
	markFn func(context.Context, services.MarkAsPaidCommand) (services.PaymentResult, error)
}

func (s *stubPaymentService) MarkAsPaid(ctx context.Context, cmd services.MarkAsPaidCommand) (services.PaymentResult, error) {
	if s.markFn != nil {
		return s.markFn(ctx, cmd)
	}
	return services.PaymentResult{}, errors.New("not implemented")
}

type stubInventoryService struct {
	getFn   func(context.Context, string) (domain.ProductStock, error)
	checkFn func(context.Context, []services.OrderLineInput) error
	setFn   func(context.Context, services.SetStockCommand) (domain.ProductStock, error)
}

func (s *stubInventoryService) GetStock(ctx context.Context, productID string) (domain.ProductStock, error) {
	if s.getFn != nil {
		return s.getFn(ctx, productID)
	}
	return domain.ProductStock{}, errors.New("not implemented")
}

func (s *stubInventoryService) CheckAvailability(ctx context.Context, lines []services.OrderLineInput) error {
	if s.checkFn != nil {
		return s.checkFn(ctx, lines)
	}
	return nil
}

func (s *stubInventoryService) SetStock(ctx context.Context, cmd services.SetStockCommand) (domain.ProductStock, error) {
	if s.setFn != nil {
		return s.setFn(ctx, cmd)
	}
	return domain.ProductStock{}, errors.New("not implemented")
}

func newAdminRouter(orders services.OrderService, payments services.PaymentService, inventory services.InventoryService) chi.Router {
	r := chi.NewRouter()
	NewAdminOrderHandlers(nil, orders, payments, inventory).Routes(r)
	return r
}

func adminRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{
		UID:   "admin-1",
		Roles: []string{auth.RoleAdmin},
	}))
}

func TestAdminOrderHandlersGetOrderByNumber(t *testing.T) {
	service := &stubOrderService{
		getByNumberFn: func(ctx context.Context, orderNumber string) (domain.Order, error) {
			if orderNumber != "RW2501-0000005" {
				return domain.Order{}, services.ErrOrderNotFound
			}
			return domain.Order{ID: "ord-5", OrderNumber: orderNumber, DeliveryStatus: domain.DeliveryStatusPending}, nil
		},
	}
	router := newAdminRouter(service, &stubPaymentService{}, &stubInventoryService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/orders/by-number/RW2501-0000005", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Order struct {
			ID          string `json:"id"`
			OrderNumber string `json:"order_number"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Order.ID != "ord-5" || body.Order.OrderNumber != "RW2501-0000005" {
		t.Fatalf("unexpected order payload: %+v", body.Order)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/orders/by-number/RW2501-9999999", ""))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersUpdateStatus(t *testing.T) {
	eta := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	var captured services.TransitionDeliveryStatusCommand

	orders := &stubOrderService{
		transitionFn: func(ctx context.Context, cmd services.TransitionDeliveryStatusCommand) (domain.Order, error) {
			captured = cmd
			return domain.Order{ID: cmd.OrderID, DeliveryStatus: cmd.Status}, nil
		},
	}

	body := `{
		"status": "shipped",
		"tracking_number": "TRK-77",
		"carrier": "DHL",
		"estimated_delivery_date": "2025-02-10T00:00:00Z",
		"notes": "left warehouse"
	}`
	req := adminRequest(http.MethodPatch, "/orders/ord_1/status", body)
	rr := httptest.NewRecorder()
	newAdminRouter(orders, nil, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" {
		t.Fatalf("unexpected order id %q", captured.OrderID)
	}
	if captured.Status != domain.DeliveryStatusShipped {
		t.Fatalf("expected SHIPPED parsed from lowercase input, got %s", captured.Status)
	}
	if captured.TrackingNumber != "TRK-77" || captured.Carrier != "DHL" {
		t.Fatalf("expected tracking fields, got %q/%q", captured.TrackingNumber, captured.Carrier)
	}
	if captured.EstimatedDeliveryDate == nil || !captured.EstimatedDeliveryDate.Equal(eta) {
		t.Fatalf("expected eta %v, got %v", eta, captured.EstimatedDeliveryDate)
	}
	if captured.UpdatedBy != "admin-1" {
		t.Fatalf("expected actor from identity, got %q", captured.UpdatedBy)
	}
}

func TestAdminOrderHandlersUpdateStatusUnknownStatus(t *testing.T) {
	req := adminRequest(http.MethodPatch, "/orders/ord_1/status", `{"status": "TELEPORTED"}`)
	rr := httptest.NewRecorder()
	newAdminRouter(&stubOrderService{}, nil, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersUpdateStatusInvalidTransition(t *testing.T) {
	orders := &stubOrderService{
		transitionFn: func(ctx context.Context, cmd services.TransitionDeliveryStatusCommand) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: SHIPPED -> DELIVERED", services.ErrOrderInvalidTransition)
		},
	}

	req := adminRequest(http.MethodPatch, "/orders/ord_1/status", `{"status": "DELIVERED"}`)
	rr := httptest.NewRecorder()
	newAdminRouter(orders, nil, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != "invalid_transition" {
		t.Fatalf("expected invalid_transition code, got %q", resp.Error)
	}
}

func TestAdminOrderHandlersMarkPaid(t *testing.T) {
	var captured services.MarkAsPaidCommand
	payments := &stubPaymentService{
		markFn: func(ctx context.Context, cmd services.MarkAsPaidCommand) (services.PaymentResult, error) {
			captured = cmd
			return services.PaymentResult{
				Order: domain.Order{ID: cmd.OrderID, PaymentStatus: domain.PaymentStatusPaid},
				Entry: domain.Transaction{
					ID:                "txn_1",
					TransactionNumber: "SAL-RW2501-0000001",
					Type:              domain.TransactionTypeSale,
					Amount:            11800,
				},
			}, nil
		},
	}

	body := `{"payment_method": "mtn_momo", "payment_reference": "MM-778899"}`
	req := adminRequest(http.MethodPost, "/orders/ord_1:mark-paid", body)
	rr := httptest.NewRecorder()
	newAdminRouter(&stubOrderService{}, payments, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.AdminID != "admin-1" {
		t.Fatalf("expected admin id from identity, got %q", captured.AdminID)
	}

	var resp struct {
		Transaction struct {
			TransactionNumber string `json:"transaction_number"`
			Type              string `json:"type"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Transaction.TransactionNumber != "SAL-RW2501-0000001" {
		t.Fatalf("expected sale number in response, got %q", resp.Transaction.TransactionNumber)
	}
}

func TestAdminOrderHandlersMarkPaidConflict(t *testing.T) {
	payments := &stubPaymentService{
		markFn: func(ctx context.Context, cmd services.MarkAsPaidCommand) (services.PaymentResult, error) {
			return services.PaymentResult{}, fmt.Errorf("%w: order RW2501-0000001", services.ErrAlreadyPaid)
		},
	}

	req := adminRequest(http.MethodPost, "/orders/ord_1:mark-paid", `{"payment_method": "cash"}`)
	rr := httptest.NewRecorder()
	newAdminRouter(&stubOrderService{}, payments, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != "already_paid" {
		t.Fatalf("expected already_paid code, got %q", resp.Error)
	}
}

func TestAdminOrderHandlersSetStock(t *testing.T) {
	inventory := &stubInventoryService{
		setFn: func(ctx context.Context, cmd services.SetStockCommand) (domain.ProductStock, error) {
			if cmd.ProductID != "prod-1" || cmd.Stock != 0 {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return domain.ProductStock{ProductID: "prod-1", Stock: 0, InStock: false}, nil
		},
	}

	req := adminRequest(http.MethodPut, "/products/prod-1/stock", `{"stock": 0}`)
	rr := httptest.NewRecorder()
	newAdminRouter(&stubOrderService{}, nil, inventory).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Stock   int  `json:"stock"`
		InStock bool `json:"in_stock"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Stock != 0 || resp.InStock {
		t.Fatalf("expected zero stock flagged out of stock, got %+v", resp)
	}
}
