package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/oesukam/mus-sub000/internal/domain"
	"github.com/oesukam/mus-sub000/internal/platform/auth"
	"github.com/oesukam/mus-sub000/internal/platform/httpx"
	"github.com/oesukam/mus-sub000/internal/services"
)

const maxAdminBodySize = 16 * 1024

type updateStatusRequest struct {
	Status                string `json:"status"`
	Notes                 string `json:"notes"`
	TrackingNumber        string `json:"tracking_number"`
	Carrier               string `json:"carrier"`
	EstimatedDeliveryDate string `json:"estimated_delivery_date"`
}

type deliveryNotesRequest struct {
	Notes string `json:"notes"`
}

type markPaidRequest struct {
	PaymentMethod    string `json:"payment_method"`
	PaymentReference string `json:"payment_reference"`
	Notes            string `json:"notes"`
}

type setStockRequest struct {
	Stock int `json:"stock"`
}

type stockResponse struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Stock     int    `json:"stock"`
	InStock   bool   `json:"in_stock"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type markPaidResponse struct {
	Order       orderPayload       `json:"order"`
	Transaction transactionPayload `json:"transaction"`
}

// AdminOrderHandlers exposes the staff order management surface.
type AdminOrderHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	payments  services.PaymentService
	inventory services.InventoryService
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, inventory services.InventoryService) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:     authn,
		orders:    orders,
		payments:  payments,
		inventory: inventory,
	}
}

// Routes registers the admin order and stock endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/by-number/{orderNumber}", h.getOrderByNumber)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Patch("/orders/{orderID}/status", h.updateStatus)
	r.Put("/orders/{orderID}/delivery-notes", h.updateDeliveryNotes)
	r.Post("/orders/{orderID}:mark-paid", h.markPaid)
	r.Get("/products/{productID}/stock", h.getStock)
	r.Put("/products/{productID}/stock", h.setStock)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	statuses, err := parseStatusFilters(query["status"])
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, services.ListOrdersQuery{
		UserID:    strings.TrimSpace(query.Get("user_id")),
		Country:   strings.TrimSpace(query.Get("country")),
		Statuses:  statuses,
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderNumber := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if orderNumber == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order number is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updateStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	status, ok := domain.ParseDeliveryStatus(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid delivery status", http.StatusBadRequest))
		return
	}

	cmd := services.TransitionDeliveryStatusCommand{
		OrderID:        orderID,
		Status:         status,
		Notes:          req.Notes,
		TrackingNumber: req.TrackingNumber,
		Carrier:        req.Carrier,
		UpdatedBy:      actorFromContext(r),
	}
	if raw := strings.TrimSpace(req.EstimatedDeliveryDate); raw != "" {
		eta, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "estimated_delivery_date must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.EstimatedDeliveryDate = &eta
	}

	order, err := h.orders.TransitionDeliveryStatus(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) updateDeliveryNotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req deliveryNotesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.AddDeliveryNotes(ctx, services.AddDeliveryNotesCommand{
		OrderID:   orderID,
		Notes:     req.Notes,
		UpdatedBy: actorFromContext(r),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) markPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req markPaidRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	result, err := h.payments.MarkAsPaid(ctx, services.MarkAsPaidCommand{
		OrderID:       orderID,
		PaymentMethod: req.PaymentMethod,
		Reference:     req.PaymentReference,
		Notes:         req.Notes,
		AdminID:       actorFromContext(r),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, markPaidResponse{
		Order:       buildOrderPayload(result.Order),
		Transaction: buildTransactionPayload(result.Entry),
	})
}

func (h *AdminOrderHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	stock, err := h.inventory.GetStock(ctx, productID)
	if err != nil {
		writeInventoryServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStockPayload(stock))
}

func (h *AdminOrderHandlers) setStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req setStockRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	stock, err := h.inventory.SetStock(ctx, services.SetStockCommand{
		ProductID: productID,
		Stock:     req.Stock,
	})
	if err != nil {
		writeInventoryServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStockPayload(stock))
}

func buildStockPayload(stock domain.ProductStock) stockResponse {
	payload := stockResponse{
		ProductID: stock.ProductID,
		Name:      stock.Name,
		Stock:     stock.Stock,
		InStock:   stock.InStock,
	}
	if !stock.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(stock.UpdatedAt)
	}
	return payload
}

func actorFromContext(r *http.Request) string {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil {
		return ""
	}
	return strings.TrimSpace(identity.UID)
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAlreadyPaid):
		httpx.WriteError(ctx, w, httpx.NewError("already_paid", "order has already been marked as paid", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to record payment", http.StatusInternalServerError))
	}
}

func writeInventoryServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to process inventory request", http.StatusInternalServerError))
	}
}
