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
	"github.com/oesukam/mus-sub000/internal/repositories"
	"github.com/oesukam/mus-sub000/internal/services"
)

const (
	defaultOrderPageSize   = 20
	maxOrderPageSize       = 100
	maxCreateOrderBodySize = 64 * 1024
)

type createOrderRequest struct {
	Items []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	Customer struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
	ShippingAddress struct {
		Line1      string `json:"line1"`
		Line2      string `json:"line2"`
		City       string `json:"city"`
		District   string `json:"district"`
		Country    string `json:"country"`
		PostalCode string `json:"postal_code"`
	} `json:"shipping_address"`
	Country       string `json:"country"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
}

// OrderHandlers exposes checkout and order read endpoints for customers.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints. Checkout accepts guests; reads
// require an authenticated owner.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.OptionalFirebaseAuth())
		}
		g.Post("/", h.createOrder)
	})
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth())
		}
		g.Get("/", h.listOrders)
		g.Get("/{orderID}", h.getOrder)
	})
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCreateOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		Customer: domain.Contact{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		ShippingAddress: domain.Address{
			Line1:      req.ShippingAddress.Line1,
			Line2:      req.ShippingAddress.Line2,
			City:       req.ShippingAddress.City,
			District:   req.ShippingAddress.District,
			Country:    req.ShippingAddress.Country,
			PostalCode: req.ShippingAddress.PostalCode,
		},
		Country:       req.Country,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderLineInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		if uid := strings.TrimSpace(identity.UID); uid != "" {
			cmd.UserID = &uid
		}
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
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
		UserID:    strings.TrimSpace(identity.UID),
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

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
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

	// Someone else's order is indistinguishable from a missing one.
	if order.UserID == nil || !strings.EqualFold(strings.TrimSpace(*order.UserID), strings.TrimSpace(identity.UID)) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID             string `json:"id"`
	OrderNumber    string `json:"order_number"`
	DeliveryStatus string `json:"delivery_status"`
	PaymentStatus  string `json:"payment_status"`
	Currency       string `json:"currency"`
	TotalAmount    int64  `json:"total_amount"`
	CreatedAt      string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID              string                 `json:"id"`
	OrderNumber     string                 `json:"order_number"`
	Country         string                 `json:"country"`
	Currency        string                 `json:"currency"`
	UserID          string                 `json:"user_id,omitempty"`
	Customer        contactPayload         `json:"customer"`
	ShippingAddress addressPayload         `json:"shipping_address"`
	Items           []orderItemPayload     `json:"items"`
	Subtotal        int64                  `json:"subtotal"`
	TaxAmount       int64                  `json:"tax_amount"`
	TotalAmount     int64                  `json:"total_amount"`
	DeliveryStatus  string                 `json:"delivery_status"`
	PaymentStatus   string                 `json:"payment_status"`
	PaymentMethod   string                 `json:"payment_method,omitempty"`
	PaidAt          *string                `json:"paid_at,omitempty"`
	TrackingNumber  string                 `json:"tracking_number,omitempty"`
	Carrier         string                 `json:"carrier,omitempty"`
	EstimatedDate   *string                `json:"estimated_delivery_date,omitempty"`
	ActualDate      *string                `json:"actual_delivery_date,omitempty"`
	DeliveryNotes   string                 `json:"delivery_notes,omitempty"`
	StatusHistory   []statusHistoryPayload `json:"status_history"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at,omitempty"`
}

type contactPayload struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type addressPayload struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	District   string `json:"district,omitempty"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code,omitempty"`
}

type orderItemPayload struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice int64   `json:"unit_price"`
	TaxRate   float64 `json:"tax_rate"`
	TaxAmount int64   `json:"tax_amount"`
	Total     int64   `json:"total"`
}

type statusHistoryPayload struct {
	Status    string  `json:"status"`
	Timestamp *string `json:"timestamp"`
	UpdatedBy string  `json:"updated_by,omitempty"`
	Notes     string  `json:"notes,omitempty"`
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		DeliveryStatus: string(order.DeliveryStatus),
		PaymentStatus:  string(order.PaymentStatus),
		Currency:       order.Currency,
		TotalAmount:    order.TotalAmount,
		CreatedAt:      formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Country:     order.Country,
		Currency:    order.Currency,
		Customer: contactPayload{
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		ShippingAddress: addressPayload{
			Line1:      order.ShippingAddress.Line1,
			Line2:      order.ShippingAddress.Line2,
			City:       order.ShippingAddress.City,
			District:   order.ShippingAddress.District,
			Country:    order.ShippingAddress.Country,
			PostalCode: order.ShippingAddress.PostalCode,
		},
		Subtotal:       order.Subtotal,
		TaxAmount:      order.TaxAmount,
		TotalAmount:    order.TotalAmount,
		DeliveryStatus: string(order.DeliveryStatus),
		PaymentStatus:  string(order.PaymentStatus),
		PaymentMethod:  order.PaymentMethod,
		PaidAt:         formatTimePtr(order.PaidAt),
		TrackingNumber: order.TrackingNumber,
		Carrier:        order.Carrier,
		EstimatedDate:  formatTimePtr(order.EstimatedDeliveryDate),
		ActualDate:     formatTimePtr(order.ActualDeliveryDate),
		DeliveryNotes:  order.DeliveryNotes,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}
	if order.UserID != nil {
		payload.UserID = *order.UserID
	}
	payload.Items = make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			TaxRate:   item.TaxRate,
			TaxAmount: item.TaxAmount,
			Total:     item.Total,
		})
	}
	payload.StatusHistory = make([]statusHistoryPayload, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		history := statusHistoryPayload{
			Status:    string(entry.Status),
			Timestamp: formatTimePtr(entry.Timestamp),
			Notes:     entry.Notes,
		}
		if entry.UpdatedBy != nil {
			history.UpdatedBy = *entry.UpdatedBy
		}
		payload.StatusHistory = append(payload.StatusHistory, history)
	}
	return payload
}

func parseStatusFilters(values []string) ([]domain.DeliveryStatus, error) {
	var statuses []domain.DeliveryStatus
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, ok := domain.ParseDeliveryStatus(part)
			if !ok {
				return nil, errors.New("status must be a valid delivery status")
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		writeInventoryError(ctx, w, invErr)
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderTrackingDenied):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found or verification failed", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, invErr *repositories.InventoryError) {
	switch invErr.Code {
	case repositories.InventoryErrorProductNotFound:
		httpx.WriteError(ctx, w, httpx.NewError("products_not_found", "one or more products do not exist", http.StatusBadRequest).
			WithDetails(map[string]any{"missing_product_ids": invErr.MissingIDs}))
	case repositories.InventoryErrorInsufficientStock:
		lines := make([]map[string]any, 0, len(invErr.Shortfalls))
		for _, shortfall := range invErr.Shortfalls {
			lines = append(lines, map[string]any{
				"product_id": shortfall.ProductID,
				"requested":  shortfall.Requested,
				"available":  shortfall.Available,
			})
		}
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "insufficient stock for one or more items", http.StatusConflict).
			WithDetails(map[string]any{"lines": lines}))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", invErr.Error(), http.StatusUnprocessableEntity))
	}
}
