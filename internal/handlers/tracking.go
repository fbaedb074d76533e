package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oesukam/mus-sub000/internal/platform/httpx"
	"github.com/oesukam/mus-sub000/internal/services"
)

const maxTrackBodySize = 4 * 1024

type trackOrderRequest struct {
	OrderNumber string `json:"order_number"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

type trackOrderResponse struct {
	Order    trackedOrderPayload   `json:"order"`
	Timeline []timelineStepPayload `json:"timeline"`
}

// trackedOrderPayload is the deliberately narrow public view of an order:
// no customer identity, no payment detail, no amounts.
type trackedOrderPayload struct {
	OrderNumber    string  `json:"order_number"`
	DeliveryStatus string  `json:"delivery_status"`
	TrackingNumber string  `json:"tracking_number,omitempty"`
	Carrier        string  `json:"carrier,omitempty"`
	EstimatedDate  *string `json:"estimated_delivery_date,omitempty"`
	ActualDate     *string `json:"actual_delivery_date,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

type timelineStepPayload struct {
	Status      string  `json:"status"`
	Timestamp   *string `json:"timestamp"`
	IsCompleted bool    `json:"is_completed"`
	IsCurrent   bool    `json:"is_current"`
	Notes       string  `json:"notes,omitempty"`
}

// PublicHandlers exposes the unauthenticated endpoints.
type PublicHandlers struct {
	orders services.OrderService
}

// NewPublicHandlers constructs a new PublicHandlers instance.
func NewPublicHandlers(orders services.OrderService) *PublicHandlers {
	return &PublicHandlers{orders: orders}
}

// Routes registers the public endpoints.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders:track", h.trackOrder)
}

func (h *PublicHandlers) trackOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxTrackBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req trackOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	tracked, err := h.orders.TrackOrder(ctx, services.TrackOrderCommand{
		OrderNumber: req.OrderNumber,
		Email:       req.Email,
		Phone:       req.Phone,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	response := trackOrderResponse{
		Order: trackedOrderPayload{
			OrderNumber:    tracked.Order.OrderNumber,
			DeliveryStatus: string(tracked.Order.DeliveryStatus),
			TrackingNumber: tracked.Order.TrackingNumber,
			Carrier:        tracked.Order.Carrier,
			EstimatedDate:  formatTimePtr(tracked.Order.EstimatedDeliveryDate),
			ActualDate:     formatTimePtr(tracked.Order.ActualDeliveryDate),
			CreatedAt:      formatTime(tracked.Order.CreatedAt),
		},
	}
	response.Timeline = make([]timelineStepPayload, 0, len(tracked.Timeline))
	for _, step := range tracked.Timeline {
		response.Timeline = append(response.Timeline, timelineStepPayload{
			Status:      string(step.Status),
			Timestamp:   formatTimePtr(step.Timestamp),
			IsCompleted: step.Completed,
			IsCurrent:   step.Current,
			Notes:       step.Notes,
		})
	}
	writeJSONResponse(w, http.StatusOK, response)
}
