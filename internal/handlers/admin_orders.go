package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skycart/api/internal/domain"
	"github.com/skycart/api/internal/platform/auth"
	"github.com/skycart/api/internal/platform/httpx"
	"github.com/skycart/api/internal/platform/pagination"
	"github.com/skycart/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

var (
	orderListOrderFields  = []string{"createdAt"}
	orderListFilterFields = map[string][]pagination.Operator{
		"status": {pagination.OperatorEqual},
		"userId": {pagination.OperatorEqual},
	}
)

// AdminOrderHandlers exposes the back-office order endpoints. Every route
// requires the admin role.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	limit  func(http.Handler) http.Handler
}

// AdminOrderOption customises optional handler behaviour.
type AdminOrderOption func(*AdminOrderHandlers)

// WithAdminOrderRateLimit installs a throttling middleware behind
// authentication so callers are keyed by their verified UID.
func WithAdminOrderRateLimit(mw func(http.Handler) http.Handler) AdminOrderOption {
	return func(h *AdminOrderHandlers) {
		h.limit = mw
	}
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...AdminOrderOption) *AdminOrderHandlers {
	h := &AdminOrderHandlers{authn: authn, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /admin/orders endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	if h.limit != nil {
		r.Use(h.limit)
	}
	r.Get("/", h.listOrders)
	r.Put("/{orderID}", h.updateStatus)
	r.Get("/users/{userID}", h.listUserOrders)
	r.Get("/users/{userID}/stats", h.userStats)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireService(ctx, w) {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize:     defaultOrderPageSize,
		MaxPageSize:         maxOrderPageSize,
		AllowedOrderFields:  orderListOrderFields,
		AllowedFilterFields: orderListFilterFields,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.OrderListQuery{
		UserID: strings.TrimSpace(r.URL.Query().Get("userId")),
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		for _, value := range strings.Split(status, ",") {
			if value = strings.TrimSpace(value); value != "" {
				query.Status = append(query.Status, value)
			}
		}
	}
	for _, filter := range params.Filters {
		switch filter.Field {
		case "status":
			query.Status = append(query.Status, filter.Value)
		case "userId":
			query.UserID = filter.Value
		}
	}
	for _, order := range params.Orders {
		if order.Field != "createdAt" {
			continue
		}
		if order.Desc {
			query.Sort = domain.SortDesc
		} else {
			query.Sort = domain.SortAsc
		}
	}

	page, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderPageResponse{
		Orders:        buildOrderPayloads(page.Items),
		NextPageToken: page.NextPageToken,
	})
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireService(ctx, w) {
		return
	}
	identity, _ := auth.IdentityFromContext(ctx)

	body, err := readLimitedBody(r, defaultBodyLimit)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.UpdateOrderStatusCommand{
		OrderID:    strings.TrimSpace(chi.URLParam(r, "orderID")),
		Status:     domain.OrderStatus(strings.TrimSpace(req.Status)),
		TrackingID: req.TrackingID,
	}
	if identity != nil {
		cmd.ActorID = identity.UID
	}

	view, err := h.orders.SetStatus(ctx, cmd)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(view)})
}

func (h *AdminOrderHandlers) listUserOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireService(ctx, w) {
		return
	}

	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	orders, err := h.orders.RecentUserOrders(ctx, userID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, ordersResponse{Orders: buildOrderPayloads(orders)})
}

func (h *AdminOrderHandlers) userStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireService(ctx, w) {
		return
	}

	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	stats, err := h.orders.UserStats(ctx, userID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	payload := orderStatsPayload{
		TotalOrders:       stats.TotalOrders,
		TotalSpent:        stats.TotalSpent,
		AverageOrderValue: stats.AverageOrderValue,
	}
	if stats.LastOrderAt != nil {
		payload.LastOrderAt = formatTime(*stats.LastOrderAt)
	}
	writeJSONResponse(w, http.StatusOK, orderStatsResponse{Stats: payload})
}

func (h *AdminOrderHandlers) requireService(ctx context.Context, w http.ResponseWriter) bool {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *AdminOrderHandlers) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, pagination.ErrInvalidPageToken), errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order has been modified; refresh and retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

type updateOrderStatusRequest struct {
	Status     string  `json:"status"`
	TrackingID *string `json:"tracking_id,omitempty"`
}

type orderPageResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderStatsResponse struct {
	Stats orderStatsPayload `json:"stats"`
}

type orderStatsPayload struct {
	TotalOrders       int     `json:"total_orders"`
	TotalSpent        float64 `json:"total_spent"`
	AverageOrderValue float64 `json:"average_order_value"`
	LastOrderAt       string  `json:"last_order_at,omitempty"`
}
