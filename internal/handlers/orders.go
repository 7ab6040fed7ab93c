package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skycart/api/internal/platform/auth"
	"github.com/skycart/api/internal/platform/httpx"
	"github.com/skycart/api/internal/services"
)

const maxOrderBodySize = 32 * 1024

// OrderHandlers exposes checkout and order endpoints for authenticated users.
type OrderHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	orders   services.OrderService
	invoices services.InvoiceService
	limit    func(http.Handler) http.Handler
}

// OrderOption customises optional handler behaviour.
type OrderOption func(*OrderHandlers)

// WithOrderRateLimit installs a throttling middleware behind authentication
// so callers are keyed by their verified UID.
func WithOrderRateLimit(mw func(http.Handler) http.Handler) OrderOption {
	return func(h *OrderHandlers) {
		h.limit = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, checkout services.CheckoutService, orders services.OrderService, invoices services.InvoiceService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:    authn,
		checkout: checkout,
		orders:   orders,
		invoices: invoices,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	if h.limit != nil {
		r.Use(h.limit)
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOwnOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/invoice", h.downloadInvoice)
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req placeOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	result, err := h.checkout.PlaceOrder(ctx, services.PlaceOrderCommand{
		UserID: identity.UID,
		ShippingAddress: services.AddressInput{
			FullName:   req.ShippingAddress.FullName,
			Phone:      req.ShippingAddress.Phone,
			AltPhone:   req.ShippingAddress.AltPhone,
			Street:     req.ShippingAddress.Street,
			City:       req.ShippingAddress.City,
			State:      req.ShippingAddress.State,
			PostalCode: req.ShippingAddress.PostalCode,
			Label:      req.ShippingAddress.Label,
			Country:    req.ShippingAddress.Country,
		},
		PaymentMethod: req.PaymentMethod,
		Mode:          services.CheckoutMode(strings.TrimSpace(req.Mode)),
		ProductID:     req.ProductID,
		Total:         req.Total,
		ShippingPrice: req.ShippingPrice,
		TaxPrice:      req.TaxPrice,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, placeOrderResponse{
		OrderID:         result.OrderID,
		OrderNumber:     result.OrderNumber,
		ShippingAddress: buildAddressPayload(result.ShippingAddress),
	})
}

func (h *OrderHandlers) listOwnOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	orders, err := h.orders.UserOrders(ctx, identity.UID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, ordersResponse{Orders: buildOrderPayloads(orders)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	view, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	// A foreign order is indistinguishable from a missing one.
	if view.Order.UserID != identity.UID && !identity.HasRole(auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(view)})
}

func (h *OrderHandlers) downloadInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_unavailable", "invoice rendering is unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	result, err := h.invoices.Render(ctx, services.RenderInvoiceCommand{
		OrderID:          orderID,
		RequestorID:      identity.UID,
		RequestorIsAdmin: identity.HasRole(auth.RoleAdmin),
	})
	if err != nil {
		h.writeInvoiceError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(result.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Content)
}

func (h *OrderHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *OrderHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput),
		errors.Is(err, services.ErrCheckoutInvalidPayment),
		errors.Is(err, services.ErrCheckoutInvalidAddress),
		errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	// A buy-now miss is a stale-cart validation failure: the client refreshes
	// its cart state and retries rather than treating the order as missing.
	case errors.Is(err, services.ErrCheckoutItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("item_not_in_cart", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutConflict):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_conflict", "cart changed during checkout; retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to place order", http.StatusInternalServerError))
	}
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order has been modified; refresh and retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func (h *OrderHandlers) writeInvoiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInvoiceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvoiceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvoiceForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_forbidden", "not allowed to access this invoice", http.StatusForbidden))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invoice_error", "failed to render invoice", http.StatusInternalServerError))
	}
}

type addressInputPayload struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	AltPhone   string `json:"alt_phone,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Label      string `json:"label,omitempty"`
	Country    string `json:"country,omitempty"`
}

type placeOrderRequest struct {
	ShippingAddress addressInputPayload `json:"shipping_address"`
	PaymentMethod   string              `json:"payment_method"`
	Mode            string              `json:"mode,omitempty"`
	ProductID       string              `json:"product_id,omitempty"`
	Total           float64             `json:"total"`
	ShippingPrice   float64             `json:"shipping_price"`
	TaxPrice        float64             `json:"tax_price"`
}

type placeOrderResponse struct {
	OrderID         string         `json:"order_id"`
	OrderNumber     string         `json:"order_number"`
	ShippingAddress addressPayload `json:"shipping_address"`
}

type ordersResponse struct {
	Orders []orderPayload `json:"orders"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type addressPayload struct {
	ID         string `json:"id,omitempty"`
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	AltPhone   string `json:"alt_phone,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Label      string `json:"label,omitempty"`
	Country    string `json:"country,omitempty"`
	IsDefault  bool   `json:"is_default"`
}

type orderItemPayload struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Product   *productPayload `json:"product,omitempty"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	OrderNumber     string             `json:"order_number"`
	UserID          string             `json:"user_id"`
	Items           []orderItemPayload `json:"items"`
	ShippingAddress addressPayload     `json:"shipping_address"`
	PaymentMethod   string             `json:"payment_method"`
	Total           float64            `json:"total"`
	ShippingPrice   float64            `json:"shipping_price"`
	TaxPrice        float64            `json:"tax_price"`
	Status          string             `json:"status"`
	TrackingID      *string            `json:"tracking_id,omitempty"`
	CreatedAt       string             `json:"created_at,omitempty"`
	UpdatedAt       string             `json:"updated_at,omitempty"`
}

func buildAddressPayload(address services.Address) addressPayload {
	return addressPayload{
		ID:         address.ID,
		FullName:   address.FullName,
		Phone:      address.Phone,
		AltPhone:   address.AltPhone,
		Street:     address.Street,
		City:       address.City,
		State:      address.State,
		PostalCode: address.PostalCode,
		Label:      address.Label,
		Country:    address.Country,
		IsDefault:  address.IsDefault,
	}
}

func buildOrderPayload(view services.OrderView) orderPayload {
	order := view.Order
	items := make([]orderItemPayload, 0, len(view.Items))
	for _, item := range view.Items {
		line := orderItemPayload{ProductID: item.ProductID, Quantity: item.Quantity}
		if item.Product != nil {
			product := buildProductPayload(*item.Product)
			line.Product = &product
		}
		items = append(items, line)
	}
	return orderPayload{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Items:           items,
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		PaymentMethod:   order.PaymentMethod,
		Total:           order.Total,
		ShippingPrice:   order.ShippingPrice,
		TaxPrice:        order.TaxPrice,
		Status:          string(order.Status),
		TrackingID:      order.TrackingID,
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
	}
}

func buildOrderPayloads(views []services.OrderView) []orderPayload {
	payload := make([]orderPayload, 0, len(views))
	for _, view := range views {
		payload = append(payload, buildOrderPayload(view))
	}
	return payload
}
