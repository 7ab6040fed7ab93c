package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/skycart/api/internal/domain"
	"github.com/skycart/api/internal/platform/auth"
	"github.com/skycart/api/internal/services"
)

func newAdminOrderRouter(orders services.OrderService) chi.Router {
	handler := NewAdminOrderHandlers(nil, orders)
	router := chi.NewRouter()
	router.Route("/admin/orders", handler.Routes)
	return router
}

func adminRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{
		UID:   "admin-1",
		Roles: []string{auth.RoleAdmin},
	}))
}

func TestAdminOrderHandlersListOrders(t *testing.T) {
	var captured services.OrderListQuery
	orders := &stubOrderService{
		listFn: func(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[services.OrderView], error) {
			captured = query
			return domain.CursorPage[services.OrderView]{
				Items:         []services.OrderView{sampleOrderView()},
				NextPageToken: "token-2",
			}, nil
		},
	}

	router := newAdminOrderRouter(orders)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/orders?status=pending,shipped&pageSize=10&userId=user-1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected userId filter, got %q", captured.UserID)
	}
	if len(captured.Status) != 2 || captured.Status[0] != "pending" || captured.Status[1] != "shipped" {
		t.Fatalf("unexpected status filter %#v", captured.Status)
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", captured.Pagination.PageSize)
	}

	var resp orderPageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Orders) != 1 || resp.NextPageToken != "token-2" {
		t.Fatalf("unexpected page response %#v", resp)
	}
}

func TestAdminOrderHandlersListOrdersFilterAndOrderBy(t *testing.T) {
	var captured services.OrderListQuery
	orders := &stubOrderService{
		listFn: func(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[services.OrderView], error) {
			captured = query
			return domain.CursorPage[services.OrderView]{}, nil
		},
	}

	router := newAdminOrderRouter(orders)
	rr := httptest.NewRecorder()
	target := "/admin/orders?filter=" + url.QueryEscape("status==pending") +
		"&filter=" + url.QueryEscape("userId==user-7") +
		"&orderBy=" + url.QueryEscape("createdAt asc")
	router.ServeHTTP(rr, adminRequest(http.MethodGet, target, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if len(captured.Status) != 1 || captured.Status[0] != "pending" {
		t.Fatalf("unexpected status filter %#v", captured.Status)
	}
	if captured.UserID != "user-7" {
		t.Fatalf("expected userId filter, got %q", captured.UserID)
	}
	if captured.Sort != domain.SortAsc {
		t.Fatalf("expected ascending sort, got %v", captured.Sort)
	}
}

func TestAdminOrderHandlersListOrdersRejectsUnknownOrderBy(t *testing.T) {
	router := newAdminOrderRouter(&stubOrderService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/orders?orderBy=total", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersListOrdersRejectsUnknownFilterField(t *testing.T) {
	router := newAdminOrderRouter(&stubOrderService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/orders?filter="+url.QueryEscape("total>=100"), nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersListOrdersInvalidStatus(t *testing.T) {
	orders := &stubOrderService{
		listFn: func(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[services.OrderView], error) {
			return domain.CursorPage[services.OrderView]{}, services.ErrOrderInvalidInput
		},
	}

	router := newAdminOrderRouter(orders)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/orders?status=bogus", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersListOrdersInvalidPageToken(t *testing.T) {
	router := newAdminOrderRouter(&stubOrderService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/orders?pageToken=!!!not-base64!!!", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersUpdateStatus(t *testing.T) {
	var captured services.UpdateOrderStatusCommand
	orders := &stubOrderService{
		setStatusFn: func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.OrderView, error) {
			captured = cmd
			view := sampleOrderView()
			view.Order.Status = cmd.Status
			view.Order.TrackingID = cmd.TrackingID
			view.Order.UpdatedAt = time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
			return view, nil
		},
	}

	router := newAdminOrderRouter(orders)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPut, "/admin/orders/ord_1", []byte(`{"status":"shipped","tracking_id":"TRK-99"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.OrderID != "ord_1" {
		t.Fatalf("expected order id ord_1, got %q", captured.OrderID)
	}
	if captured.Status != domain.OrderStatusShipped {
		t.Fatalf("expected status shipped, got %q", captured.Status)
	}
	if captured.TrackingID == nil || *captured.TrackingID != "TRK-99" {
		t.Fatalf("expected tracking id TRK-99, got %#v", captured.TrackingID)
	}
	if captured.ActorID != "admin-1" {
		t.Fatalf("expected actor admin-1, got %q", captured.ActorID)
	}
}

func TestAdminOrderHandlersUpdateStatusOmitsTracking(t *testing.T) {
	var captured services.UpdateOrderStatusCommand
	orders := &stubOrderService{
		setStatusFn: func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.OrderView, error) {
			captured = cmd
			return sampleOrderView(), nil
		},
	}

	router := newAdminOrderRouter(orders)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPut, "/admin/orders/ord_1", []byte(`{"status":"pending"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.TrackingID != nil {
		t.Fatalf("expected nil tracking id, got %#v", captured.TrackingID)
	}
}

func TestAdminOrderHandlersUpdateStatusNotFound(t *testing.T) {
	orders := &stubOrderService{
		setStatusFn: func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.OrderView, error) {
			return services.OrderView{}, services.ErrOrderNotFound
		},
	}

	router := newAdminOrderRouter(orders)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPut, "/admin/orders/missing", []byte(`{"status":"shipped"}`)))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersUserOrders(t *testing.T) {
	orders := &stubOrderService{
		recentFn: func(ctx context.Context, userID string) ([]services.OrderView, error) {
			if userID != "user-9" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return []services.OrderView{sampleOrderView()}, nil
		},
	}

	router := newAdminOrderRouter(orders)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/orders/users/user-9", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersUserStats(t *testing.T) {
	last := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	orders := &stubOrderService{
		statsFn: func(ctx context.Context, userID string) (services.OrderStats, error) {
			return services.OrderStats{
				TotalOrders:       4,
				TotalSpent:        1039.92,
				AverageOrderValue: 259.98,
				LastOrderAt:       &last,
			}, nil
		},
	}

	router := newAdminOrderRouter(orders)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/orders/users/user-9/stats", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp orderStatsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Stats.TotalOrders != 4 || resp.Stats.AverageOrderValue != 259.98 {
		t.Fatalf("unexpected stats %#v", resp.Stats)
	}
	if resp.Stats.LastOrderAt == "" {
		t.Fatalf("expected last order timestamp")
	}
}
