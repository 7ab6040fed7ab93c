package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/skycart/api/internal/domain"
	"github.com/skycart/api/internal/repositories"
)

type stubOrderRepository struct {
	insertFunc     func(ctx context.Context, order domain.Order) error
	updateFunc     func(ctx context.Context, order domain.Order) error
	findFunc       func(ctx context.Context, orderID string) (domain.Order, error)
	listFunc       func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	listByUserFunc func(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	statsFunc      func(ctx context.Context, userID string) (domain.OrderStats, error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, order)
	}
	return nil
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order) error {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, order)
	}
	return nil
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFunc != nil {
		return s.findFunc(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if s.listByUserFunc != nil {
		return s.listByUserFunc(ctx, userID, limit)
	}
	return nil, nil
}

func (s *stubOrderRepository) StatsByUser(ctx context.Context, userID string) (domain.OrderStats, error) {
	if s.statsFunc != nil {
		return s.statsFunc(ctx, userID)
	}
	return domain.OrderStats{}, nil
}

func TestOrderServiceGetOrderNotFound(t *testing.T) {
	repo := &stubOrderRepository{
		findFunc: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{}, &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewOrderService(OrderServiceDeps{Orders: repo, Products: catalogWith()})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	_, err = service.GetOrder(context.Background(), "ord_missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderServiceSetStatusUpdatesAndPublishes(t *testing.T) {
	now := time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC)
	var updated domain.Order
	repo := &stubOrderRepository{
		findFunc: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{
				ID:          orderID,
				OrderNumber: "SC-2026-000007",
				UserID:      "user-1",
				Status:      domain.OrderStatusPending,
				UpdatedAt:   now.Add(-time.Hour),
			}, nil
		},
		updateFunc: func(ctx context.Context, order domain.Order) error {
			updated = order
			return nil
		},
	}
	events := &stubEventPublisher{}

	service, err := NewOrderService(OrderServiceDeps{
		Orders:   repo,
		Products: catalogWith(),
		Clock:    func() time.Time { return now },
		Events:   events,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	view, err := service.SetStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:    "ord_1",
		Status:     domain.OrderStatusShipped,
		TrackingID: strPtr(" TRK-99 "),
		ActorID:    "admin-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if view.Order.Status != domain.OrderStatusShipped {
		t.Fatalf("expected shipped, got %q", view.Order.Status)
	}
	if updated.TrackingID == nil || *updated.TrackingID != "TRK-99" {
		t.Fatalf("expected trimmed tracking id, got %#v", updated.TrackingID)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt %v, got %v", now, updated.UpdatedAt)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events.events))
	}
	event := events.events[0]
	if event.Type != "order.status.changed" || event.PreviousStatus != "pending" || event.CurrentStatus != "shipped" {
		t.Fatalf("unexpected event %#v", event)
	}
}

func TestOrderServiceSetStatusAllowsBackwardMoves(t *testing.T) {
	repo := &stubOrderRepository{
		findFunc: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, Status: domain.OrderStatusDelivered}, nil
		},
	}

	service, err := NewOrderService(OrderServiceDeps{Orders: repo, Products: catalogWith()})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	view, err := service.SetStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  domain.OrderStatusPending,
	})
	if err != nil {
		t.Fatalf("expected delivered to pending to succeed, got %v", err)
	}
	if view.Order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %q", view.Order.Status)
	}
}

func TestOrderServiceSetStatusKeepsTrackingWhenAbsent(t *testing.T) {
	existing := "TRK-OLD"
	var updated domain.Order
	repo := &stubOrderRepository{
		findFunc: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, Status: domain.OrderStatusShipped, TrackingID: &existing}, nil
		},
		updateFunc: func(ctx context.Context, order domain.Order) error {
			updated = order
			return nil
		},
	}

	service, err := NewOrderService(OrderServiceDeps{Orders: repo, Products: catalogWith()})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	if _, err := service.SetStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  domain.OrderStatusDelivered,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.TrackingID == nil || *updated.TrackingID != "TRK-OLD" {
		t.Fatalf("expected tracking id preserved, got %#v", updated.TrackingID)
	}
}

func TestOrderServiceSetStatusRejectsUnknownStatus(t *testing.T) {
	service, err := NewOrderService(OrderServiceDeps{Orders: &stubOrderRepository{}, Products: catalogWith()})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	_, err = service.SetStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  domain.OrderStatus("teleported"),
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderServiceListOrdersValidatesStatusFilter(t *testing.T) {
	service, err := NewOrderService(OrderServiceDeps{Orders: &stubOrderRepository{}, Products: catalogWith()})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	_, err = service.ListOrders(context.Background(), OrderListQuery{Status: []string{"pending", "bogus"}})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderServiceUserOrdersReturnsFullHistory(t *testing.T) {
	var gotLimit int
	repo := &stubOrderRepository{
		listByUserFunc: func(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
			gotLimit = limit
			return nil, nil
		},
	}

	service, err := NewOrderService(OrderServiceDeps{Orders: repo, Products: catalogWith(), UserOrdersLimit: 7})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	orders, err := service.UserOrders(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The short tail is for admin views only; a user's own history is never
	// capped by the configured limit.
	if gotLimit != 0 {
		t.Fatalf("expected uncapped listing, got limit %d", gotLimit)
	}
	if orders == nil {
		t.Fatalf("expected empty slice, got nil")
	}
}

func TestOrderServiceRecentUserOrdersAppliesLimit(t *testing.T) {
	var gotLimit int
	repo := &stubOrderRepository{
		listByUserFunc: func(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
			gotLimit = limit
			return nil, nil
		},
	}

	service, err := NewOrderService(OrderServiceDeps{Orders: repo, Products: catalogWith(), UserOrdersLimit: 7})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	if _, err := service.RecentUserOrders(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 7 {
		t.Fatalf("expected limit 7, got %d", gotLimit)
	}
}

func TestOrderServiceUserOrdersExpandsProducts(t *testing.T) {
	repo := &stubOrderRepository{
		listByUserFunc: func(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
			return []domain.Order{
				{
					ID: "ord_1",
					Items: []domain.OrderItem{
						{ProductID: "prod-1", Quantity: 2},
						{ProductID: "prod-gone", Quantity: 1},
					},
				},
				{
					ID:    "ord_2",
					Items: []domain.OrderItem{{ProductID: "prod-1", Quantity: 1}},
				},
			}, nil
		},
	}

	var lookups int
	catalog := catalogWith(domain.Product{ID: "prod-1", Name: "Trail Shoe", Price: 129.99, InStock: true})
	inner := catalog.findIDsFunc
	catalog.findIDsFunc = func(ctx context.Context, ids []string) (map[string]domain.Product, error) {
		lookups++
		if len(ids) != 2 {
			t.Fatalf("expected deduplicated ids across orders, got %v", ids)
		}
		return inner(ctx, ids)
	}

	service, err := NewOrderService(OrderServiceDeps{Orders: repo, Products: catalog})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	views, err := service.UserOrders(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lookups != 1 {
		t.Fatalf("expected a single catalog lookup, got %d", lookups)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(views))
	}

	first := views[0]
	if first.Items[0].Product == nil || first.Items[0].Product.Name != "Trail Shoe" {
		t.Fatalf("expected resolved product, got %#v", first.Items[0].Product)
	}
	if first.Items[1].Product != nil {
		t.Fatalf("expected nil product for a vanished catalog entry, got %#v", first.Items[1].Product)
	}
	if first.Items[1].ProductID != "prod-gone" {
		t.Fatalf("expected stored reference to survive, got %q", first.Items[1].ProductID)
	}
}

func TestOrderServiceUserStats(t *testing.T) {
	last := time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC)
	repo := &stubOrderRepository{
		statsFunc: func(ctx context.Context, userID string) (domain.OrderStats, error) {
			return domain.OrderStats{TotalOrders: 3, TotalSpent: 900, AverageOrderValue: 300, LastOrderAt: &last}, nil
		},
	}

	service, err := NewOrderService(OrderServiceDeps{Orders: repo, Products: catalogWith()})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	stats, err := service.UserStats(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalOrders != 3 || stats.AverageOrderValue != 300 {
		t.Fatalf("unexpected stats %#v", stats)
	}
	if stats.LastOrderAt == nil || !stats.LastOrderAt.Equal(last) {
		t.Fatalf("expected last order at %v, got %#v", last, stats.LastOrderAt)
	}
}
