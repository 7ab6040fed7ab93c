package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/skycart/api/internal/domain"
	"github.com/skycart/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders          repositories.OrderRepository
	Products        repositories.ProductRepository
	UserOrdersLimit int
	Clock           func() time.Time
	Events          OrderEventPublisher
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders          repositories.OrderRepository
	products        repositories.ProductRepository
	userOrdersLimit int
	clock           func() time.Time
	events          OrderEventPublisher
	logger          func(context.Context, string, map[string]any)
}

const defaultUserOrdersLimit = 5

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}

	limit := deps.UserOrdersLimit
	if limit <= 0 {
		limit = defaultUserOrdersLimit
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:          deps.Orders,
		products:        deps.Products,
		userOrdersLimit: limit,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (OrderView, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return OrderView{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return OrderView{}, s.mapRepositoryError(err)
	}
	return s.expandOrder(ctx, order)
}

func (s *orderService) ListOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[OrderView], error) {
	for _, status := range query.Status {
		if !domain.OrderStatus(status).Valid() {
			return domain.CursorPage[OrderView]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}

	page, err := s.orders.List(ctx, repositoriesOrderFilter(query))
	if err != nil {
		return domain.CursorPage[OrderView]{}, s.mapRepositoryError(err)
	}

	views, err := s.expandOrders(ctx, page.Items)
	if err != nil {
		return domain.CursorPage[OrderView]{}, err
	}
	return domain.CursorPage[OrderView]{
		Items:         views,
		NextPageToken: page.NextPageToken,
	}, nil
}

// SetStatus applies the requested fulfilment state. Any recognised status
// may replace any other; support staff routinely move orders backwards to
// correct mistakes, so no transition graph is enforced. The tracking ID is
// overwritten only when one is supplied.
func (s *orderService) SetStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (OrderView, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return OrderView{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Status.Valid() {
		return OrderView{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return OrderView{}, s.mapRepositoryError(err)
	}

	previous := order.Status
	s.applyStatus(&order, cmd, s.clock())

	if err := s.orders.Update(ctx, order); err != nil {
		return OrderView{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.status.updated", map[string]any{
		"order":    order.ID,
		"previous": string(previous),
		"status":   string(order.Status),
		"actor":    cmd.ActorID,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     order.UpdatedAt,
	})

	return s.expandOrder(ctx, order)
}

// UserOrders returns the user's entire order history, newest first.
func (s *orderService) UserOrders(ctx context.Context, userID string) ([]OrderView, error) {
	return s.listUserOrders(ctx, userID, 0)
}

// RecentUserOrders returns only the newest orders, capped for admin views.
func (s *orderService) RecentUserOrders(ctx context.Context, userID string) ([]OrderView, error) {
	return s.listUserOrders(ctx, userID, s.userOrdersLimit)
}

func (s *orderService) listUserOrders(ctx context.Context, userID string, limit int) ([]OrderView, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	orders, err := s.orders.ListByUser(ctx, uid, limit)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return s.expandOrders(ctx, orders)
}

func (s *orderService) UserStats(ctx context.Context, userID string) (OrderStats, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return OrderStats{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	stats, err := s.orders.StatsByUser(ctx, uid)
	if err != nil {
		return OrderStats{}, s.mapRepositoryError(err)
	}
	return stats, nil
}

// expandOrders resolves current product details for every line across the
// given orders in one catalog lookup. Lines whose product has left the
// catalog keep their reference with a nil product.
func (s *orderService) expandOrders(ctx context.Context, orders []Order) ([]OrderView, error) {
	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, order := range orders {
		for _, item := range order.Items {
			if _, ok := seen[item.ProductID]; ok {
				continue
			}
			seen[item.ProductID] = struct{}{}
			ids = append(ids, item.ProductID)
		}
	}

	products := map[string]Product{}
	if len(ids) > 0 {
		resolved, err := s.products.FindByIDs(ctx, ids)
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}
		products = resolved
	}

	views := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, buildOrderView(order, products))
	}
	return views, nil
}

func (s *orderService) expandOrder(ctx context.Context, order Order) (OrderView, error) {
	views, err := s.expandOrders(ctx, []Order{order})
	if err != nil {
		return OrderView{}, err
	}
	return views[0], nil
}

func buildOrderView(order Order, products map[string]Product) OrderView {
	view := OrderView{
		Order: order,
		Items: make([]OrderItemView, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		line := OrderItemView{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
		if product, ok := products[item.ProductID]; ok {
			p := product
			line.Product = &p
		}
		view.Items = append(view.Items, line)
	}
	return view
}

func (s *orderService) applyStatus(order *Order, cmd UpdateOrderStatusCommand, now time.Time) {
	order.Status = cmd.Status
	order.UpdatedAt = now
	if cmd.TrackingID != nil {
		tracking := strings.TrimSpace(*cmd.TrackingID)
		order.TrackingID = &tracking
	}
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}
