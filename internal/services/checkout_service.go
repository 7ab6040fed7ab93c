package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/skycart/api/internal/domain"
	"github.com/skycart/api/internal/repositories"
)

const (
	orderIDPrefix      = "ord_"
	orderNumberCounter = "orders"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutEmptyCart indicates the user has nothing to check out.
	ErrCheckoutEmptyCart = errors.New("checkout: cart is empty")
	// ErrCheckoutInvalidAddress indicates the shipping address failed validation.
	ErrCheckoutInvalidAddress = errors.New("checkout: invalid shipping address")
	// ErrCheckoutInvalidPayment indicates an unrecognised payment method.
	ErrCheckoutInvalidPayment = errors.New("checkout: invalid payment method")
	// ErrCheckoutItemNotFound indicates a buy-now product is absent from the cart.
	ErrCheckoutItemNotFound = errors.New("checkout: item not in cart")
	// ErrCheckoutConflict indicates a concurrent modification prevented completing checkout.
	ErrCheckoutConflict = errors.New("checkout: conflict")
)

var validPaymentMethods = map[string]bool{
	"cod":        true,
	"card":       true,
	"paypal":     true,
	"apple_pay":  true,
	"google_pay": true,
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Checkout    repositories.CheckoutRepository
	Counters    repositories.CounterRepository
	Addresses   AddressService
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts     repositories.CartRepository
	checkout  repositories.CheckoutRepository
	counters  repositories.CounterRepository
	addresses AddressService
	clock     func() time.Time
	newID     func() string
	events    OrderEventPublisher
	logger    func(context.Context, string, map[string]any)
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Checkout == nil {
		return nil, errors.New("checkout service: checkout repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("checkout service: address service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		carts:     deps.Carts,
		checkout:  deps.Checkout,
		counters:  deps.Counters,
		addresses: deps.Addresses,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// PlaceOrder validates the submission, reconciles the shipping address,
// snapshots the selected cart lines into an immutable order, and commits
// the order plus the cart mutation in one transaction.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}

	method := strings.TrimSpace(cmd.PaymentMethod)
	if !validPaymentMethods[method] {
		return PlaceOrderResult{}, fmt.Errorf("%w: %q", ErrCheckoutInvalidPayment, cmd.PaymentMethod)
	}

	switch cmd.Mode {
	case CheckoutModeFullCart, CheckoutModeBuyNow:
	default:
		return PlaceOrderResult{}, fmt.Errorf("%w: unknown mode %q", ErrCheckoutInvalidInput, cmd.Mode)
	}
	if cmd.Mode == CheckoutModeBuyNow && strings.TrimSpace(cmd.ProductID) == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: product id is required for buy-now", ErrCheckoutInvalidInput)
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return PlaceOrderResult{}, ErrCheckoutEmptyCart
		}
		return PlaceOrderResult{}, s.mapRepositoryError(err)
	}
	if len(cart.Items) == 0 {
		return PlaceOrderResult{}, ErrCheckoutEmptyCart
	}

	address, _, err := s.addresses.Reconcile(ctx, uid, cmd.ShippingAddress)
	if err != nil {
		if errors.Is(err, ErrAddressInvalidInput) {
			return PlaceOrderResult{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidAddress, err)
		}
		return PlaceOrderResult{}, err
	}

	selected, remaining, err := splitCartItems(cart.Items, cmd.Mode, cmd.ProductID)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	now := s.clock()
	orderNumber, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return PlaceOrderResult{}, s.mapRepositoryError(err)
	}

	order := domain.Order{
		ID:              orderIDPrefix + s.newID(),
		OrderNumber:     orderNumber,
		UserID:          uid,
		Items:           make([]domain.OrderItem, 0, len(selected)),
		ShippingAddress: address,
		PaymentMethod:   method,
		Total:           cmd.Total,
		ShippingPrice:   cmd.ShippingPrice,
		TaxPrice:        cmd.TaxPrice,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, item := range selected {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	mutation := repositories.CheckoutMutation{
		Order:              order,
		RemainingItems:     remaining,
		CartCreatedAt:      cart.CreatedAt,
		CartUpdatedAt:      now,
		CartExpectedUpdate: cart.UpdatedAt,
	}
	if err := s.checkout.PlaceOrder(ctx, mutation); err != nil {
		return PlaceOrderResult{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "checkout.order.placed", map[string]any{
		"user":   uid,
		"order":  order.ID,
		"number": order.OrderNumber,
		"items":  len(order.Items),
		"mode":   string(cmd.Mode),
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		ActorID:       uid,
		OccurredAt:    now,
	})

	return PlaceOrderResult{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		ShippingAddress: address,
	}, nil
}

// splitCartItems selects the lines the order consumes. Buy-now takes only
// the matching product's line and leaves the rest in the cart; full-cart
// takes everything.
func splitCartItems(items []domain.CartItem, mode CheckoutMode, productID string) (selected, remaining []domain.CartItem, err error) {
	if mode != CheckoutModeBuyNow {
		selected = make([]domain.CartItem, len(items))
		copy(selected, items)
		return selected, nil, nil
	}

	target := strings.TrimSpace(productID)
	for _, item := range items {
		if item.ProductID == target {
			selected = append(selected, item)
			continue
		}
		remaining = append(remaining, item)
	}
	if len(selected) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrCheckoutItemNotFound, target)
	}
	return selected, remaining, nil
}

func (s *checkoutService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SC-%04d-%06d", now.Year(), seq), nil
}

func (s *checkoutService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *checkoutService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("checkout: repository unavailable: %w", err)
		}
	}

	return err
}
