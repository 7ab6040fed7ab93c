package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/skycart/api/internal/domain"
)

func strPtr(v string) *string {
	return &v
}

func catalogWith(products ...domain.Product) *stubProductRepository {
	index := make(map[string]domain.Product, len(products))
	for _, p := range products {
		index[p.ID] = p
	}
	return &stubProductRepository{
		findFunc: func(ctx context.Context, id string) (domain.Product, error) {
			p, ok := index[id]
			if !ok {
				return domain.Product{}, &repositoryErrorStub{notFound: true}
			}
			return p, nil
		},
		findIDsFunc: func(ctx context.Context, ids []string) (map[string]domain.Product, error) {
			out := make(map[string]domain.Product, len(ids))
			for _, id := range ids {
				if p, ok := index[id]; ok {
					out[id] = p
				}
			}
			return out, nil
		},
	}
}

func TestCartServiceGetCartResolvesProducts(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			if userID != "user-123" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return domain.Cart{
				UserID: "user-123",
				Items: []domain.CartItem{
					{ID: "itm_1", ProductID: "prod-1", Quantity: 2, AddedAt: now.Add(-time.Hour)},
					{ID: "itm_2", ProductID: "prod-2", Quantity: 1, AddedAt: now.Add(-time.Minute)},
				},
				UpdatedAt: now.Add(-time.Minute),
			}, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Carts: repo,
		Products: catalogWith(
			domain.Product{ID: "prod-1", Name: "Trail Runner", Price: 150, DiscountPrice: 120},
			domain.Product{ID: "prod-2", Name: "Wool Socks", Price: 10},
		),
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	view, err := service.GetCart(context.Background(), " user-123 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(view.Items))
	}
	if view.Items[0].LineTotal != 240 {
		t.Fatalf("expected discounted line total 240, got %v", view.Items[0].LineTotal)
	}
	if view.Subtotal != 250 {
		t.Fatalf("expected subtotal 250, got %v", view.Subtotal)
	}
}

func TestCartServiceGetCartMissingReturnsEmptyView(t *testing.T) {
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{}, &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewCartService(CartServiceDeps{Carts: repo, Products: catalogWith()})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	view, err := service.GetCart(context.Background(), "user-empty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.UserID != "user-empty" {
		t.Fatalf("expected view user id user-empty, got %q", view.UserID)
	}
	if len(view.Items) != 0 || view.Subtotal != 0 {
		t.Fatalf("expected empty view, got %#v", view)
	}
}

func TestCartServiceAddItemCreatesLine(t *testing.T) {
	now := time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC)
	var replaced domain.Cart
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{}, &repositoryErrorStub{notFound: true}
		},
		replaceFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			if expected != nil {
				t.Fatalf("expected no optimistic lock for a new cart, got %v", expected)
			}
			replaced = cart
			return cart, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Carts:       repo,
		Products:    catalogWith(domain.Product{ID: "prod-1", Name: "Trail Runner", Price: 100}),
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "GENERATED" },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	view, err := service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "user-new",
		ProductID: "prod-1",
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(replaced.Items) != 1 {
		t.Fatalf("expected 1 stored item, got %d", len(replaced.Items))
	}
	if replaced.Items[0].ID != "itm_GENERATED" {
		t.Fatalf("expected prefixed item id, got %q", replaced.Items[0].ID)
	}
	if !replaced.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt %v, got %v", now, replaced.UpdatedAt)
	}
	if view.Subtotal != 200 {
		t.Fatalf("expected subtotal 200, got %v", view.Subtotal)
	}
}

func TestCartServiceAddItemMergesExistingLine(t *testing.T) {
	now := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)
	previous := now.Add(-time.Hour)
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				UserID:    userID,
				Items:     []domain.CartItem{{ID: "itm_1", ProductID: "prod-1", Quantity: 1, AddedAt: previous}},
				UpdatedAt: previous,
			}, nil
		},
		replaceFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			if expected == nil || !expected.Equal(previous) {
				t.Fatalf("expected optimistic lock on %v, got %v", previous, expected)
			}
			if len(cart.Items) != 1 {
				t.Fatalf("expected 1 item, got %d", len(cart.Items))
			}
			if cart.Items[0].Quantity != 4 {
				t.Fatalf("expected merged quantity 4, got %d", cart.Items[0].Quantity)
			}
			return cart, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Carts:    repo,
		Products: catalogWith(domain.Product{ID: "prod-1", Price: 10}),
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	view, err := service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "user-merge",
		ProductID: "prod-1",
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Items[0].Quantity != 4 {
		t.Fatalf("expected merged quantity 4, got %d", view.Items[0].Quantity)
	}
}

func TestCartServiceAddItemUnknownProduct(t *testing.T) {
	service, err := NewCartService(CartServiceDeps{
		Carts:    &stubCartRepository{},
		Products: catalogWith(),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "user-1",
		ProductID: "prod-missing",
		Quantity:  1,
	})
	if !errors.Is(err, ErrCartProductNotFound) {
		t.Fatalf("expected ErrCartProductNotFound, got %v", err)
	}
}

func TestCartServiceAddItemInvalidQuantity(t *testing.T) {
	service, err := NewCartService(CartServiceDeps{
		Carts:    &stubCartRepository{},
		Products: catalogWith(),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.AddItem(context.Background(), AddCartItemCommand{UserID: "u", ProductID: "p", Quantity: 0})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestCartServiceUpdateItemQuantity(t *testing.T) {
	now := time.Date(2026, 2, 13, 8, 0, 0, 0, time.UTC)
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				UserID:    userID,
				Items:     []domain.CartItem{{ID: "itm_1", ProductID: "prod-1", Quantity: 1}},
				UpdatedAt: now.Add(-time.Minute),
			}, nil
		},
		replaceFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			if cart.Items[0].Quantity != 5 {
				t.Fatalf("expected quantity 5, got %d", cart.Items[0].Quantity)
			}
			return cart, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Carts:    repo,
		Products: catalogWith(domain.Product{ID: "prod-1", Price: 3}),
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	view, err := service.UpdateItemQuantity(context.Background(), UpdateCartItemCommand{
		UserID:   "user-1",
		ItemID:   "itm_1",
		Quantity: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Subtotal != 15 {
		t.Fatalf("expected subtotal 15, got %v", view.Subtotal)
	}
}

func TestCartServiceUpdateItemQuantityUnknownLine(t *testing.T) {
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{UserID: userID, Items: []domain.CartItem{{ID: "itm_other", ProductID: "p", Quantity: 1}}}, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{Carts: repo, Products: catalogWith()})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.UpdateItemQuantity(context.Background(), UpdateCartItemCommand{UserID: "u", ItemID: "itm_1", Quantity: 2})
	if !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestCartServiceRemoveLastItemDeletesCart(t *testing.T) {
	deleted := false
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{UserID: userID, Items: []domain.CartItem{{ID: "itm_1", ProductID: "p", Quantity: 1}}}, nil
		},
		deleteFunc: func(ctx context.Context, userID string) error {
			deleted = true
			return nil
		},
	}

	service, err := NewCartService(CartServiceDeps{Carts: repo, Products: catalogWith()})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	view, err := service.RemoveItem(context.Background(), "user-rm", "itm_1")
	if err != nil {
		t.Fatalf("unexpected error removing item: %v", err)
	}
	if !deleted {
		t.Fatalf("expected cart record deleted")
	}
	if len(view.Items) != 0 {
		t.Fatalf("expected empty view, got %d items", len(view.Items))
	}
}

func TestCartServiceRemoveItemKeepsOthers(t *testing.T) {
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{UserID: userID, Items: []domain.CartItem{
				{ID: "itm_1", ProductID: "prod-1", Quantity: 1},
				{ID: "itm_2", ProductID: "prod-2", Quantity: 2},
			}}, nil
		},
		replaceFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			if len(cart.Items) != 1 || cart.Items[0].ID != "itm_2" {
				t.Fatalf("expected only itm_2 to remain, got %#v", cart.Items)
			}
			return cart, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Carts:    repo,
		Products: catalogWith(domain.Product{ID: "prod-2", Price: 7}),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	view, err := service.RemoveItem(context.Background(), "user-rm", "itm_1")
	if err != nil {
		t.Fatalf("unexpected error removing item: %v", err)
	}
	if view.Subtotal != 14 {
		t.Fatalf("expected subtotal 14, got %v", view.Subtotal)
	}
}

func TestCartServiceClearCartToleratesMissing(t *testing.T) {
	repo := &stubCartRepository{
		deleteFunc: func(ctx context.Context, userID string) error {
			return &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewCartService(CartServiceDeps{Carts: repo, Products: catalogWith()})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	if err := service.ClearCart(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected clearing a missing cart to succeed, got %v", err)
	}
}

func TestCartServiceConflictSurfaces(t *testing.T) {
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{UserID: userID, Items: []domain.CartItem{{ID: "itm_1", ProductID: "prod-1", Quantity: 1}}, UpdatedAt: time.Now()}, nil
		},
		replaceFunc: func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
			return domain.Cart{}, &repositoryErrorStub{conflict: true}
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Carts:    repo,
		Products: catalogWith(domain.Product{ID: "prod-1", Price: 1}),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.UpdateItemQuantity(context.Background(), UpdateCartItemCommand{UserID: "u", ItemID: "itm_1", Quantity: 2})
	if !errors.Is(err, ErrCartConflict) {
		t.Fatalf("expected ErrCartConflict, got %v", err)
	}
}

type stubCartRepository struct {
	getFunc     func(ctx context.Context, userID string) (domain.Cart, error)
	replaceFunc func(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error)
	deleteFunc  func(ctx context.Context, userID string) error
}

func (s *stubCartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartRepository) Replace(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
	if s.replaceFunc != nil {
		return s.replaceFunc(ctx, cart, expected)
	}
	return cart, nil
}

func (s *stubCartRepository) Delete(ctx context.Context, userID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, userID)
	}
	return nil
}

type stubProductRepository struct {
	findFunc    func(ctx context.Context, productID string) (domain.Product, error)
	findIDsFunc func(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

func (s *stubProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFunc != nil {
		return s.findFunc(ctx, productID)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.findIDsFunc != nil {
		return s.findIDsFunc(ctx, productIDs)
	}
	return map[string]domain.Product{}, nil
}

type repositoryErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repositoryErrorStub) Error() string {
	return "repository error"
}

func (e *repositoryErrorStub) IsNotFound() bool {
	return e.notFound
}

func (e *repositoryErrorStub) IsConflict() bool {
	return e.conflict
}

func (e *repositoryErrorStub) IsUnavailable() bool {
	return e.unavailable
}
