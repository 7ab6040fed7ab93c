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

const cartItemIDPrefix = "itm_"

var (
	// ErrCartInvalidInput signals the caller provided invalid data.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartNotFound indicates the user has no stored cart.
	ErrCartNotFound = errors.New("cart: not found")
	// ErrCartItemNotFound indicates the referenced cart line does not exist.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartProductNotFound indicates the referenced product is not in the catalog.
	ErrCartProductNotFound = errors.New("cart: product not found")
	// ErrCartConflict indicates a concurrent modification was detected.
	ErrCartConflict = errors.New("cart: conflict")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
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

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// GetCart loads the user's cart with product details resolved. A user
// without a stored cart gets an empty view rather than an error.
func (s *cartService) GetCart(ctx context.Context, userID string) (CartView, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CartView{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return CartView{UserID: uid, Items: []CartItemView{}}, nil
		}
		return CartView{}, err
	}
	return s.buildView(ctx, cart)
}

// AddItem appends a product line or increments an existing one.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CartView{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return CartView{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}

	if _, err := s.products.FindByID(ctx, productID); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return CartView{}, fmt.Errorf("%w: %s", ErrCartProductNotFound, productID)
		}
		return CartView{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	cart, err := s.loadCart(ctx, uid)
	existed := true
	if err != nil {
		if !errors.Is(err, ErrCartNotFound) {
			return CartView{}, err
		}
		existed = false
		cart = domain.Cart{UserID: uid, CreatedAt: now}
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity += cmd.Quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        cartItemIDPrefix + s.newID(),
			ProductID: productID,
			Quantity:  cmd.Quantity,
			AddedAt:   now,
		})
	}

	saved, err := s.saveCart(ctx, cart, existed, now)
	if err != nil {
		return CartView{}, err
	}
	return s.buildView(ctx, saved)
}

// UpdateItemQuantity replaces the quantity of an existing cart line.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CartView{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return CartView{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return CartView{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, uid)
	if err != nil {
		return CartView{}, err
	}

	found := false
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			cart.Items[i].Quantity = cmd.Quantity
			found = true
			break
		}
	}
	if !found {
		return CartView{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}

	saved, err := s.saveCart(ctx, cart, true, s.clock())
	if err != nil {
		return CartView{}, err
	}
	return s.buildView(ctx, saved)
}

// RemoveItem drops a cart line. When the last line goes, the cart record
// goes with it.
func (s *cartService) RemoveItem(ctx context.Context, userID string, itemID string) (CartView, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CartView{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	id := strings.TrimSpace(itemID)
	if id == "" {
		return CartView{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, uid)
	if err != nil {
		return CartView{}, err
	}

	remaining := make([]domain.CartItem, 0, len(cart.Items))
	found := false
	for _, item := range cart.Items {
		if item.ID == id {
			found = true
			continue
		}
		remaining = append(remaining, item)
	}
	if !found {
		return CartView{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, id)
	}

	if len(remaining) == 0 {
		if err := s.carts.Delete(ctx, uid); err != nil {
			return CartView{}, s.mapRepositoryError(err)
		}
		return CartView{UserID: uid, Items: []CartItemView{}}, nil
	}

	cart.Items = remaining
	saved, err := s.saveCart(ctx, cart, true, s.clock())
	if err != nil {
		return CartView{}, err
	}
	return s.buildView(ctx, saved)
}

// ClearCart removes the cart record. Clearing a missing cart succeeds.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := s.carts.Delete(ctx, uid); err != nil {
		mapped := s.mapRepositoryError(err)
		if errors.Is(mapped, ErrCartNotFound) {
			return nil
		}
		return mapped
	}
	return nil
}

func (s *cartService) loadCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, s.mapRepositoryError(err)
	}
	return cart, nil
}

func (s *cartService) saveCart(ctx context.Context, cart domain.Cart, existed bool, now time.Time) (domain.Cart, error) {
	var expected *time.Time
	if existed && !cart.UpdatedAt.IsZero() {
		stamp := cart.UpdatedAt
		expected = &stamp
	}
	cart.UpdatedAt = now

	saved, err := s.carts.Replace(ctx, cart, expected)
	if err != nil {
		return domain.Cart{}, s.mapRepositoryError(err)
	}
	return saved, nil
}

// buildView resolves product details for every line. Lines whose product
// has left the catalog keep their reference so the client can still show
// and remove them.
func (s *cartService) buildView(ctx context.Context, cart domain.Cart) (CartView, error) {
	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}

	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}

	view := CartView{
		UserID:    cart.UserID,
		Items:     make([]CartItemView, 0, len(cart.Items)),
		UpdatedAt: cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			product = domain.Product{ID: item.ProductID}
		}
		line := CartItemView{
			ID:        item.ID,
			Product:   product,
			Quantity:  item.Quantity,
			LineTotal: product.EffectivePrice() * float64(item.Quantity),
			AddedAt:   item.AddedAt,
		}
		view.Subtotal += line.LineTotal
		view.Items = append(view.Items, line)
	}
	return view, nil
}

func (s *cartService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCartConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("cart: repository unavailable: %w", err)
		}
	}

	return err
}
