package services

import (
	"context"
	"time"

	domain "github.com/skycart/api/internal/domain"
	"github.com/skycart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Address            = domain.Address
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	Product            = domain.Product
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	OrderStats         = domain.OrderStats
	UserProfile        = domain.UserProfile
	SystemHealthReport = domain.SystemHealthReport
)

// AddressInput is the checkout-time address payload before reconciliation.
type AddressInput struct {
	FullName   string
	Phone      string
	AltPhone   string
	Street     string
	City       string
	State      string
	PostalCode string
	Label      string
	Country    string
}

// AddressService reconciles checkout addresses against the user's address
// book and manages saved entries.
type AddressService interface {
	Reconcile(ctx context.Context, userID string, input AddressInput) (Address, bool, error)
	List(ctx context.Context, userID string) ([]Address, error)
	Delete(ctx context.Context, userID string, addressID string) error
}

// CartView is a cart with its product references resolved against the
// catalog and line totals precomputed for presentation.
type CartView struct {
	UserID    string
	Items     []CartItemView
	Subtotal  float64
	UpdatedAt time.Time
}

// CartItemView pairs a cart line with its catalog projection.
type CartItemView struct {
	ID        string
	Product   Product
	Quantity  int
	LineTotal float64
	AddedAt   time.Time
}

// AddCartItemCommand adds quantity of a product to the user's cart.
type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

// UpdateCartItemCommand replaces the quantity of an existing cart line.
type UpdateCartItemCommand struct {
	UserID   string
	ItemID   string
	Quantity int
}

// CartService manages the user's pending cart.
type CartService interface {
	GetCart(ctx context.Context, userID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, userID string, itemID string) (CartView, error)
	ClearCart(ctx context.Context, userID string) error
}

// CheckoutMode selects which cart lines a checkout consumes.
type CheckoutMode string

const (
	// CheckoutModeFullCart places an order for every line in the cart.
	CheckoutModeFullCart CheckoutMode = ""
	// CheckoutModeBuyNow places an order for a single product's line only.
	CheckoutModeBuyNow CheckoutMode = "buy-now"
)

// PlaceOrderCommand carries the checkout submission. Total, ShippingPrice,
// and TaxPrice arrive from the client and are stored as given; invoices
// recompute their own totals from the catalog.
type PlaceOrderCommand struct {
	UserID          string
	ShippingAddress AddressInput
	PaymentMethod   string
	Mode            CheckoutMode
	ProductID       string
	Total           float64
	ShippingPrice   float64
	TaxPrice        float64
}

// PlaceOrderResult reports the created order back to the caller.
type PlaceOrderResult struct {
	OrderID         string
	OrderNumber     string
	ShippingAddress Address
}

// CheckoutService turns a cart plus a shipping/payment selection into a
// persisted order.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
}

// OrderListQuery narrows admin order listings. Sort orders the page by
// creation time; the zero value sorts newest first.
type OrderListQuery struct {
	UserID     string
	Status     []string
	Sort       domain.SortOrder
	Pagination Pagination
}

// UpdateOrderStatusCommand mutates the fulfilment state of an order.
// TrackingID is only written when non-nil.
type UpdateOrderStatusCommand struct {
	OrderID    string
	Status     OrderStatus
	TrackingID *string
	ActorID    string
}

// OrderItemView pairs an order line with its catalog projection. Product is
// nil when the referenced product has since left the catalog.
type OrderItemView struct {
	ProductID string
	Quantity  int
	Product   *Product
}

// OrderView is an order with its product references resolved for
// presentation. The stored order snapshots references only; product details
// always reflect the current catalog.
type OrderView struct {
	Order Order
	Items []OrderItemView
}

// OrderService serves order reads and fulfilment updates. UserOrders is the
// user's complete history newest first; RecentUserOrders is the short
// tail shown in admin user views.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (OrderView, error)
	ListOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[OrderView], error)
	SetStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (OrderView, error)
	UserOrders(ctx context.Context, userID string) ([]OrderView, error)
	RecentUserOrders(ctx context.Context, userID string) ([]OrderView, error)
	UserStats(ctx context.Context, userID string) (OrderStats, error)
}

// Invoice is a fully rendered PDF ready to stream to the client.
type Invoice struct {
	FileName string
	Content  []byte
}

// RenderInvoiceCommand identifies the order and the requestor so ownership
// can be enforced before any bytes are produced.
type RenderInvoiceCommand struct {
	OrderID          string
	RequestorID      string
	RequestorIsAdmin bool
}

// InvoiceService renders order invoices as PDF documents.
type InvoiceService interface {
	Render(ctx context.Context, cmd RenderInvoiceCommand) (Invoice, error)
}

// SystemService aggregates dependency health for operational endpoints.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}

// repositoriesOrderFilter converts the service query to the repository filter.
func repositoriesOrderFilter(query OrderListQuery) repositories.OrderListFilter {
	return repositories.OrderListFilter{
		UserID:     query.UserID,
		Status:     query.Status,
		Sort:       query.Sort,
		Pagination: query.Pagination,
	}
}
