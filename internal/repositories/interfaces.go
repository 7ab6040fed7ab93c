package repositories

import (
	"context"
	"time"

	domain "github.com/skycart/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository owns cart persistence. A cart document is keyed by the
// owning user's ID, and deleting the document is how an empty cart is stored.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Replace(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error)
	Delete(ctx context.Context, userID string) error
}

// OrderRepository persists order headers and provides query helpers for users
// and admins. ListByUser returns the user's newest orders first; a limit of
// zero or less returns the full history.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	StatsByUser(ctx context.Context, userID string) (domain.OrderStats, error)
}

// OrderListFilter narrows admin order listings. Sort orders by creation time;
// the zero value sorts newest first.
type OrderListFilter struct {
	UserID     string
	Status     []string
	Sort       domain.SortOrder
	Pagination domain.Pagination
}

// CheckoutMutation captures the writes a checkout applies atomically: the
// new order plus the cart change it implies. When RemainingItems is empty
// the cart document is deleted, otherwise it is rewritten with the leftover
// lines. CartExpectedUpdate is the cart's last update time as read by the
// checkout; the cart write is rejected as a conflict when the stored document
// has moved past it, so concurrent checkouts or cart edits cannot consume the
// same lines twice.
type CheckoutMutation struct {
	Order              domain.Order
	RemainingItems     []domain.CartItem
	CartCreatedAt      time.Time
	CartUpdatedAt      time.Time
	CartExpectedUpdate time.Time
}

// CheckoutRepository commits an order and the matching cart mutation in one
// transaction, so a placed order never leaves stale cart lines behind.
type CheckoutRepository interface {
	PlaceOrder(ctx context.Context, mutation CheckoutMutation) error
}

// AddressRepository stores shipping addresses per user.
//
// Reconcile looks up an address with the same dedup key for the user. When
// one exists it is returned unchanged with created=false; otherwise the
// candidate is inserted as the new default, clearing the flag on every other
// entry, and returned with created=true.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Reconcile(ctx context.Context, userID string, addr domain.Address) (stored domain.Address, created bool, err error)
	Get(ctx context.Context, userID string, addressID string) (domain.Address, error)
	Delete(ctx context.Context, userID string, addressID string) error
}

// ProductRepository is a read-only projection of the catalog owned by another subsystem.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// UserRepository resolves account profiles for invoices and admin views.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
}

// CounterConfig customises counter behaviour. Nil pointer fields leave the
// stored setting untouched.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
