package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// Address is a saved shipping destination owned by a user.
type Address struct {
	ID         string
	UserID     string
	FullName   string
	Phone      string
	AltPhone   string
	Street     string
	City       string
	State      string
	PostalCode string
	Label      string
	Country    string
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DedupKey joins the fields that identify a physical destination. Two
// addresses with the same key are treated as the same entry regardless of
// contact details, label, or state.
func (a Address) DedupKey() string {
	return strings.Join([]string{a.Street, a.City, a.PostalCode}, "|")
}

// CartItem is a single product line inside a cart.
type CartItem struct {
	ID        string
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// Cart holds the pending items for a single user. A user has at most one
// cart, keyed by their user ID; an empty cart is represented by the absence
// of a stored record.
type Cart struct {
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product is the catalog view needed by carts, checkout, and invoices.
// The catalog itself is owned by another subsystem; this projection is
// read-only here.
type Product struct {
	ID            string
	Name          string
	Brand         string
	Category      string
	ImageURL      string
	Price         float64
	DiscountPrice float64
	InStock       bool
}

// EffectivePrice returns the price a buyer pays for one unit: the discounted
// price when one is set, the list price otherwise.
func (p Product) EffectivePrice() float64 {
	if p.DiscountPrice > 0 {
		return p.DiscountPrice
	}
	return p.Price
}

// OrderStatus enumerates the fulfilment states an order moves through.
type OrderStatus string

const (
	// OrderStatusPending is the initial state of every placed order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the buyer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether the status is one of the recognised states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// OrderItem is a product line captured at checkout time. Only the product
// reference and quantity are snapshotted; pricing is resolved against the
// catalog whenever a document needs it.
type OrderItem struct {
	ProductID string
	Quantity  int
}

// Order is the immutable record of a checkout plus its mutable fulfilment
// state. Items, address, payment method, and total never change after
// placement; status and tracking ID do.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Items           []OrderItem
	ShippingAddress Address
	PaymentMethod   string
	Total           float64
	ShippingPrice   float64
	TaxPrice        float64
	Status          OrderStatus
	TrackingID      *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderStats summarizes a user's purchase history for admin views.
type OrderStats struct {
	TotalOrders       int
	TotalSpent        float64
	AverageOrderValue float64
	LastOrderAt       *time.Time
}

// UserProfile is the account projection needed for invoices and admin
// lookups.
type UserProfile struct {
	ID          string
	DisplayName string
	Email       string
	Phone       string
	CreatedAt   time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
