package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/skycart/api/internal/domain"
	pfirestore "github.com/skycart/api/internal/platform/firestore"
	"github.com/skycart/api/internal/platform/pagination"
	"github.com/skycart/api/internal/repositories"
)

const (
	orderCollection      = "orders"
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// OrderRepository persists order documents within Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

// Insert writes a brand new order document.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := r.base.Set(ctx, order.ID, newOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

// Update overwrites the mutable fields of an existing order: status,
// tracking ID, and the update timestamp. Everything captured at checkout
// stays untouched.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}

	updates := []firestore.Update{
		{Path: "status", Value: string(order.Status)},
		{Path: "updatedAt", Value: order.UpdatedAt.UTC()},
	}
	if order.TrackingID != nil {
		updates = append(updates, firestore.Update{Path: "trackingId", Value: strings.TrimSpace(*order.TrackingID)})
	}

	if _, err := r.base.Update(ctx, order.ID, updates); err != nil {
		return err
	}
	return nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns orders newest first, optionally narrowed to a user or a
// status set, with cursor pagination for admin views.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}
	if pageSize > maxOrderPageSize {
		pageSize = maxOrderPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	startAfter, err := decodeOrderCursor(cursor)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	direction := firestore.Desc
	if filter.Sort == domain.SortAsc {
		direction = firestore.Asc
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			query = query.Where("userId", "==", uid)
		}
		if len(filter.Status) > 0 {
			query = query.Where("status", "in", filter.Status)
		}
		query = query.OrderBy("createdAt", direction).OrderBy(firestore.DocumentID, direction)
		if len(startAfter) > 0 {
			query = query.StartAfter(startAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}

	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// ListByUser returns the user's orders newest first. A limit of zero or less
// returns the full history.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("order repository: user id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.
			Where("userId", "==", uid).
			OrderBy("createdAt", firestore.Desc)
		if limit > 0 {
			query = query.Limit(limit)
		}
		return query
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

// StatsByUser aggregates order counts and spend for a user.
func (r *OrderRepository) StatsByUser(ctx context.Context, userID string) (domain.OrderStats, error) {
	if r == nil || r.base == nil {
		return domain.OrderStats{}, errors.New("order repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.OrderStats{}, errors.New("order repository: user id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("userId", "==", uid).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return domain.OrderStats{}, err
	}

	stats := domain.OrderStats{TotalOrders: len(docs)}
	for _, doc := range docs {
		stats.TotalSpent += doc.Data.Total
	}
	if stats.TotalOrders > 0 {
		stats.AverageOrderValue = stats.TotalSpent / float64(stats.TotalOrders)
		last := docs[0].Data.CreatedAt
		stats.LastOrderAt = &last
	}
	return stats, nil
}

// decodeOrderCursor rebuilds the StartAfter values from a decoded token.
// Timestamps round-trip through the token as RFC3339Nano strings and must be
// converted back before Firestore can compare them against createdAt.
func decodeOrderCursor(cursor pagination.Cursor) ([]any, error) {
	if len(cursor.StartAfter) == 0 {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, pagination.ErrInvalidPageToken
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	docID, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	return []any{createdAt, docID}, nil
}

type orderDocument struct {
	OrderNumber     string              `firestore:"orderNumber"`
	UserID          string              `firestore:"userId"`
	Items           []orderItemDocument `firestore:"items"`
	ShippingAddress addressDocument     `firestore:"shippingAddress"`
	PaymentMethod   string              `firestore:"paymentMethod"`
	Total           float64             `firestore:"total"`
	ShippingPrice   float64             `firestore:"shippingPrice"`
	TaxPrice        float64             `firestore:"taxPrice"`
	Status          string              `firestore:"status"`
	TrackingID      *string             `firestore:"trackingId,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Items:       make([]orderItemDocument, 0, len(order.Items)),
		ShippingAddress: addressDocument{
			FullName:   order.ShippingAddress.FullName,
			Phone:      order.ShippingAddress.Phone,
			AltPhone:   order.ShippingAddress.AltPhone,
			Street:     order.ShippingAddress.Street,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
			Label:      order.ShippingAddress.Label,
			Country:    order.ShippingAddress.Country,
			IsDefault:  order.ShippingAddress.IsDefault,
			DedupKey:   order.ShippingAddress.DedupKey(),
			CreatedAt:  order.ShippingAddress.CreatedAt.UTC(),
			UpdatedAt:  order.ShippingAddress.UpdatedAt.UTC(),
		},
		PaymentMethod: order.PaymentMethod,
		Total:         order.Total,
		ShippingPrice: order.ShippingPrice,
		TaxPrice:      order.TaxPrice,
		Status:        string(order.Status),
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	if order.TrackingID != nil {
		tracking := strings.TrimSpace(*order.TrackingID)
		doc.TrackingID = &tracking
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:              id,
		OrderNumber:     d.OrderNumber,
		UserID:          d.UserID,
		Items:           make([]domain.OrderItem, 0, len(d.Items)),
		ShippingAddress: d.ShippingAddress.toDomain("", d.UserID),
		PaymentMethod:   d.PaymentMethod,
		Total:           d.Total,
		ShippingPrice:   d.ShippingPrice,
		TaxPrice:        d.TaxPrice,
		Status:          domain.OrderStatus(d.Status),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	if d.TrackingID != nil {
		tracking := *d.TrackingID
		order.TrackingID = &tracking
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
