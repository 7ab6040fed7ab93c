package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/skycart/api/internal/domain"
	pfirestore "github.com/skycart/api/internal/platform/firestore"
	"github.com/skycart/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists cart documents within Firestore. The document ID
// is the owning user's ID, so each user has at most one cart.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// Get loads the cart for the given user ID.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		UserID:    doc.ID,
		Items:     make([]domain.CartItem, 0, len(doc.Data.Items)),
		CreatedAt: doc.Data.CreatedAt,
		UpdatedAt: doc.UpdateTime,
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = doc.CreateTime
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = doc.Data.UpdatedAt
	}
	for _, item := range doc.Data.Items {
		cart.Items = append(cart.Items, item.toDomain())
	}
	return cart, nil
}

// Replace overwrites the stored cart with the supplied state. When
// expectedUpdate is set the write is rejected with a conflict unless the
// document's last update time still matches.
func (r *CartRepository) Replace(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := cartDocument{
		Items:     make([]cartItemDocument, 0, len(cart.Items)),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, newCartItemDocument(item))
	}

	var (
		result pfirestore.MutationResult
		err    error
	)
	if expectedUpdate == nil || expectedUpdate.IsZero() {
		result, err = r.base.Set(ctx, uid, doc)
	} else {
		updates := []firestore.Update{
			{Path: "items", Value: doc.Items},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		}
		result, err = r.base.Update(ctx, uid, updates, firestore.LastUpdateTime(expectedUpdate.UTC()))
	}
	if err != nil {
		return domain.Cart{}, err
	}

	saved := domain.Cart{
		UserID:    uid,
		Items:     make([]domain.CartItem, len(cart.Items)),
		CreatedAt: createdAt,
		UpdatedAt: result.UpdateTime,
	}
	copy(saved.Items, cart.Items)
	return saved, nil
}

// Delete removes the cart document entirely. Deleting a missing cart is not
// an error.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}
	if _, err := r.base.Delete(ctx, uid); err != nil {
		return err
	}
	return nil
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID        string    `firestore:"id"`
	ProductID string    `firestore:"productId"`
	Quantity  int       `firestore:"quantity"`
	AddedAt   time.Time `firestore:"addedAt"`
}

func newCartItemDocument(item domain.CartItem) cartItemDocument {
	return cartItemDocument{
		ID:        item.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		AddedAt:   item.AddedAt.UTC(),
	}
}

func (d cartItemDocument) toDomain() domain.CartItem {
	return domain.CartItem{
		ID:        d.ID,
		ProductID: d.ProductID,
		Quantity:  d.Quantity,
		AddedAt:   d.AddedAt,
	}
}

var _ repositories.CartRepository = (*CartRepository)(nil)
