package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/skycart/api/internal/platform/firestore"
	"github.com/skycart/api/internal/repositories"
)

// CheckoutRepository applies checkout writes in one Firestore transaction:
// the order document is created while the consumed cart is trimmed or
// removed. Either both writes land or neither does, and the cart write is
// guarded by the update time the checkout read so a concurrent checkout or
// cart edit fails the commit instead of being silently overwritten.
type CheckoutRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	carts    *pfirestore.BaseRepository[cartDocument]
}

// NewCheckoutRepository constructs a Firestore-backed checkout repository.
func NewCheckoutRepository(provider *pfirestore.Provider) (*CheckoutRepository, error) {
	if provider == nil {
		return nil, errors.New("checkout repository requires firestore provider")
	}
	return &CheckoutRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
		carts:    pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil),
	}, nil
}

// PlaceOrder persists the order and rewrites or deletes the user's cart.
func (r *CheckoutRepository) PlaceOrder(ctx context.Context, mutation repositories.CheckoutMutation) error {
	if r == nil || r.provider == nil {
		return errors.New("checkout repository not initialised")
	}
	orderID := strings.TrimSpace(mutation.Order.ID)
	if orderID == "" {
		return errors.New("checkout repository: order id is required")
	}
	userID := strings.TrimSpace(mutation.Order.UserID)
	if userID == "" {
		return errors.New("checkout repository: user id is required")
	}

	orderRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	cartRef, err := r.carts.DocumentRef(ctx, userID)
	if err != nil {
		return err
	}

	orderDoc := newOrderDocument(mutation.Order)

	// Firestore only conflict-checks documents the transaction itself has
	// read or guarded, so the cart write carries a LastUpdateTime
	// precondition from the snapshot the checkout was built on. A cart that
	// changed in the meantime fails the commit with FailedPrecondition,
	// which the error mapper surfaces as a conflict.
	var preconds []firestore.Precondition
	if !mutation.CartExpectedUpdate.IsZero() {
		preconds = append(preconds, firestore.LastUpdateTime(mutation.CartExpectedUpdate.UTC()))
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(orderRef, orderDoc); err != nil {
			return err
		}

		if len(mutation.RemainingItems) == 0 {
			return tx.Delete(cartRef, preconds...)
		}

		items := make([]cartItemDocument, 0, len(mutation.RemainingItems))
		for _, item := range mutation.RemainingItems {
			items = append(items, newCartItemDocument(item))
		}

		if len(preconds) > 0 {
			return tx.Update(cartRef, []firestore.Update{
				{Path: "items", Value: items},
				{Path: "updatedAt", Value: mutation.CartUpdatedAt.UTC()},
			}, preconds...)
		}

		createdAt := mutation.CartCreatedAt.UTC()
		if createdAt.IsZero() {
			createdAt = mutation.CartUpdatedAt.UTC()
		}
		return tx.Set(cartRef, cartDocument{
			Items:     items,
			CreatedAt: createdAt,
			UpdatedAt: mutation.CartUpdatedAt.UTC(),
		})
	})
	if err != nil {
		return pfirestore.WrapError("checkout.placeOrder", err)
	}
	return nil
}

var _ repositories.CheckoutRepository = (*CheckoutRepository)(nil)
