package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/skycart/api/internal/domain"
	pfirestore "github.com/skycart/api/internal/platform/firestore"
	"github.com/skycart/api/internal/repositories"
)

const addressCollectionPattern = "users/%s/addresses"

// AddressRepository persists user addresses in Firestore.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// List returns all addresses for the specified user ordered by most recent update.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("updatedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var results []domain.Address
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("addresses.list", err)
		}
		addr, err := decodeAddressDocument(snap, userID)
		if err != nil {
			return nil, err
		}
		results = append(results, addr)
	}
	return results, nil
}

// Reconcile finds an address matching the candidate's dedup key or inserts
// the candidate as the user's new default. The dedup lookup, the default
// clearing, and the insert run in one transaction so concurrent checkouts
// cannot produce two defaults or two copies of the same destination.
func (r *AddressRepository) Reconcile(ctx context.Context, userID string, addr domain.Address) (domain.Address, bool, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, false, err
	}

	key := addr.DedupKey()

	var (
		saved   domain.Address
		created bool
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		query := coll.Where("dedupKey", "==", key).Limit(1)
		snaps, err := tx.Documents(query).GetAll()
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if len(snaps) > 0 {
			existing, err := decodeAddressDocument(snaps[0], userID)
			if err != nil {
				return err
			}
			saved = existing
			created = false
			return nil
		}

		// Reads must precede writes inside a Firestore transaction, so the
		// current defaults are collected before the new entry is written.
		defaultsQuery := coll.Where("isDefault", "==", true).Limit(10)
		defaultSnaps, err := tx.Documents(defaultsQuery).GetAll()
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		docRef := coll.NewDoc()
		now := time.Now().UTC()
		createdAt := addr.CreatedAt.UTC()
		if createdAt.IsZero() {
			createdAt = now
		}

		doc := addressDocument{
			FullName:   strings.TrimSpace(addr.FullName),
			Phone:      strings.TrimSpace(addr.Phone),
			AltPhone:   strings.TrimSpace(addr.AltPhone),
			Street:     addr.Street,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Label:      addr.Label,
			Country:    addr.Country,
			IsDefault:  true,
			DedupKey:   key,
			CreatedAt:  createdAt,
			UpdatedAt:  now,
		}
		if err := tx.Set(docRef, doc); err != nil {
			return err
		}

		for _, snap := range defaultSnaps {
			if snap.Ref.ID == docRef.ID {
				continue
			}
			if err := tx.Update(snap.Ref, []firestore.Update{{Path: "isDefault", Value: false}}); err != nil {
				return err
			}
		}

		saved = doc.toDomain(docRef.ID, userID)
		created = true
		return nil
	})
	if err != nil {
		return domain.Address{}, false, pfirestore.WrapError("addresses.reconcile", err)
	}
	return saved, created, nil
}

// Get loads a single address document.
func (r *AddressRepository) Get(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	return decodeAddressDocument(snap, userID)
}

// Delete removes the specified address document.
func (r *AddressRepository) Delete(ctx context.Context, userID string, addressID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return errors.New("address repository: address id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("addresses.delete", err)
	}
	return nil
}

func (r *AddressRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf(addressCollectionPattern, uid)
	return client.Collection(path), nil
}

func decodeAddressDocument(snapshot *firestore.DocumentSnapshot, userID string) (domain.Address, error) {
	var doc addressDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", snapshot.Ref.ID, err)
	}
	return doc.toDomain(snapshot.Ref.ID, userID), nil
}

type addressDocument struct {
	FullName   string    `firestore:"fullName"`
	Phone      string    `firestore:"phone"`
	AltPhone   string    `firestore:"altPhone,omitempty"`
	Street     string    `firestore:"street"`
	City       string    `firestore:"city"`
	State      string    `firestore:"state"`
	PostalCode string    `firestore:"postalCode"`
	Label      string    `firestore:"label,omitempty"`
	Country    string    `firestore:"country"`
	IsDefault  bool      `firestore:"isDefault"`
	DedupKey   string    `firestore:"dedupKey"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d addressDocument) toDomain(id, userID string) domain.Address {
	return domain.Address{
		ID:         id,
		UserID:     userID,
		FullName:   d.FullName,
		Phone:      d.Phone,
		AltPhone:   d.AltPhone,
		Street:     d.Street,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Label:      d.Label,
		Country:    d.Country,
		IsDefault:  d.IsDefault,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// Ensure interface compliance.
var _ repositories.AddressRepository = (*AddressRepository)(nil)
