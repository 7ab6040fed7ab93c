package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/skycart/api/internal/domain"
	pfirestore "github.com/skycart/api/internal/platform/firestore"
	"github.com/skycart/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository reads catalog entries from Firestore. The catalog is
// written by another subsystem; this repository never mutates it.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{base: base}, nil
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs resolves a batch of product IDs in one query. Missing products
// are simply absent from the result map; the caller decides whether that is
// an error.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	unique := make([]string, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		unique = append(unique, trimmed)
	}

	products := make(map[string]domain.Product, len(unique))
	if len(unique) == 0 {
		return products, nil
	}

	// Firestore "in" queries accept at most 30 values per filter.
	const batchSize = 30
	for start := 0; start < len(unique); start += batchSize {
		end := start + batchSize
		if end > len(unique) {
			end = len(unique)
		}
		batch := unique[start:end]

		docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
			return query.Where(firestore.DocumentID, "in", batch)
		})
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			products[doc.ID] = doc.Data.toDomain(doc.ID)
		}
	}
	return products, nil
}

type productDocument struct {
	Name          string  `firestore:"name"`
	Brand         string  `firestore:"brand,omitempty"`
	Category      string  `firestore:"category,omitempty"`
	ImageURL      string  `firestore:"imageUrl,omitempty"`
	Price         float64 `firestore:"price"`
	DiscountPrice float64 `firestore:"discountPrice"`
	InStock       bool    `firestore:"inStock"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:            id,
		Name:          d.Name,
		Brand:         d.Brand,
		Category:      d.Category,
		ImageURL:      d.ImageURL,
		Price:         d.Price,
		DiscountPrice: d.DiscountPrice,
		InStock:       d.InStock,
	}
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
