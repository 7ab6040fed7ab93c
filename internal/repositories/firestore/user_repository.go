package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/skycart/api/internal/domain"
	pfirestore "github.com/skycart/api/internal/platform/firestore"
	"github.com/skycart/api/internal/repositories"
)

const userCollection = "users"

// UserRepository reads user profiles from Firestore. Account management is
// owned by another subsystem; invoices and admin views only need lookups.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base}, nil
}

// FindByID loads the user profile by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	profile := domain.UserProfile{
		ID:          doc.ID,
		DisplayName: doc.Data.DisplayName,
		Email:       doc.Data.Email,
		Phone:       doc.Data.Phone,
		CreatedAt:   doc.Data.CreatedAt,
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = doc.CreateTime
	}
	return profile, nil
}

type userDocument struct {
	DisplayName string    `firestore:"displayName"`
	Email       string    `firestore:"email"`
	Phone       string    `firestore:"phone,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

var _ repositories.UserRepository = (*UserRepository)(nil)
