package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/skycart/api/internal/domain"
	"github.com/skycart/api/internal/repositories"
)

const (
	defaultAddressLabel   = "Shipping"
	defaultAddressCountry = "India"
)

var (
	// ErrAddressInvalidInput signals the caller provided invalid data.
	ErrAddressInvalidInput = errors.New("address: invalid input")
	// ErrAddressNotFound indicates the address could not be located.
	ErrAddressNotFound = errors.New("address: not found")
)

// AddressServiceDeps bundles collaborators required to construct the address service.
type AddressServiceDeps struct {
	Addresses repositories.AddressRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type addressService struct {
	addresses repositories.AddressRepository
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewAddressService wires dependencies into a concrete AddressService implementation.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Addresses == nil {
		return nil, errors.New("address service: address repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &addressService{
		addresses: deps.Addresses,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Reconcile validates the submitted address, reuses an existing saved entry
// when (street, city, postalCode) match one exactly, and otherwise persists
// the submission as the user's new default. The bool reports whether a new
// entry was created.
func (s *addressService) Reconcile(ctx context.Context, userID string, input AddressInput) (Address, bool, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Address{}, false, fmt.Errorf("%w: user id is required", ErrAddressInvalidInput)
	}

	candidate, err := buildAddressCandidate(input, s.clock())
	if err != nil {
		return Address{}, false, err
	}

	stored, created, err := s.addresses.Reconcile(ctx, uid, candidate)
	if err != nil {
		return Address{}, false, s.mapRepositoryError(err)
	}

	if created {
		s.logger(ctx, "address.created", map[string]any{
			"user":    uid,
			"address": stored.ID,
		})
	}
	return stored, created, nil
}

func (s *addressService) List(ctx context.Context, userID string) ([]Address, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrAddressInvalidInput)
	}

	addresses, err := s.addresses.List(ctx, uid)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if addresses == nil {
		addresses = []Address{}
	}
	return addresses, nil
}

func (s *addressService) Delete(ctx context.Context, userID string, addressID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrAddressInvalidInput)
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return fmt.Errorf("%w: address id is required", ErrAddressInvalidInput)
	}

	if err := s.addresses.Delete(ctx, uid, id); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *addressService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrAddressNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("address: repository unavailable: %w", err)
		}
	}

	return err
}

// buildAddressCandidate validates required fields and applies defaults for
// the optional ones. Street, city, and postal code are kept exactly as
// submitted since the dedup key compares them case sensitively.
func buildAddressCandidate(input AddressInput, now time.Time) (domain.Address, error) {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"fullName", input.FullName},
		{"phone", input.Phone},
		{"street", input.Street},
		{"city", input.City},
		{"state", input.State},
		{"postalCode", input.PostalCode},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return domain.Address{}, fmt.Errorf("%w: missing fields %s", ErrAddressInvalidInput, strings.Join(missing, ", "))
	}

	label := strings.TrimSpace(input.Label)
	if label == "" {
		label = defaultAddressLabel
	}
	country := strings.TrimSpace(input.Country)
	if country == "" {
		country = defaultAddressCountry
	}

	return domain.Address{
		FullName:   strings.TrimSpace(input.FullName),
		Phone:      strings.TrimSpace(input.Phone),
		AltPhone:   strings.TrimSpace(input.AltPhone),
		Street:     input.Street,
		City:       input.City,
		State:      input.State,
		PostalCode: input.PostalCode,
		Label:      label,
		Country:    country,
		IsDefault:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
