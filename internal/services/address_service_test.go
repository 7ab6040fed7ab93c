package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/skycart/api/internal/domain"
)

func validAddressInput() AddressInput {
	return AddressInput{
		FullName:   "Asha Rao",
		Phone:      "+91 99999 00000",
		Street:     "12 Hill Road",
		City:       "Bengaluru",
		State:      "Karnataka",
		PostalCode: "560001",
	}
}

func TestAddressServiceReconcileCreatesDefault(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var candidate domain.Address
	repo := &stubAddressRepository{
		reconcileFunc: func(ctx context.Context, userID string, addr domain.Address) (domain.Address, bool, error) {
			if userID != "user-1" {
				t.Fatalf("unexpected user id %q", userID)
			}
			candidate = addr
			addr.ID = "addr-new"
			return addr, true, nil
		},
	}

	service, err := NewAddressService(AddressServiceDeps{
		Addresses: repo,
		Clock:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing address service: %v", err)
	}

	stored, created, err := service.Reconcile(context.Background(), "user-1", validAddressInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}
	if stored.ID != "addr-new" {
		t.Fatalf("expected stored id addr-new, got %q", stored.ID)
	}
	if !candidate.IsDefault {
		t.Fatalf("expected candidate marked default")
	}
	if candidate.Label != "Shipping" || candidate.Country != "India" {
		t.Fatalf("expected defaults applied, got label=%q country=%q", candidate.Label, candidate.Country)
	}
	if !candidate.CreatedAt.Equal(now) {
		t.Fatalf("expected createdAt %v, got %v", now, candidate.CreatedAt)
	}
}

func TestAddressServiceReconcileKeepsSubmittedCase(t *testing.T) {
	repo := &stubAddressRepository{
		reconcileFunc: func(ctx context.Context, userID string, addr domain.Address) (domain.Address, bool, error) {
			if addr.Street != "12 HILL Road" {
				t.Fatalf("expected street case preserved, got %q", addr.Street)
			}
			return addr, false, nil
		},
	}

	service, err := NewAddressService(AddressServiceDeps{Addresses: repo})
	if err != nil {
		t.Fatalf("unexpected error constructing address service: %v", err)
	}

	input := validAddressInput()
	input.Street = "12 HILL Road"
	_, created, err := service.Reconcile(context.Background(), "user-1", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatalf("expected created=false when the repository matched an entry")
	}
}

func TestAddressServiceReconcileMissingFields(t *testing.T) {
	service, err := NewAddressService(AddressServiceDeps{Addresses: &stubAddressRepository{}})
	if err != nil {
		t.Fatalf("unexpected error constructing address service: %v", err)
	}

	input := validAddressInput()
	input.Phone = "  "
	input.PostalCode = ""
	_, _, err = service.Reconcile(context.Background(), "user-1", input)
	if !errors.Is(err, ErrAddressInvalidInput) {
		t.Fatalf("expected ErrAddressInvalidInput, got %v", err)
	}
	if !strings.Contains(err.Error(), "phone") || !strings.Contains(err.Error(), "postalCode") {
		t.Fatalf("expected missing field names in error, got %v", err)
	}
}

func TestAddressServiceListEmpty(t *testing.T) {
	repo := &stubAddressRepository{
		listFunc: func(ctx context.Context, userID string) ([]domain.Address, error) {
			return nil, nil
		},
	}

	service, err := NewAddressService(AddressServiceDeps{Addresses: repo})
	if err != nil {
		t.Fatalf("unexpected error constructing address service: %v", err)
	}

	addresses, err := service.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addresses == nil {
		t.Fatalf("expected empty slice, got nil")
	}
}

func TestAddressServiceDeleteMapsNotFound(t *testing.T) {
	repo := &stubAddressRepository{
		deleteFunc: func(ctx context.Context, userID string, addressID string) error {
			return &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewAddressService(AddressServiceDeps{Addresses: repo})
	if err != nil {
		t.Fatalf("unexpected error constructing address service: %v", err)
	}

	err = service.Delete(context.Background(), "user-1", "addr-missing")
	if !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("expected ErrAddressNotFound, got %v", err)
	}
}

type stubAddressRepository struct {
	listFunc      func(ctx context.Context, userID string) ([]domain.Address, error)
	reconcileFunc func(ctx context.Context, userID string, addr domain.Address) (domain.Address, bool, error)
	getFunc       func(ctx context.Context, userID string, addressID string) (domain.Address, error)
	deleteFunc    func(ctx context.Context, userID string, addressID string) error
}

func (s *stubAddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, userID)
	}
	return nil, nil
}

func (s *stubAddressRepository) Reconcile(ctx context.Context, userID string, addr domain.Address) (domain.Address, bool, error) {
	if s.reconcileFunc != nil {
		return s.reconcileFunc(ctx, userID, addr)
	}
	return addr, false, nil
}

func (s *stubAddressRepository) Get(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID, addressID)
	}
	return domain.Address{}, errors.New("not implemented")
}

func (s *stubAddressRepository) Delete(ctx context.Context, userID string, addressID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, userID, addressID)
	}
	return nil
}
