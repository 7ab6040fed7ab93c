package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/skycart/api/internal/domain"
	"github.com/skycart/api/internal/invoice"
)

type stubUserRepository struct {
	findFunc func(ctx context.Context, userID string) (domain.UserProfile, error)
}

func (s *stubUserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if s.findFunc != nil {
		return s.findFunc(ctx, userID)
	}
	return domain.UserProfile{ID: userID, DisplayName: "Asha Rao", Email: "asha@example.com"}, nil
}

type stubInvoiceRenderer struct {
	renderFunc func(doc invoice.Document) ([]byte, error)
	lastDoc    invoice.Document
}

func (s *stubInvoiceRenderer) Render(doc invoice.Document) ([]byte, error) {
	s.lastDoc = doc
	if s.renderFunc != nil {
		return s.renderFunc(doc)
	}
	return []byte("%PDF-stub"), nil
}

func invoiceOrder() domain.Order {
	return domain.Order{
		ID:          "ord_1",
		OrderNumber: "SC-2026-000042",
		UserID:      "user-1",
		Items: []domain.OrderItem{
			{ProductID: "prod-1", Quantity: 2},
			{ProductID: "prod-2", Quantity: 1},
		},
		ShippingAddress: domain.Address{
			FullName:   "Asha Rao",
			Phone:      "+91 99999 00000",
			Street:     "12 Hill Road",
			City:       "Bengaluru",
			State:      "Karnataka",
			PostalCode: "560001",
			Country:    "India",
		},
		PaymentMethod: "card",
		Total:         999.99,
		ShippingPrice: 15,
		TaxPrice:      10,
		Status:        domain.OrderStatusShipped,
		CreatedAt:     time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
	}
}

func invoiceDeps(renderer *stubInvoiceRenderer) InvoiceServiceDeps {
	return InvoiceServiceDeps{
		Orders: &stubOrderRepository{
			findFunc: func(ctx context.Context, orderID string) (domain.Order, error) {
				return invoiceOrder(), nil
			},
		},
		Users: &stubUserRepository{},
		Products: catalogWith(
			domain.Product{ID: "prod-1", Name: "Trail Runner", Price: 150, DiscountPrice: 120},
			domain.Product{ID: "prod-2", Name: "Wool Socks", Price: 12, DiscountPrice: 9.5},
		),
		Renderer: renderer,
	}
}

func TestInvoiceServiceRenderRecomputesTotals(t *testing.T) {
	renderer := &stubInvoiceRenderer{}
	service, err := NewInvoiceService(invoiceDeps(renderer))
	if err != nil {
		t.Fatalf("unexpected error constructing invoice service: %v", err)
	}

	result, err := service.Render(context.Background(), RenderInvoiceCommand{
		OrderID:     "ord_1",
		RequestorID: "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.FileName != "invoice-ord_1.pdf" {
		t.Fatalf("expected file name invoice-ord_1.pdf, got %q", result.FileName)
	}
	if !bytes.HasPrefix(result.Content, []byte("%PDF")) {
		t.Fatalf("expected PDF content, got %q", result.Content)
	}

	doc := renderer.lastDoc
	// 2*120 + 1*9.5 from the current catalog, not the stored order total.
	if doc.Subtotal != 249.5 {
		t.Fatalf("expected subtotal 249.50, got %v", doc.Subtotal)
	}
	if doc.GrandTotal != 274.5 {
		t.Fatalf("expected grand total 274.50, got %v", doc.GrandTotal)
	}
	if doc.PaymentMethod != "card" || doc.Status != "shipped" {
		t.Fatalf("unexpected doc metadata %#v", doc)
	}
}

func TestInvoiceServiceRenderForbiddenForOtherUser(t *testing.T) {
	service, err := NewInvoiceService(invoiceDeps(&stubInvoiceRenderer{}))
	if err != nil {
		t.Fatalf("unexpected error constructing invoice service: %v", err)
	}

	_, err = service.Render(context.Background(), RenderInvoiceCommand{
		OrderID:     "ord_1",
		RequestorID: "someone-else",
	})
	if !errors.Is(err, ErrInvoiceForbidden) {
		t.Fatalf("expected ErrInvoiceForbidden, got %v", err)
	}
}

func TestInvoiceServiceRenderAdminBypassesOwnership(t *testing.T) {
	service, err := NewInvoiceService(invoiceDeps(&stubInvoiceRenderer{}))
	if err != nil {
		t.Fatalf("unexpected error constructing invoice service: %v", err)
	}

	if _, err := service.Render(context.Background(), RenderInvoiceCommand{
		OrderID:          "ord_1",
		RequestorID:      "admin-1",
		RequestorIsAdmin: true,
	}); err != nil {
		t.Fatalf("expected admin access, got %v", err)
	}
}

func TestInvoiceServiceRenderOrderNotFound(t *testing.T) {
	deps := invoiceDeps(&stubInvoiceRenderer{})
	deps.Orders = &stubOrderRepository{
		findFunc: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{}, &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewInvoiceService(deps)
	if err != nil {
		t.Fatalf("unexpected error constructing invoice service: %v", err)
	}

	_, err = service.Render(context.Background(), RenderInvoiceCommand{OrderID: "ord_x", RequestorID: "user-1"})
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
}

func TestInvoiceServiceRenderMissingProductFails(t *testing.T) {
	deps := invoiceDeps(&stubInvoiceRenderer{})
	deps.Products = catalogWith(domain.Product{ID: "prod-1", DiscountPrice: 120})

	service, err := NewInvoiceService(deps)
	if err != nil {
		t.Fatalf("unexpected error constructing invoice service: %v", err)
	}

	_, err = service.Render(context.Background(), RenderInvoiceCommand{OrderID: "ord_1", RequestorID: "user-1"})
	if !errors.Is(err, ErrInvoiceRender) {
		t.Fatalf("expected ErrInvoiceRender, got %v", err)
	}
}

func TestInvoiceServiceRenderFailureSurfaces(t *testing.T) {
	renderer := &stubInvoiceRenderer{
		renderFunc: func(doc invoice.Document) ([]byte, error) {
			return nil, errors.New("font missing")
		},
	}

	service, err := NewInvoiceService(invoiceDeps(renderer))
	if err != nil {
		t.Fatalf("unexpected error constructing invoice service: %v", err)
	}

	_, err = service.Render(context.Background(), RenderInvoiceCommand{OrderID: "ord_1", RequestorID: "user-1"})
	if !errors.Is(err, ErrInvoiceRender) {
		t.Fatalf("expected ErrInvoiceRender, got %v", err)
	}
}
