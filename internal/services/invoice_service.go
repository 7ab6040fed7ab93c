package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skycart/api/internal/invoice"
	"github.com/skycart/api/internal/repositories"
)

var (
	// ErrInvoiceInvalidInput signals the caller provided invalid data.
	ErrInvoiceInvalidInput = errors.New("invoice: invalid input")
	// ErrInvoiceNotFound indicates the order for the invoice does not exist.
	ErrInvoiceNotFound = errors.New("invoice: order not found")
	// ErrInvoiceForbidden indicates the requestor does not own the order.
	ErrInvoiceForbidden = errors.New("invoice: forbidden")
	// ErrInvoiceRender indicates the document could not be produced.
	ErrInvoiceRender = errors.New("invoice: render failed")
)

// InvoiceRenderer turns a resolved invoice document into PDF bytes.
type InvoiceRenderer interface {
	Render(doc invoice.Document) ([]byte, error)
}

// InvoiceServiceDeps bundles collaborators required to construct the invoice service.
type InvoiceServiceDeps struct {
	Orders   repositories.OrderRepository
	Users    repositories.UserRepository
	Products repositories.ProductRepository
	Renderer InvoiceRenderer
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type invoiceService struct {
	orders   repositories.OrderRepository
	users    repositories.UserRepository
	products repositories.ProductRepository
	renderer InvoiceRenderer
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewInvoiceService wires dependencies into a concrete InvoiceService implementation.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Orders == nil {
		return nil, errors.New("invoice service: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("invoice service: user repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("invoice service: product repository is required")
	}
	if deps.Renderer == nil {
		return nil, errors.New("invoice service: renderer is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &invoiceService{
		orders:   deps.Orders,
		users:    deps.Users,
		products: deps.Products,
		renderer: deps.Renderer,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Render produces the complete invoice PDF for an order. The grand total is
// recomputed from current catalog discount prices plus the order's shipping
// and tax, so it can differ from the total recorded at checkout; that stored
// figure is left untouched. The document is fully buffered before returning.
func (s *invoiceService) Render(ctx context.Context, cmd RenderInvoiceCommand) (Invoice, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Invoice{}, fmt.Errorf("%w: order id is required", ErrInvoiceInvalidInput)
	}
	if strings.TrimSpace(cmd.RequestorID) == "" {
		return Invoice{}, fmt.Errorf("%w: requestor id is required", ErrInvoiceInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Invoice{}, s.mapRepositoryError(err)
	}

	if order.UserID != cmd.RequestorID && !cmd.RequestorIsAdmin {
		return Invoice{}, fmt.Errorf("%w: order %s", ErrInvoiceForbidden, orderID)
	}

	doc, err := s.buildDocument(ctx, order)
	if err != nil {
		return Invoice{}, err
	}

	content, err := s.renderer.Render(doc)
	if err != nil {
		return Invoice{}, fmt.Errorf("%w: %v", ErrInvoiceRender, err)
	}

	s.logger(ctx, "invoice.rendered", map[string]any{
		"order": orderID,
		"bytes": len(content),
	})

	return Invoice{
		FileName: fmt.Sprintf("invoice-%s.pdf", orderID),
		Content:  content,
	}, nil
}

func (s *invoiceService) buildDocument(ctx context.Context, order Order) (invoice.Document, error) {
	buyer, err := s.users.FindByID(ctx, order.UserID)
	if err != nil {
		return invoice.Document{}, fmt.Errorf("%w: resolving buyer: %v", ErrInvoiceRender, err)
	}

	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return invoice.Document{}, fmt.Errorf("%w: resolving products: %v", ErrInvoiceRender, err)
	}

	lines := make([]invoice.Line, 0, len(order.Items))
	subtotal := 0.0
	for _, item := range order.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return invoice.Document{}, fmt.Errorf("%w: product %s no longer exists", ErrInvoiceRender, item.ProductID)
		}
		lineTotal := product.DiscountPrice * float64(item.Quantity)
		lines = append(lines, invoice.Line{
			Name:      product.Name,
			UnitPrice: product.DiscountPrice,
			Quantity:  item.Quantity,
			Total:     lineTotal,
		})
		subtotal += lineTotal
	}

	issuedAt := order.CreatedAt
	if issuedAt.IsZero() {
		issuedAt = s.clock()
	}

	addr := order.ShippingAddress
	return invoice.Document{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		IssuedAt:      issuedAt,
		Status:        string(order.Status),
		PaymentMethod: order.PaymentMethod,
		BilledTo: invoice.Party{
			Name:  addr.FullName,
			Email: buyer.Email,
			Phone: addr.Phone,
			Lines: []string{
				addr.Street,
				fmt.Sprintf("%s, %s %s", addr.City, addr.State, addr.PostalCode),
				addr.Country,
			},
		},
		Lines:      lines,
		Subtotal:   subtotal,
		Shipping:   order.ShippingPrice,
		Tax:        order.TaxPrice,
		GrandTotal: subtotal + order.ShippingPrice + order.TaxPrice,
	}, nil
}

func (s *invoiceService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrInvoiceNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("invoice: repository unavailable: %w", err)
		}
	}

	return err
}
