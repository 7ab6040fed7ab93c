package di

import (
	"context"
	"fmt"
	"time"

	"github.com/skycart/api/internal/platform/config"
	"github.com/skycart/api/internal/repositories"
	"github.com/skycart/api/internal/services"
)

// Repositories bundles the persistence-layer contracts the services depend on.
type Repositories struct {
	Carts     repositories.CartRepository
	Orders    repositories.OrderRepository
	Checkout  repositories.CheckoutRepository
	Addresses repositories.AddressRepository
	Products  repositories.ProductRepository
	Users     repositories.UserRepository
	Counters  repositories.CounterRepository
	Health    repositories.HealthRepository
}

// Services bundles the service-layer contracts that handlers rely upon. Concrete
// implementations are assembled via dependency injection in NewContainer.
type Services struct {
	Addresses services.AddressService
	Cart      services.CartService
	Checkout  services.CheckoutService
	Orders    services.OrderService
	Invoices  services.InvoiceService
	System    services.SystemService
}

// Deps carries cross-cutting collaborators injected from the composition root.
type Deps struct {
	Repos    Repositories
	Renderer services.InvoiceRenderer
	Events   services.OrderEventPublisher
	Logger   func(ctx context.Context, event string, fields map[string]any)
	Clock    func() time.Time
	Build    services.BuildInfo
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config   config.Config
	Services Services
}

// NewContainer constructs the runtime dependency graph. Production wiring
// provides Firestore-backed repositories; tests can supply stubs.
func NewContainer(cfg config.Config, deps Deps) (*Container, error) {
	svc, err := buildServices(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:   cfg,
		Services: svc,
	}, nil
}

func buildServices(cfg config.Config, deps Deps) (Services, error) {
	var svc Services
	repos := deps.Repos
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	addressSvc, err := services.NewAddressService(services.AddressServiceDeps{
		Addresses: repos.Addresses,
		Clock:     clock,
		Logger:    deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build address service: %w", err)
	}
	svc.Addresses = addressSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    repos.Carts,
		Products: repos.Products,
		Clock:    clock,
		Logger:   deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:     repos.Carts,
		Checkout:  repos.Checkout,
		Counters:  repos.Counters,
		Addresses: addressSvc,
		Clock:     clock,
		Events:    deps.Events,
		Logger:    deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:          repos.Orders,
		Products:        repos.Products,
		UserOrdersLimit: cfg.Orders.UserOrdersLimit,
		Clock:           clock,
		Events:          deps.Events,
		Logger:          deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	invoiceSvc, err := services.NewInvoiceService(services.InvoiceServiceDeps{
		Orders:   repos.Orders,
		Users:    repos.Users,
		Products: repos.Products,
		Renderer: deps.Renderer,
		Clock:    clock,
		Logger:   deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build invoice service: %w", err)
	}
	svc.Invoices = invoiceSvc

	if repos.Health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: repos.Health,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
