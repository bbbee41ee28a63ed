package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tindahan/api/internal/platform/config"
	"github.com/tindahan/api/internal/platform/observability"
	"github.com/tindahan/api/internal/repositories"
	"github.com/tindahan/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog   services.CatalogService
	Inventory services.InventoryService
	Cart      services.CartService
	Vouchers  services.VoucherService
	Orders    services.OrderService
	Checkout  services.CheckoutService
	Reviews   services.ReviewService
	Addresses services.AddressService
	Stores    services.StoreService
	Stats     services.StatsService
	Audit     services.AuditLogService
	System    services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises container assembly.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	events  services.OrderEventPublisher
	gateway services.PaymentGateway
	clock   func() time.Time
	version string
}

// WithLogger sets the base logger from which per-service event loggers are derived.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEventPublisher attaches the sink for order domain events.
func WithEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *options) {
		o.events = publisher
	}
}

// WithPaymentGateway enables redirect payment methods at checkout.
func WithPaymentGateway(gateway services.PaymentGateway) Option {
	return func(o *options) {
		o.gateway = gateway
	}
}

// WithClock overrides time.Now for every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithVersion records the build version reported by the health endpoints.
func WithVersion(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

// NewContainer constructs the runtime dependencies over reg. Tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	o := options{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	svc, err := buildServices(ctx, reg, cfg, o)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, o options) (Services, error) {
	var svc Services
	logger := func(name string) func(context.Context, string, map[string]any) {
		return observability.EventLogger(o.logger, name)
	}

	auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: reg.AuditLogs(),
		Clock:      o.clock,
		Logger:     logger("audit"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build audit log service: %w", err)
	}
	svc.Audit = auditSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
		Audit:    svc.Audit,
		Clock:    o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Products: reg.Products(),
		Clock:    o.clock,
		Logger:   logger("inventory"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		AccountCarts: reg.AccountCarts(),
		SessionCarts: reg.SessionCarts(),
		Products:     reg.Products(),
		Clock:        o.clock,
		Logger:       logger("cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	voucherSvc, err := services.NewVoucherService(services.VoucherServiceDeps{
		Vouchers:       reg.Vouchers(),
		Reservations:   reg.VoucherReservations(),
		Carts:          svc.Cart,
		Audit:          svc.Audit,
		ReservationTTL: cfg.Redis.VoucherSlotTTL,
		Clock:          o.clock,
		Logger:         logger("vouchers"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build voucher service: %w", err)
	}
	svc.Vouchers = voucherSvc

	shipping := services.NewShippingCalculator(shippingRates(cfg.Shipping), logger("shipping"))

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       reg.Orders(),
		Inventory:    svc.Inventory,
		Vouchers:     reg.Vouchers(),
		Reservations: reg.VoucherReservations(),
		Addresses:    reg.Addresses(),
		Stores:       reg.Stores(),
		AccountCarts: reg.AccountCarts(),
		SessionCarts: reg.SessionCarts(),
		Shipping:     shipping,
		UnitOfWork:   reg,
		Clock:        o.clock,
		Events:       o.events,
		Logger:       logger("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:     svc.Cart,
		Vouchers:  svc.Vouchers,
		Orders:    svc.Orders,
		Addresses: reg.Addresses(),
		Shipping:  shipping,
		Gateway:   o.gateway,
		Currency:  cfg.Gateway.Currency,
		Clock:     o.clock,
		Logger:    logger("checkout"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews: reg.Reviews(),
		Orders:  reg.Orders(),
		Clock:   o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviewSvc

	addressSvc, err := services.NewAddressService(services.AddressServiceDeps{
		Addresses:  reg.Addresses(),
		Orders:     reg.Orders(),
		UnitOfWork: reg,
		Clock:      o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build address service: %w", err)
	}
	svc.Addresses = addressSvc

	storeSvc, err := services.NewStoreService(services.StoreServiceDeps{Stores: reg.Stores()})
	if err != nil {
		return Services{}, fmt.Errorf("build store service: %w", err)
	}
	svc.Stores = storeSvc

	statsSvc, err := services.NewStatsService(services.StatsServiceDeps{
		Stats:     reg.Stats(),
		Inventory: svc.Inventory,
		Clock:     o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stats service: %w", err)
	}
	svc.Stats = statsSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            o.clock,
			Build: services.BuildInfo{
				Version:     o.version,
				Environment: cfg.Environment,
				StartedAt:   o.clock().UTC(),
			},
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// shippingRates falls back to the default tariff field by field.
func shippingRates(cfg config.ShippingConfig) services.ShippingRates {
	rates := services.DefaultShippingRates()
	if cfg.BaseRate > 0 {
		rates.BaseRate = cfg.BaseRate
	}
	if cfg.PerKmRate > 0 {
		rates.PerKmRate = cfg.PerKmRate
	}
	if cfg.PrioritySurcharge > 0 {
		rates.PrioritySurcharge = cfg.PrioritySurcharge
	}
	if cfg.WarehouseLat != 0 || cfg.WarehouseLng != 0 {
		rates.WarehouseLat = cfg.WarehouseLat
		rates.WarehouseLng = cfg.WarehouseLng
	}
	return rates
}
