package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tindahan/api/internal/platform/config"
	ppostgres "github.com/tindahan/api/internal/platform/postgres"
	"github.com/tindahan/api/internal/repositories"
	pgrepo "github.com/tindahan/api/internal/repositories/postgres"
	redisrepo "github.com/tindahan/api/internal/repositories/redis"
)

// storeRegistry backs relational data with Postgres and the short-lived session carts and
// voucher slots with Redis.
type storeRegistry struct {
	provider *ppostgres.Provider
	redis    goredis.UniversalClient

	products     *pgrepo.ProductRepository
	accountCarts *pgrepo.AccountCartRepository
	sessionCarts *redisrepo.SessionCartRepository
	vouchers     *pgrepo.VoucherRepository
	slots        *redisrepo.VoucherSlotRepository
	orders       *pgrepo.OrderRepository
	addresses    *pgrepo.AddressRepository
	stores       *pgrepo.StoreRepository
	reviews      *pgrepo.ReviewRepository
	audit        *pgrepo.AuditLogRepository
	stats        *pgrepo.StatsRepository
	health       repositories.HealthRepository
}

var _ repositories.Registry = (*storeRegistry)(nil)

// NewRegistry builds every repository over the shared Postgres pool and Redis client. The
// registry owns both and releases them on Close. extra checks join the readiness probe.
func NewRegistry(provider *ppostgres.Provider, client goredis.UniversalClient, cfg config.RedisConfig, extra ...repositories.DependencyCheck) (repositories.Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: postgres provider is required")
	}
	if client == nil {
		return nil, errors.New("registry: redis client is required")
	}
	reg := &storeRegistry{provider: provider, redis: client}

	var err error
	if reg.products, err = pgrepo.NewProductRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: products: %w", err)
	}
	if reg.accountCarts, err = pgrepo.NewAccountCartRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: account carts: %w", err)
	}
	if reg.sessionCarts, err = redisrepo.NewSessionCartRepository(client, "cart:session", cfg.SessionCartTTL); err != nil {
		return nil, fmt.Errorf("registry: session carts: %w", err)
	}
	if reg.vouchers, err = pgrepo.NewVoucherRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: vouchers: %w", err)
	}
	if reg.slots, err = redisrepo.NewVoucherSlotRepository(client, "voucher-slot"); err != nil {
		return nil, fmt.Errorf("registry: voucher slots: %w", err)
	}
	if reg.orders, err = pgrepo.NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: orders: %w", err)
	}
	if reg.addresses, err = pgrepo.NewAddressRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: addresses: %w", err)
	}
	if reg.stores, err = pgrepo.NewStoreRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: stores: %w", err)
	}
	if reg.reviews, err = pgrepo.NewReviewRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: reviews: %w", err)
	}
	if reg.audit, err = pgrepo.NewAuditLogRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: audit logs: %w", err)
	}
	if reg.stats, err = pgrepo.NewStatsRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: stats: %w", err)
	}

	checks := []repositories.DependencyCheck{
		{Name: "postgres", Timeout: 1500 * time.Millisecond, Check: provider.Ping},
		{Name: "redis", Timeout: time.Second, Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}},
	}
	reg.health, err = repositories.NewDependencyHealthRepository(append(checks, extra...))
	if err != nil {
		return nil, fmt.Errorf("registry: health: %w", err)
	}
	return reg, nil
}

func (r *storeRegistry) Close(ctx context.Context) error {
	var errs []error
	if err := r.redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis close: %w", err))
	}
	if err := r.provider.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("postgres close: %w", err))
	}
	return errors.Join(errs...)
}

func (r *storeRegistry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, fn)
}

func (r *storeRegistry) Products() repositories.ProductRepository { return r.products }
func (r *storeRegistry) AccountCarts() repositories.CartRepository { return r.accountCarts }
func (r *storeRegistry) SessionCarts() repositories.CartRepository { return r.sessionCarts }
func (r *storeRegistry) Vouchers() repositories.VoucherRepository  { return r.vouchers }
func (r *storeRegistry) Orders() repositories.OrderRepository      { return r.orders }
func (r *storeRegistry) Addresses() repositories.AddressRepository { return r.addresses }
func (r *storeRegistry) Stores() repositories.StoreRepository      { return r.stores }
func (r *storeRegistry) Reviews() repositories.ReviewRepository    { return r.reviews }
func (r *storeRegistry) AuditLogs() repositories.AuditLogRepository {
	return r.audit
}
func (r *storeRegistry) Stats() repositories.StatsRepository   { return r.stats }
func (r *storeRegistry) Health() repositories.HealthRepository { return r.health }

func (r *storeRegistry) VoucherReservations() repositories.VoucherReservationRepository {
	return r.slots
}
