package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tindahan/api/internal/platform/config"
)

const defaultConnectTimeout = 10 * time.Second

// ErrProviderClosed is returned after Close.
var ErrProviderClosed = errors.New("postgres: provider is closed")

// Querier is the subset of pgx shared by the pool and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Provider owns the shared connection pool.
type Provider struct {
	pool           *pgxpool.Pool
	connectTimeout time.Duration
	tx             txConfig
}

// ProviderOption customises the Provider behaviour.
type ProviderOption func(*Provider)

// WithConnectTimeout overrides the timeout used to establish the first connection.
func WithConnectTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.connectTimeout = timeout
		}
	}
}

// WithTxOptions sets the defaults applied by RunInTx.
func WithTxOptions(opts ...TxOption) ProviderOption {
	return func(p *Provider) {
		for _, opt := range opts {
			if opt != nil {
				opt(&p.tx)
			}
		}
	}
}

// NewProvider connects a pool using cfg and verifies it with a ping.
func NewProvider(ctx context.Context, cfg config.DatabaseConfig, opts ...ProviderOption) (*Provider, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("postgres: database url is required")
	}
	provider := &Provider{
		connectTimeout: defaultConnectTimeout,
		tx:             defaultTxConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	connectCtx, cancel := context.WithTimeout(ctx, provider.connectTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", WrapError("connect", err))
	}
	provider.pool = pool
	return provider, nil
}

// NewProviderFromPool wraps an existing pool. Used by integration tests.
func NewProviderFromPool(pool *pgxpool.Pool, opts ...ProviderOption) *Provider {
	provider := &Provider{pool: pool, connectTimeout: defaultConnectTimeout, tx: defaultTxConfig()}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	return provider
}

// Pool exposes the underlying pool.
func (p *Provider) Pool() *pgxpool.Pool {
	if p == nil {
		return nil
	}
	return p.pool
}

// Querier returns the transaction bound to ctx, or the pool when there is none.
func (p *Provider) Querier(ctx context.Context) Querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return p.pool
}

// Ping checks connectivity for readiness probes.
func (p *Provider) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return ErrProviderClosed
	}
	return p.pool.Ping(ctx)
}

// Close releases the pool. The Provider cannot be reused afterwards.
func (p *Provider) Close(context.Context) error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	p.pool = nil
	return nil
}
