package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	defaultTxAttempts = 3
	defaultTxTimeout  = 15 * time.Second
)

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
	options  pgx.TxOptions
}

func defaultTxConfig() txConfig {
	return txConfig{
		attempts: defaultTxAttempts,
		timeout:  defaultTxTimeout,
		options: pgx.TxOptions{
			IsoLevel:       pgx.ReadCommitted,
			AccessMode:     pgx.ReadWrite,
			DeferrableMode: pgx.NotDeferrable,
		},
	}
}

// WithTxAttempts bounds retries after serialization failures or deadlocks.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout sets a timeout for the transaction context.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithIsolation overrides the isolation level.
func WithIsolation(level pgx.TxIsoLevel) TxOption {
	return func(cfg *txConfig) {
		cfg.options.IsoLevel = level
	}
}

type txKey struct{}

func txFromContext(ctx context.Context) (pgx.Tx, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok && tx != nil
}

// RunInTx executes fn inside a transaction. Repositories called with the context handed to
// fn use the transaction. A nested call joins the outer transaction.
func (p *Provider) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return WrapError("transaction", errors.New("postgres: transaction function is nil"))
	}
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}
	if p == nil || p.pool == nil {
		return WrapError("transaction", ErrProviderClosed)
	}

	cfg := p.tx
	txnCtx := ctx
	if cfg.timeout > 0 {
		deadline, hasDeadline := ctx.Deadline()
		if !hasDeadline || time.Until(deadline) > cfg.timeout {
			var cancel context.CancelFunc
			txnCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}
	}

	var err error
	for attempt := 1; attempt <= cfg.attempts; attempt++ {
		err = p.runOnce(txnCtx, cfg.options, fn)
		if err == nil || !isRetryable(err) {
			break
		}
	}
	return WrapError("transaction", err)
}

func (p *Provider) runOnce(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) (err error) {
	tx, err := p.pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
