package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/tindahan/api/internal/domain"
	ppostgres "github.com/tindahan/api/internal/platform/postgres"
	"github.com/tindahan/api/internal/repositories"
)

var errNotAccountOwner = errors.New("account cart repository only stores account carts")

// AccountCartRepository persists carts of authenticated accounts so they survive sessions.
type AccountCartRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.CartRepository = (*AccountCartRepository)(nil)

// NewAccountCartRepository constructs a Postgres-backed cart repository.
func NewAccountCartRepository(provider *ppostgres.Provider) (*AccountCartRepository, error) {
	if err := requireProvider(provider, "cart"); err != nil {
		return nil, err
	}
	return &AccountCartRepository{provider: provider}, nil
}

func (r *AccountCartRepository) Load(ctx context.Context, owner domain.CartOwner) (domain.Cart, error) {
	if !owner.IsAccount() {
		return domain.Cart{}, errNotAccountOwner
	}
	rows, err := r.provider.Querier(ctx).Query(ctx, `
		SELECT product_id, quantity, added_at
		  FROM cart_lines
		 WHERE account_id = $1
		 ORDER BY added_at, product_id`, owner.ID())
	if err != nil {
		return domain.Cart{}, ppostgres.WrapError("carts.load", err)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CartLine, error) {
		var line domain.CartLine
		err := row.Scan(&line.ProductID, &line.Quantity, &line.AddedAt)
		line.AddedAt = line.AddedAt.UTC()
		return line, err
	})
	if err != nil {
		return domain.Cart{}, ppostgres.WrapError("carts.load", err)
	}
	return domain.Cart{Owner: owner, Lines: lines}, nil
}

func (r *AccountCartRepository) SetQuantity(ctx context.Context, owner domain.CartOwner, productID string, quantity int, at time.Time) error {
	if !owner.IsAccount() {
		return errNotAccountOwner
	}
	if quantity <= 0 {
		return r.RemoveLine(ctx, owner, productID)
	}
	_, err := r.provider.Querier(ctx).Exec(ctx, `
		INSERT INTO cart_lines (account_id, product_id, quantity, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		owner.ID(), productID, quantity, at)
	return ppostgres.WrapError("carts.set_quantity", err)
}

func (r *AccountCartRepository) RemoveLine(ctx context.Context, owner domain.CartOwner, productID string) error {
	if !owner.IsAccount() {
		return errNotAccountOwner
	}
	_, err := r.provider.Querier(ctx).Exec(ctx,
		`DELETE FROM cart_lines WHERE account_id = $1 AND product_id = $2`, owner.ID(), productID)
	return ppostgres.WrapError("carts.remove_line", err)
}

func (r *AccountCartRepository) Clear(ctx context.Context, owner domain.CartOwner) error {
	if !owner.IsAccount() {
		return errNotAccountOwner
	}
	_, err := r.provider.Querier(ctx).Exec(ctx, `DELETE FROM cart_lines WHERE account_id = $1`, owner.ID())
	return ppostgres.WrapError("carts.clear", err)
}
