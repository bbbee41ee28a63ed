package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/tindahan/api/internal/domain"
	ppostgres "github.com/tindahan/api/internal/platform/postgres"
	"github.com/tindahan/api/internal/repositories"
)

const voucherColumns = `code, description, discount_type, discount_value, min_purchase_amount, max_discount_amount,
	valid_from, valid_until, usage_limit, usage_count, is_active, created_at, updated_at`

// VoucherRepository persists vouchers and redemption rows in Postgres.
type VoucherRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.VoucherRepository = (*VoucherRepository)(nil)

// NewVoucherRepository constructs a Postgres-backed voucher repository.
func NewVoucherRepository(provider *ppostgres.Provider) (*VoucherRepository, error) {
	if err := requireProvider(provider, "voucher"); err != nil {
		return nil, err
	}
	return &VoucherRepository{provider: provider}, nil
}

func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (domain.Voucher, error) {
	row := r.provider.Querier(ctx).QueryRow(ctx, "SELECT "+voucherColumns+" FROM vouchers WHERE code = $1", code)
	voucher, err := scanVoucher(row)
	return voucher, ppostgres.WrapError("vouchers.get", err)
}

func (r *VoucherRepository) LockByCode(ctx context.Context, code string) (domain.Voucher, error) {
	row := r.provider.Querier(ctx).QueryRow(ctx, "SELECT "+voucherColumns+" FROM vouchers WHERE code = $1 FOR UPDATE", code)
	voucher, err := scanVoucher(row)
	return voucher, ppostgres.WrapError("vouchers.lock", err)
}

func (r *VoucherRepository) List(ctx context.Context, filter repositories.VoucherFilter) (domain.Page[domain.Voucher], error) {
	window, err := windowFor("vouchers.list", filter.Pagination)
	if err != nil {
		return domain.Page[domain.Voucher]{}, err
	}
	var where whereBuilder
	if filter.ActiveOnly {
		where.raw("is_active")
	}
	limit, args := window.clause(where.args)
	rows, err := r.provider.Querier(ctx).Query(ctx,
		"SELECT "+voucherColumns+" FROM vouchers"+where.sql()+" ORDER BY created_at DESC, code"+limit, args...)
	if err != nil {
		return domain.Page[domain.Voucher]{}, ppostgres.WrapError("vouchers.list", err)
	}
	vouchers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Voucher, error) {
		return scanVoucher(row)
	})
	if err != nil {
		return domain.Page[domain.Voucher]{}, ppostgres.WrapError("vouchers.list", err)
	}
	return pageOf(window, vouchers), nil
}

func (r *VoucherRepository) Insert(ctx context.Context, v domain.Voucher) error {
	_, err := r.provider.Querier(ctx).Exec(ctx, `
		INSERT INTO vouchers (`+voucherColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		v.Code, v.Description, string(v.DiscountType), v.DiscountValue, v.MinPurchaseAmount, v.MaxDiscountAmount,
		v.ValidFrom, v.ValidUntil, v.UsageLimit, v.UsageCount, v.IsActive, v.CreatedAt, v.UpdatedAt)
	return ppostgres.WrapError("vouchers.insert", err)
}

func (r *VoucherRepository) Update(ctx context.Context, v domain.Voucher) error {
	tag, err := r.provider.Querier(ctx).Exec(ctx, `
		UPDATE vouchers
		   SET description = $2, discount_type = $3, discount_value = $4, min_purchase_amount = $5,
		       max_discount_amount = $6, valid_from = $7, valid_until = $8, usage_limit = $9,
		       is_active = $10, updated_at = $11
		 WHERE code = $1`,
		v.Code, v.Description, string(v.DiscountType), v.DiscountValue, v.MinPurchaseAmount, v.MaxDiscountAmount,
		v.ValidFrom, v.ValidUntil, v.UsageLimit, v.IsActive, v.UpdatedAt)
	if err != nil {
		return ppostgres.WrapError("vouchers.update", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("vouchers.update", "voucher")
	}
	return nil
}

func (r *VoucherRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.provider.Querier(ctx).Exec(ctx, `DELETE FROM vouchers WHERE code = $1`, code)
	if err != nil {
		return ppostgres.WrapError("vouchers.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("vouchers.delete", "voucher")
	}
	return nil
}

func (r *VoucherRepository) IncrementUsage(ctx context.Context, code string, at time.Time) error {
	q := r.provider.Querier(ctx)
	tag, err := q.Exec(ctx, `
		UPDATE vouchers
		   SET usage_count = usage_count + 1, updated_at = $2
		 WHERE code = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`, code, at)
	if err != nil {
		return ppostgres.WrapError("vouchers.increment_usage", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vouchers WHERE code = $1)`, code).Scan(&exists); err != nil {
		return ppostgres.WrapError("vouchers.increment_usage", err)
	}
	if !exists {
		return ppostgres.NotFound("vouchers.increment_usage", "voucher")
	}
	return ppostgres.Conflict("vouchers.increment_usage", "usage limit reached")
}

func (r *VoucherRepository) HasUsage(ctx context.Context, code string, accountID string) (bool, error) {
	var used bool
	err := r.provider.Querier(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM voucher_usages WHERE voucher_code = $1 AND account_id = $2)`,
		code, accountID).Scan(&used)
	return used, ppostgres.WrapError("vouchers.has_usage", err)
}

func (r *VoucherRepository) InsertUsage(ctx context.Context, u domain.VoucherUsage) (bool, error) {
	tag, err := r.provider.Querier(ctx).Exec(ctx, `
		INSERT INTO voucher_usages (id, voucher_code, account_id, order_id, discount_amount, used_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT voucher_usages_once_per_account DO NOTHING`,
		u.ID, u.VoucherCode, u.AccountID, u.OrderID, u.DiscountAmount, u.UsedAt)
	if err != nil {
		return false, ppostgres.WrapError("vouchers.insert_usage", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *VoucherRepository) ReleaseUsage(ctx context.Context, code string, orderID string, at time.Time) (bool, error) {
	tag, err := r.provider.Querier(ctx).Exec(ctx, `
		WITH released AS (
			DELETE FROM voucher_usages WHERE voucher_code = $1 AND order_id = $2 RETURNING id
		)
		UPDATE vouchers
		   SET usage_count = GREATEST(usage_count - (SELECT COUNT(*) FROM released), 0), updated_at = $3
		 WHERE code = $1 AND EXISTS (SELECT 1 FROM released)`, code, orderID, at)
	if err != nil {
		return false, ppostgres.WrapError("vouchers.release_usage", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *VoucherRepository) ListUsage(ctx context.Context, code string, pager domain.Pagination) (domain.Page[domain.VoucherUsage], error) {
	window, err := windowFor("vouchers.list_usage", pager)
	if err != nil {
		return domain.Page[domain.VoucherUsage]{}, err
	}
	limit, args := window.clause([]any{code})
	rows, err := r.provider.Querier(ctx).Query(ctx, `
		SELECT id, voucher_code, account_id, order_id, discount_amount, used_at
		  FROM voucher_usages
		 WHERE voucher_code = $1
		 ORDER BY used_at DESC, id`+limit, args...)
	if err != nil {
		return domain.Page[domain.VoucherUsage]{}, ppostgres.WrapError("vouchers.list_usage", err)
	}
	usages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.VoucherUsage, error) {
		var u domain.VoucherUsage
		err := row.Scan(&u.ID, &u.VoucherCode, &u.AccountID, &u.OrderID, &u.DiscountAmount, &u.UsedAt)
		u.UsedAt = u.UsedAt.UTC()
		return u, err
	})
	if err != nil {
		return domain.Page[domain.VoucherUsage]{}, ppostgres.WrapError("vouchers.list_usage", err)
	}
	return pageOf(window, usages), nil
}

func (r *VoucherRepository) CountUsage(ctx context.Context, code string) (int, error) {
	var count int
	err := r.provider.Querier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM voucher_usages WHERE voucher_code = $1`, code).Scan(&count)
	return count, ppostgres.WrapError("vouchers.count_usage", err)
}

func scanVoucher(row pgx.Row) (domain.Voucher, error) {
	var (
		v     domain.Voucher
		vtype string
	)
	err := row.Scan(&v.Code, &v.Description, &vtype, &v.DiscountValue, &v.MinPurchaseAmount, &v.MaxDiscountAmount,
		&v.ValidFrom, &v.ValidUntil, &v.UsageLimit, &v.UsageCount, &v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return domain.Voucher{}, err
	}
	v.DiscountType = domain.VoucherType(vtype)
	v.ValidFrom = v.ValidFrom.UTC()
	v.ValidUntil = v.ValidUntil.UTC()
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return v, nil
}
