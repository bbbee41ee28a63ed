package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/tindahan/api/internal/domain"
	ppostgres "github.com/tindahan/api/internal/platform/postgres"
	"github.com/tindahan/api/internal/repositories"
)

// StatsRepository runs the dashboard aggregates.
type StatsRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.StatsRepository = (*StatsRepository)(nil)

// NewStatsRepository constructs a Postgres-backed stats repository.
func NewStatsRepository(provider *ppostgres.Provider) (*StatsRepository, error) {
	if err := requireProvider(provider, "stats"); err != nil {
		return nil, err
	}
	return &StatsRepository{provider: provider}, nil
}

func (r *StatsRepository) CountOrdersByShippingStatus(ctx context.Context) (map[domain.ShippingStatus]int, error) {
	rows, err := r.provider.Querier(ctx).Query(ctx,
		`SELECT shipping_status, COUNT(*) FROM orders GROUP BY shipping_status`)
	if err != nil {
		return nil, ppostgres.WrapError("stats.orders_by_status", err)
	}
	defer rows.Close()

	counts := make(map[domain.ShippingStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, ppostgres.WrapError("stats.orders_by_status", err)
		}
		counts[domain.ShippingStatus(status)] = count
	}
	return counts, ppostgres.WrapError("stats.orders_by_status", rows.Err())
}

func (r *StatsRepository) SumPaidRevenue(ctx context.Context) (int64, error) {
	var total int64
	err := r.provider.Querier(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(total_price), 0)::BIGINT FROM orders WHERE payment_status = $1`,
		string(domain.PaymentPaid)).Scan(&total)
	return total, ppostgres.WrapError("stats.revenue", err)
}

func (r *StatsRepository) CountProducts(ctx context.Context) (int, error) {
	var count int
	err := r.provider.Querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&count)
	return count, ppostgres.WrapError("stats.products", err)
}

func (r *StatsRepository) CountLowStock(ctx context.Context, threshold int) (int, error) {
	var count int
	err := r.provider.Querier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE stock_quantity < $1`, threshold).Scan(&count)
	return count, ppostgres.WrapError("stats.low_stock", err)
}

func (r *StatsRepository) RevenueByMonth(ctx context.Context, since time.Time) ([]domain.MonthlyRevenue, error) {
	rows, err := r.provider.Querier(ctx).Query(ctx, `
		SELECT to_char(date_trunc('month', created_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
		       SUM(total_price)::BIGINT,
		       COUNT(*)
		  FROM orders
		 WHERE payment_status = $1 AND created_at >= $2
		 GROUP BY month
		 ORDER BY month`, string(domain.PaymentPaid), since)
	if err != nil {
		return nil, ppostgres.WrapError("stats.revenue_by_month", err)
	}
	months, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.MonthlyRevenue, error) {
		var m domain.MonthlyRevenue
		err := row.Scan(&m.Month, &m.Revenue, &m.Orders)
		return m, err
	})
	return months, ppostgres.WrapError("stats.revenue_by_month", err)
}

func (r *StatsRepository) TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	rows, err := r.provider.Querier(ctx).Query(ctx, `
		SELECT l.product_id, MAX(l.product_name), SUM(l.quantity)::BIGINT, SUM(l.quantity * l.unit_price)::BIGINT
		  FROM order_lines l
		  JOIN orders o ON o.id = l.order_id
		 WHERE o.shipping_status <> $1
		 GROUP BY l.product_id
		 ORDER BY 3 DESC, l.product_id
		 LIMIT $2`, string(domain.ShippingCancelled), limit)
	if err != nil {
		return nil, ppostgres.WrapError("stats.top_products", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TopProduct, error) {
		var p domain.TopProduct
		err := row.Scan(&p.ProductID, &p.Name, &p.QuantitySold, &p.Revenue)
		return p, err
	})
	return products, ppostgres.WrapError("stats.top_products", err)
}
