package postgres

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	domain "github.com/tindahan/api/internal/domain"
	ppostgres "github.com/tindahan/api/internal/platform/postgres"
	"github.com/tindahan/api/internal/repositories"
)

const productColumns = `id, name, description, category, subcategory, price, sale_price, on_sale, stock_quantity, image_url, created_at, updated_at`

// ProductRepository persists catalog products in Postgres.
type ProductRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Postgres-backed product repository.
func NewProductRepository(provider *ppostgres.Provider) (*ProductRepository, error) {
	if err := requireProvider(provider, "product"); err != nil {
		return nil, err
	}
	return &ProductRepository{provider: provider}, nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductFilter) (domain.Page[domain.Product], error) {
	window, err := windowFor("products.list", filter.Pagination)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}
	var where whereBuilder
	if v := strings.TrimSpace(filter.Category); v != "" {
		where.add("category = $%d", v)
	}
	if v := strings.TrimSpace(filter.Subcategory); v != "" {
		where.add("subcategory = $%d", v)
	}
	if v := strings.TrimSpace(filter.Query); v != "" {
		where.add("name ILIKE $%d", containsPattern(v))
	}
	if filter.OnSaleOnly {
		where.raw("on_sale AND sale_price IS NOT NULL")
	}
	limit, args := window.clause(where.args)
	query := "SELECT " + productColumns + " FROM products" + where.sql() + " ORDER BY name, id" + limit

	products, err := r.query(ctx, "products.list", query, args...)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}
	return pageOf(window, products), nil
}

func (r *ProductRepository) ListCategories(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, "products.categories",
		`SELECT DISTINCT category FROM products WHERE category <> '' ORDER BY category`)
}

func (r *ProductRepository) ListSubcategories(ctx context.Context, category string) ([]string, error) {
	return r.distinct(ctx, "products.subcategories",
		`SELECT DISTINCT subcategory FROM products WHERE category = $1 AND subcategory <> '' ORDER BY subcategory`,
		strings.TrimSpace(category))
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	row := r.provider.Querier(ctx).QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", productID)
	product, err := scanProduct(row)
	if err != nil {
		return domain.Product{}, ppostgres.WrapError("products.get", err)
	}
	return product, nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if len(productIDs) == 0 {
		return map[string]domain.Product{}, nil
	}
	products, err := r.query(ctx, "products.get_many",
		"SELECT "+productColumns+" FROM products WHERE id = ANY($1)", productIDs)
	if err != nil {
		return nil, err
	}
	return indexProducts(products), nil
}

func (r *ProductRepository) LockByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if len(productIDs) == 0 {
		return map[string]domain.Product{}, nil
	}
	ids := append([]string(nil), productIDs...)
	sort.Strings(ids)
	products, err := r.query(ctx, "products.lock",
		"SELECT "+productColumns+" FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE", ids)
	if err != nil {
		return nil, err
	}
	return indexProducts(products), nil
}

func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int) (int, error) {
	q := r.provider.Querier(ctx)
	var stock int
	err := q.QueryRow(ctx, `
		UPDATE products
		   SET stock_quantity = stock_quantity + $2, updated_at = now()
		 WHERE id = $1 AND stock_quantity + $2 >= 0
		RETURNING stock_quantity`, productID, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, ppostgres.WrapError("products.adjust_stock", err)
	}

	var available int
	if err := q.QueryRow(ctx, `SELECT stock_quantity FROM products WHERE id = $1`, productID).Scan(&available); err != nil {
		return 0, ppostgres.WrapError("products.adjust_stock", err)
	}
	return 0, &repositories.StockError{ProductID: productID, Requested: -delta, Available: available}
}

func (r *ProductRepository) Insert(ctx context.Context, p domain.Product) error {
	_, err := r.provider.Querier(ctx).Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.Name, p.Description, p.Category, p.Subcategory, p.Price, p.SalePrice, p.OnSale,
		p.StockQuantity, p.ImageURL, p.CreatedAt, p.UpdatedAt)
	return ppostgres.WrapError("products.insert", err)
}

func (r *ProductRepository) Update(ctx context.Context, p domain.Product) error {
	tag, err := r.provider.Querier(ctx).Exec(ctx, `
		UPDATE products
		   SET name = $2, description = $3, category = $4, subcategory = $5, price = $6,
		       sale_price = $7, on_sale = $8, stock_quantity = $9, image_url = $10, updated_at = $11
		 WHERE id = $1`,
		p.ID, p.Name, p.Description, p.Category, p.Subcategory, p.Price, p.SalePrice, p.OnSale,
		p.StockQuantity, p.ImageURL, p.UpdatedAt)
	if err != nil {
		return ppostgres.WrapError("products.update", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("products.update", "product")
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	tag, err := r.provider.Querier(ctx).Exec(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return ppostgres.WrapError("products.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("products.delete", "product")
	}
	return nil
}

func (r *ProductRepository) ListLowStock(ctx context.Context, threshold int, limit int) ([]domain.Product, error) {
	return r.query(ctx, "products.low_stock",
		"SELECT "+productColumns+" FROM products WHERE stock_quantity < $1 ORDER BY stock_quantity, name LIMIT $2",
		threshold, limit)
}

func (r *ProductRepository) query(ctx context.Context, op string, sql string, args ...any) ([]domain.Product, error) {
	rows, err := r.provider.Querier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, ppostgres.WrapError(op, err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, ppostgres.WrapError(op, err)
		}
		products = append(products, product)
	}
	return products, ppostgres.WrapError(op, rows.Err())
}

func (r *ProductRepository) distinct(ctx context.Context, op string, sql string, args ...any) ([]string, error) {
	rows, err := r.provider.Querier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, ppostgres.WrapError(op, err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return values, ppostgres.WrapError(op, err)
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Subcategory, &p.Price, &p.SalePrice,
		&p.OnSale, &p.StockQuantity, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func indexProducts(products []domain.Product) map[string]domain.Product {
	out := make(map[string]domain.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out
}
