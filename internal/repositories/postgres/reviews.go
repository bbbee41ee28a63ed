package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	domain "github.com/tindahan/api/internal/domain"
	ppostgres "github.com/tindahan/api/internal/platform/postgres"
	"github.com/tindahan/api/internal/repositories"
)

const reviewColumns = `id, account_id, author_name, product_id, order_id, order_item_id, rating, comment,
	is_anonymous, is_edited, created_at, updated_at`

// ReviewRepository persists product reviews in Postgres.
type ReviewRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)

// NewReviewRepository constructs a Postgres-backed review repository.
func NewReviewRepository(provider *ppostgres.Provider) (*ReviewRepository, error) {
	if err := requireProvider(provider, "review"); err != nil {
		return nil, err
	}
	return &ReviewRepository{provider: provider}, nil
}

func (r *ReviewRepository) Insert(ctx context.Context, rv domain.Review) error {
	_, err := r.provider.Querier(ctx).Exec(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rv.ID, rv.AccountID, rv.AuthorName, rv.ProductID, rv.OrderID, rv.OrderItemID, rv.Rating, rv.Comment,
		rv.IsAnonymous, rv.IsEdited, rv.CreatedAt, rv.UpdatedAt)
	return ppostgres.WrapError("reviews.insert", err)
}

func (r *ReviewRepository) Update(ctx context.Context, rv domain.Review) error {
	tag, err := r.provider.Querier(ctx).Exec(ctx, `
		UPDATE reviews
		   SET rating = $2, comment = $3, is_anonymous = $4, is_edited = $5, updated_at = $6
		 WHERE id = $1`,
		rv.ID, rv.Rating, rv.Comment, rv.IsAnonymous, rv.IsEdited, rv.UpdatedAt)
	if err != nil {
		return ppostgres.WrapError("reviews.update", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("reviews.update", "review")
	}
	return nil
}

func (r *ReviewRepository) Delete(ctx context.Context, reviewID string) error {
	tag, err := r.provider.Querier(ctx).Exec(ctx, `DELETE FROM reviews WHERE id = $1`, reviewID)
	if err != nil {
		return ppostgres.WrapError("reviews.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("reviews.delete", "review")
	}
	return nil
}

func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	review, err := scanReview(r.provider.Querier(ctx).QueryRow(ctx,
		"SELECT "+reviewColumns+" FROM reviews WHERE id = $1", reviewID))
	return review, ppostgres.WrapError("reviews.get", err)
}

func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.Page[domain.Review], error) {
	return r.page(ctx, "reviews.list_by_product", "product_id", productID, pager)
}

func (r *ReviewRepository) ListByAccount(ctx context.Context, accountID string, pager domain.Pagination) (domain.Page[domain.Review], error) {
	return r.page(ctx, "reviews.list_by_account", "account_id", accountID, pager)
}

func (r *ReviewRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Review, error) {
	rows, err := r.provider.Querier(ctx).Query(ctx,
		"SELECT "+reviewColumns+" FROM reviews WHERE order_id = $1 ORDER BY created_at", orderID)
	if err != nil {
		return nil, ppostgres.WrapError("reviews.list_by_order", err)
	}
	reviews, err := collectReviews(rows)
	return reviews, ppostgres.WrapError("reviews.list_by_order", err)
}

func (r *ReviewRepository) Summary(ctx context.Context, productID string) (domain.ReviewSummary, error) {
	rows, err := r.provider.Querier(ctx).Query(ctx,
		`SELECT rating, COUNT(*) FROM reviews WHERE product_id = $1 GROUP BY rating`, productID)
	if err != nil {
		return domain.ReviewSummary{}, ppostgres.WrapError("reviews.summary", err)
	}
	defer rows.Close()

	summary := domain.ReviewSummary{ProductID: productID, Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	total := 0
	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return domain.ReviewSummary{}, ppostgres.WrapError("reviews.summary", err)
		}
		summary.Distribution[rating] = count
		summary.Count += count
		total += rating * count
	}
	if err := rows.Err(); err != nil {
		return domain.ReviewSummary{}, ppostgres.WrapError("reviews.summary", err)
	}
	if summary.Count > 0 {
		summary.Average = float64(total) / float64(summary.Count)
	}
	return summary, nil
}

func (r *ReviewRepository) page(ctx context.Context, op, column, value string, pager domain.Pagination) (domain.Page[domain.Review], error) {
	window, err := windowFor(op, pager)
	if err != nil {
		return domain.Page[domain.Review]{}, err
	}
	limit, args := window.clause([]any{value})
	rows, err := r.provider.Querier(ctx).Query(ctx,
		"SELECT "+reviewColumns+" FROM reviews WHERE "+column+" = $1 ORDER BY created_at DESC, id DESC"+limit, args...)
	if err != nil {
		return domain.Page[domain.Review]{}, ppostgres.WrapError(op, err)
	}
	reviews, err := collectReviews(rows)
	if err != nil {
		return domain.Page[domain.Review]{}, ppostgres.WrapError(op, err)
	}
	return pageOf(window, reviews), nil
}

func collectReviews(rows pgx.Rows) ([]domain.Review, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Review, error) {
		return scanReview(row)
	})
}

func scanReview(row pgx.Row) (domain.Review, error) {
	var rv domain.Review
	err := row.Scan(&rv.ID, &rv.AccountID, &rv.AuthorName, &rv.ProductID, &rv.OrderID, &rv.OrderItemID, &rv.Rating,
		&rv.Comment, &rv.IsAnonymous, &rv.IsEdited, &rv.CreatedAt, &rv.UpdatedAt)
	rv.CreatedAt = rv.CreatedAt.UTC()
	rv.UpdatedAt = rv.UpdatedAt.UTC()
	return rv, err
}
