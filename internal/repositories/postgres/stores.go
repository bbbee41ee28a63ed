package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	domain "github.com/tindahan/api/internal/domain"
	ppostgres "github.com/tindahan/api/internal/platform/postgres"
	"github.com/tindahan/api/internal/repositories"
)

const storeColumns = `id, name, address, phone, opening_hours, latitude, longitude, created_at`

// StoreRepository reads pickup locations from Postgres.
type StoreRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.StoreRepository = (*StoreRepository)(nil)

// NewStoreRepository constructs a Postgres-backed store repository.
func NewStoreRepository(provider *ppostgres.Provider) (*StoreRepository, error) {
	if err := requireProvider(provider, "store"); err != nil {
		return nil, err
	}
	return &StoreRepository{provider: provider}, nil
}

func (r *StoreRepository) List(ctx context.Context, query string) ([]domain.Store, error) {
	var where whereBuilder
	if q := strings.TrimSpace(query); q != "" {
		where.add("(name ILIKE $%[1]d OR address ILIKE $%[1]d)", containsPattern(q))
	}
	rows, err := r.provider.Querier(ctx).Query(ctx,
		"SELECT "+storeColumns+" FROM stores"+where.sql()+" ORDER BY name, id", where.args...)
	if err != nil {
		return nil, ppostgres.WrapError("stores.list", err)
	}
	stores, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Store, error) {
		return scanStore(row)
	})
	return stores, ppostgres.WrapError("stores.list", err)
}

func (r *StoreRepository) FindByID(ctx context.Context, storeID string) (domain.Store, error) {
	store, err := scanStore(r.provider.Querier(ctx).QueryRow(ctx,
		"SELECT "+storeColumns+" FROM stores WHERE id = $1", storeID))
	return store, ppostgres.WrapError("stores.get", err)
}

func scanStore(row pgx.Row) (domain.Store, error) {
	var s domain.Store
	err := row.Scan(&s.ID, &s.Name, &s.Address, &s.Phone, &s.OpeningHours, &s.Latitude, &s.Longitude, &s.CreatedAt)
	s.CreatedAt = s.CreatedAt.UTC()
	return s, err
}
