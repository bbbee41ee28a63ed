package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	domain "github.com/tindahan/api/internal/domain"
	ppostgres "github.com/tindahan/api/internal/platform/postgres"
	"github.com/tindahan/api/internal/repositories"
)

const addressColumns = `id, account_id, label, recipient_name, phone, street, additional_info, latitude, longitude,
	is_default, created_at, updated_at`

// AddressRepository persists account addresses in Postgres.
type AddressRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)

// NewAddressRepository constructs a Postgres-backed address repository.
func NewAddressRepository(provider *ppostgres.Provider) (*AddressRepository, error) {
	if err := requireProvider(provider, "address"); err != nil {
		return nil, err
	}
	return &AddressRepository{provider: provider}, nil
}

// List returns the account's addresses, default first then most recently updated.
func (r *AddressRepository) List(ctx context.Context, accountID string) ([]domain.Address, error) {
	rows, err := r.provider.Querier(ctx).Query(ctx, "SELECT "+addressColumns+`
		  FROM addresses WHERE account_id = $1
		 ORDER BY is_default DESC, updated_at DESC, id`, accountID)
	if err != nil {
		return nil, ppostgres.WrapError("addresses.list", err)
	}
	addresses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Address, error) {
		return scanAddress(row)
	})
	return addresses, ppostgres.WrapError("addresses.list", err)
}

func (r *AddressRepository) FindByID(ctx context.Context, addressID string) (domain.Address, error) {
	address, err := scanAddress(r.provider.Querier(ctx).QueryRow(ctx,
		"SELECT "+addressColumns+" FROM addresses WHERE id = $1", addressID))
	return address, ppostgres.WrapError("addresses.get", err)
}

func (r *AddressRepository) Insert(ctx context.Context, a domain.Address) error {
	_, err := r.provider.Querier(ctx).Exec(ctx, `
		INSERT INTO addresses (`+addressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.AccountID, a.Label, a.RecipientName, a.Phone, a.Street, a.AdditionalInfo,
		a.Latitude, a.Longitude, a.IsDefault, a.CreatedAt, a.UpdatedAt)
	return ppostgres.WrapError("addresses.insert", err)
}

func (r *AddressRepository) Update(ctx context.Context, a domain.Address) error {
	tag, err := r.provider.Querier(ctx).Exec(ctx, `
		UPDATE addresses
		   SET label = $2, recipient_name = $3, phone = $4, street = $5, additional_info = $6,
		       latitude = $7, longitude = $8, is_default = $9, updated_at = $10
		 WHERE id = $1`,
		a.ID, a.Label, a.RecipientName, a.Phone, a.Street, a.AdditionalInfo,
		a.Latitude, a.Longitude, a.IsDefault, a.UpdatedAt)
	if err != nil {
		return ppostgres.WrapError("addresses.update", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("addresses.update", "address")
	}
	return nil
}

func (r *AddressRepository) Delete(ctx context.Context, addressID string) error {
	tag, err := r.provider.Querier(ctx).Exec(ctx, `DELETE FROM addresses WHERE id = $1`, addressID)
	if err != nil {
		return ppostgres.WrapError("addresses.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("addresses.delete", "address")
	}
	return nil
}

func (r *AddressRepository) ClearDefault(ctx context.Context, accountID string, exceptID string) error {
	_, err := r.provider.Querier(ctx).Exec(ctx, `
		UPDATE addresses SET is_default = FALSE
		 WHERE account_id = $1 AND id <> $2 AND is_default`, accountID, exceptID)
	return ppostgres.WrapError("addresses.clear_default", err)
}

func scanAddress(row pgx.Row) (domain.Address, error) {
	var a domain.Address
	err := row.Scan(&a.ID, &a.AccountID, &a.Label, &a.RecipientName, &a.Phone, &a.Street, &a.AdditionalInfo,
		&a.Latitude, &a.Longitude, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Address{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}
