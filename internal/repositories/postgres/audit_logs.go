package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	domain "github.com/tindahan/api/internal/domain"
	ppostgres "github.com/tindahan/api/internal/platform/postgres"
	"github.com/tindahan/api/internal/repositories"
)

// AuditLogRepository appends admin audit entries to Postgres.
type AuditLogRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)

// NewAuditLogRepository constructs a Postgres-backed audit log repository.
func NewAuditLogRepository(provider *ppostgres.Provider) (*AuditLogRepository, error) {
	if err := requireProvider(provider, "audit log"); err != nil {
		return nil, err
	}
	return &AuditLogRepository{provider: provider}, nil
}

func (r *AuditLogRepository) Append(ctx context.Context, e domain.AuditLogEntry) error {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	_, err := r.provider.Querier(ctx).Exec(ctx, `
		INSERT INTO audit_logs (id, actor_id, action, target_type, target_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ActorID, e.Action, e.TargetType, e.TargetID, details, e.CreatedAt)
	return ppostgres.WrapError("audit_logs.append", err)
}

func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.Page[domain.AuditLogEntry], error) {
	window, err := windowFor("audit_logs.list", filter.Pagination)
	if err != nil {
		return domain.Page[domain.AuditLogEntry]{}, err
	}
	var where whereBuilder
	if filter.TargetType != "" {
		where.add("target_type = $%d", filter.TargetType)
	}
	if filter.TargetID != "" {
		where.add("target_id = $%d", filter.TargetID)
	}
	limit, args := window.clause(where.args)
	rows, err := r.provider.Querier(ctx).Query(ctx, `
		SELECT id, actor_id, action, target_type, target_id, details, created_at
		  FROM audit_logs`+where.sql()+` ORDER BY created_at DESC, id DESC`+limit, args...)
	if err != nil {
		return domain.Page[domain.AuditLogEntry]{}, ppostgres.WrapError("audit_logs.list", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditLogEntry, error) {
		var e domain.AuditLogEntry
		err := row.Scan(&e.ID, &e.ActorID, &e.Action, &e.TargetType, &e.TargetID, &e.Details, &e.CreatedAt)
		e.CreatedAt = e.CreatedAt.UTC()
		return e, err
	})
	if err != nil {
		return domain.Page[domain.AuditLogEntry]{}, ppostgres.WrapError("audit_logs.list", err)
	}
	return pageOf(window, entries), nil
}
