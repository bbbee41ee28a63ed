package postgres

import (
	"fmt"
	"strings"

	domain "github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/platform/pagination"
	ppostgres "github.com/tindahan/api/internal/platform/postgres"
)

type pageWindow struct {
	limit  int
	offset int
}

func windowFor(op string, pager domain.Pagination) (pageWindow, error) {
	limit := pager.PageSize
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	if limit > pagination.DefaultMaxPageSize {
		limit = pagination.DefaultMaxPageSize
	}
	offset, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return pageWindow{}, fmt.Errorf("%s: %w", op, err)
	}
	return pageWindow{limit: limit, offset: offset}, nil
}

// clause appends LIMIT/OFFSET placeholders, fetching one extra row to detect a following page.
func (w pageWindow) clause(args []any) (string, []any) {
	args = append(args, w.limit+1, w.offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

func pageOf[T any](w pageWindow, items []T) domain.Page[T] {
	page := domain.Page[T]{Items: items}
	if len(items) > w.limit {
		page.Items = items[:w.limit]
		page.NextPageToken = pagination.EncodeToken(w.offset + w.limit)
	}
	return page
}

type whereBuilder struct {
	conds []string
	args  []any
}

func (b *whereBuilder) add(cond string, arg any) {
	b.args = append(b.args, arg)
	b.conds = append(b.conds, fmt.Sprintf(cond, len(b.args)))
}

func (b *whereBuilder) raw(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *whereBuilder) sql() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

func requireProvider(provider *ppostgres.Provider, name string) error {
	if provider == nil {
		return fmt.Errorf("%s repository requires postgres provider", name)
	}
	return nil
}

func nullableString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
