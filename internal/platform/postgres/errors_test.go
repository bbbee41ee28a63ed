package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestWrapErrorClassifies(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "no rows", err: pgx.ErrNoRows, notFound: true},
		{name: "unique", err: &pgconn.PgError{Code: codeUniqueViolation}, conflict: true},
		{name: "foreign key", err: &pgconn.PgError{Code: codeForeignKeyViolation}, conflict: true},
		{name: "serialization", err: fmt.Errorf("commit: %w", &pgconn.PgError{Code: codeSerializationFailure}), conflict: true},
		{name: "shutdown", err: &pgconn.PgError{Code: codeAdminShutdown}, unavailable: true},
		{name: "other", err: errors.New("syntax")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("op", tc.err)
			var repoErr *Error
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification %+v", repoErr)
			}
			if !errors.Is(err, tc.err) && !errors.Is(err, errors.Unwrap(tc.err)) {
				t.Fatalf("expected original error to remain reachable")
			}
		})
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := WrapError("op", context.Canceled); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestIsRetryable(t *testing.T) {
	if !isRetryable(&pgconn.PgError{Code: codeDeadlockDetected}) {
		t.Fatalf("deadlock should be retryable")
	}
	if isRetryable(&pgconn.PgError{Code: codeUniqueViolation}) {
		t.Fatalf("unique violation should not be retryable")
	}
}

func TestRunInTxWithoutPool(t *testing.T) {
	var p *Provider
	if err := p.RunInTx(context.Background(), func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected error for provider without pool")
	}
}
