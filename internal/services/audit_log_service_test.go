package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/repositories"
)

type stubAuditRepo struct {
	appendFn func(context.Context, domain.AuditLogEntry) error
	entries  []domain.AuditLogEntry
	filter   repositories.AuditLogFilter
}

func (s *stubAuditRepo) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if s.appendFn != nil {
		if err := s.appendFn(ctx, entry); err != nil {
			return err
		}
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubAuditRepo) List(_ context.Context, filter repositories.AuditLogFilter) (domain.Page[domain.AuditLogEntry], error) {
	s.filter = filter
	return domain.Page[domain.AuditLogEntry]{Items: s.entries}, nil
}

func TestAuditLogServiceRecord(t *testing.T) {
	repo := &stubAuditRepo{}
	svc, err := NewAuditLogService(AuditLogServiceDeps{Repository: repo, Clock: fixedClock, IDGenerator: sequentialIDs()})
	if err != nil {
		t.Fatalf("NewAuditLogService: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{
		Action:     " Product.Price ",
		TargetType: "Product",
		TargetID:   "p1",
		Details:    map[string]any{"from": 100, "apiToken": "abc", " ": "dropped"},
	})

	if len(repo.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.ID != "aud_00000001" || entry.Action != "product.price" || entry.TargetType != "product" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.ActorID != "system" || !entry.CreatedAt.Equal(fixedNow) {
		t.Fatalf("expected defaults applied, got %+v", entry)
	}
	if entry.Details["apiToken"] != "[redacted]" || entry.Details["from"] != 100 || len(entry.Details) != 2 {
		t.Fatalf("unexpected details %+v", entry.Details)
	}
}

func TestAuditLogServiceRecordSwallowsFailures(t *testing.T) {
	logger := &captureLogger{}
	repo := &stubAuditRepo{appendFn: func(context.Context, domain.AuditLogEntry) error {
		return errors.New("db down")
	}}
	svc, err := NewAuditLogService(AuditLogServiceDeps{Repository: repo, Logger: logger.log})
	if err != nil {
		t.Fatalf("NewAuditLogService: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{Action: "voucher.create", ActorID: "admin-1"})
	if !logger.has("audit.append.failed") {
		t.Fatalf("expected failure to be logged")
	}

	svc.Record(context.Background(), AuditLogRecord{ActorID: "admin-1"})
	if !logger.has("audit.record.skipped") {
		t.Fatalf("expected empty action to be skipped")
	}
}

func TestAuditLogServiceList(t *testing.T) {
	repo := &stubAuditRepo{}
	svc, _ := NewAuditLogService(AuditLogServiceDeps{Repository: repo})
	if _, err := svc.List(context.Background(), AuditLogFilter{TargetType: " voucher ", Pagination: Pagination{PageSize: 20}}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if repo.filter.TargetType != "voucher" || repo.filter.Pagination.PageSize != 20 {
		t.Fatalf("unexpected filter %+v", repo.filter)
	}
}
