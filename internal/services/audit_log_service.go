package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/repositories"
)

const (
	auditIDPrefix     = "aud_"
	auditRedacted     = "[redacted]"
	defaultAuditActor = "system"
)

var auditSensitiveKeys = []string{"password", "secret", "token", "apikey", "api_key"}

type auditLogService struct {
	repo   repositories.AuditLogRepository
	clock  func() time.Time
	newID  func() string
	logger func(ctx context.Context, event string, fields map[string]any)
}

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository  repositories.AuditLogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, errors.New("audit log service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &auditLogService{
		repo:   deps.Repository,
		clock:  func() time.Time { return clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

// Record persists an audit log entry after redacting sensitive details. Repository failures
// are logged and never reach the caller.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) {
	entry := s.buildEntry(record)
	if entry.Action == "" {
		s.logger(ctx, "audit.record.skipped", map[string]any{"reason": "missing action"})
		return
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger(ctx, "audit.append.failed", map[string]any{
			"action": entry.Action,
			"target": entry.TargetType + "/" + entry.TargetID,
			"error":  err.Error(),
		})
	}
}

// List returns audit entries newest first.
func (s *auditLogService) List(ctx context.Context, filter AuditLogFilter) (domain.Page[AuditLogEntry], error) {
	page, err := s.repo.List(ctx, repositories.AuditLogFilter{
		TargetType: strings.TrimSpace(filter.TargetType),
		TargetID:   strings.TrimSpace(filter.TargetID),
		Pagination: filter.Pagination,
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			return domain.Page[AuditLogEntry]{}, fmt.Errorf("audit log: repository unavailable: %w", err)
		}
		return domain.Page[AuditLogEntry]{}, err
	}
	return page, nil
}

func (s *auditLogService) buildEntry(record AuditLogRecord) domain.AuditLogEntry {
	occurred := record.OccurredAt
	if occurred.IsZero() {
		occurred = s.clock()
	}
	actor := strings.TrimSpace(record.ActorID)
	if actor == "" {
		actor = defaultAuditActor
	}
	return domain.AuditLogEntry{
		ID:         auditIDPrefix + s.newID(),
		ActorID:    actor,
		Action:     strings.ToLower(strings.TrimSpace(record.Action)),
		TargetType: strings.ToLower(strings.TrimSpace(record.TargetType)),
		TargetID:   strings.TrimSpace(record.TargetID),
		Details:    redactDetails(record.Details),
		CreatedAt:  occurred.UTC(),
	}
}

func redactDetails(details map[string]any) map[string]any {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]any, len(details))
	for key, value := range details {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if isSensitiveAuditKey(key) {
			out[key] = auditRedacted
			continue
		}
		out[key] = value
	}
	return out
}

func isSensitiveAuditKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sensitive := range auditSensitiveKeys {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}
