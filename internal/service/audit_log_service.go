package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mybank/internal/database"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

const (
	defaultAuditPageSize = 20
	maxAuditPageSize     = 200
)

type AuditLogService struct {
	store  *database.Store
	repo   domain.AuditLogRepository
	logger logger.Logger
	now    func() time.Time
}

func NewAuditLogService(store *database.Store, repo domain.AuditLogRepository, logger logger.Logger) *AuditLogService {
	return &AuditLogService{
		store:  store,
		repo:   repo,
		logger: logger,
		now:    utcNow,
	}
}

func (s *AuditLogService) LogAction(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if entry.ActorUserID == "" {
		if actor, ok := domain.PrincipalFromContext(ctx); ok {
			entry.ActorUserID = actor.UserID
		}
	}

	if err := s.repo.Create(ctx, &entry); err != nil {
		s.logger.ErrorContext(ctx, "Audit log could not be written", map[string]interface{}{
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityID,
			"action":      entry.Action,
			"error":       err.Error(),
		})
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func (s *AuditLogService) GetEntityLogs(ctx context.Context, actor domain.Principal, entityType domain.EntityType, entityID string) ([]*domain.AuditLog, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if !entityType.Valid() {
		return nil, domain.ErrInvalidInput.WithMessage("unknown entity type %q", entityType)
	}

	var logs []*domain.AuditLog
	err := s.store.Do(ctx, func(ctx context.Context) error {
		var err error
		logs, err = s.repo.FindByEntityID(ctx, entityType, entityID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *AuditLogService) GetAllLogs(ctx context.Context, actor domain.Principal, page, pageSize int) ([]*domain.AuditLog, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultAuditPageSize
	}
	if pageSize > maxAuditPageSize {
		pageSize = maxAuditPageSize
	}

	var logs []*domain.AuditLog
	err := s.store.Do(ctx, func(ctx context.Context) error {
		var err error
		logs, err = s.repo.FindAll(ctx, pageSize, (page-1)*pageSize)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Audit logs could not be listed", map[string]interface{}{
			"page":      page,
			"page_size": pageSize,
			"error":     err.Error(),
		})
		return nil, err
	}
	return logs, nil
}

// utcNow is truncated to microseconds so values survive a round trip through
// either database driver unchanged.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
