package repository

import (
	"context"
	"database/sql"
	"fmt"

	"mybank/internal/database"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

type AuditLogRepository struct {
	store  *database.Store
	logger logger.Logger
}

func NewAuditLogRepository(store *database.Store, logger logger.Logger) domain.AuditLogRepository {
	return &AuditLogRepository{
		store:  store,
		logger: logger,
	}
}

func (r *AuditLogRepository) Create(ctx context.Context, log *domain.AuditLog) error {
	_, err := r.store.Conn(ctx).ExecContext(ctx, `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, actor_user_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.ID,
		log.EntityType,
		log.EntityID,
		log.Action,
		nullString(log.ActorUserID),
		log.Details,
		log.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to write audit log", map[string]interface{}{
			"entity_type": log.EntityType,
			"entity_id":   log.EntityID,
			"error":       err.Error(),
		})
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

func (r *AuditLogRepository) FindByEntityID(ctx context.Context, entityType domain.EntityType, entityID string) ([]*domain.AuditLog, error) {
	return r.query(ctx, `
		SELECT id, entity_type, entity_id, action, actor_user_id, details, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id`,
		entityType, entityID,
	)
}

func (r *AuditLogRepository) FindAll(ctx context.Context, limit, offset int) ([]*domain.AuditLog, error) {
	return r.query(ctx, `
		SELECT id, entity_type, entity_id, action, actor_user_id, details, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
}

func (r *AuditLogRepository) query(ctx context.Context, query string, args ...interface{}) ([]*domain.AuditLog, error) {
	rows, err := r.store.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*domain.AuditLog, 0)
	for rows.Next() {
		var (
			entry          domain.AuditLog
			actor, details sql.NullString
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Action,
			&actor,
			&details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		entry.ActorUserID = actor.String
		entry.Details = details.String
		logs = append(logs, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	return logs, nil
}
