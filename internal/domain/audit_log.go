package domain

import (
	"context"
	"time"
)

type EntityType string
type ActionType string

const (
	EntityTypeUser        EntityType = "user"
	EntityTypeAccount     EntityType = "account"
	EntityTypeTransaction EntityType = "transaction"
	EntityTypeRequest     EntityType = "request"

	ActionTypeCreate  ActionType = "create"
	ActionTypeUpdate  ActionType = "update"
	ActionTypeDelete  ActionType = "delete"
	ActionTypeApprove ActionType = "approve"
	ActionTypeReject  ActionType = "reject"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityTypeUser, EntityTypeAccount, EntityTypeTransaction, EntityTypeRequest:
		return true
	}
	return false
}

type AuditLog struct {
	ID          string     `json:"id"`
	EntityType  EntityType `json:"entityType"`
	EntityID    string     `json:"entityId"`
	Action      ActionType `json:"action"`
	ActorUserID string     `json:"actorUserId,omitempty"`
	Details     string     `json:"details,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type AuditLogRepository interface {
	Create(ctx context.Context, log *AuditLog) error
	FindByEntityID(ctx context.Context, entityType EntityType, entityID string) ([]*AuditLog, error)
	FindAll(ctx context.Context, limit, offset int) ([]*AuditLog, error)
}

type AuditLogService interface {
	// LogAction joins the caller's storage transaction when one is open.
	LogAction(ctx context.Context, entry AuditLog) error
	GetEntityLogs(ctx context.Context, actor Principal, entityType EntityType, entityID string) ([]*AuditLog, error)
	GetAllLogs(ctx context.Context, actor Principal, page, pageSize int) ([]*AuditLog, error)
}
