package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mybank/internal/database"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

const requestColumns = `id, kind, requester_user_id, subject_user_id, account_type, account_id, reason, status,
	requested_at, resolved_at, resolver_user_id, resolution_note, created_account_id`

type RequestRepository struct {
	store  *database.Store
	logger logger.Logger
}

func NewRequestRepository(store *database.Store, logger logger.Logger) domain.RequestRepository {
	return &RequestRepository{
		store:  store,
		logger: logger,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanRequest(row interface{ Scan(...interface{}) error }) (*domain.Request, error) {
	var (
		req                            domain.Request
		accountType, accountID, reason sql.NullString
		resolver, note, createdAccount sql.NullString
		resolvedAt                     sql.NullTime
	)
	err := row.Scan(
		&req.ID,
		&req.Kind,
		&req.RequesterUserID,
		&req.SubjectUserID,
		&accountType,
		&accountID,
		&reason,
		&req.Status,
		&req.RequestedAt,
		&resolvedAt,
		&resolver,
		&note,
		&createdAccount,
	)
	if err != nil {
		return nil, err
	}

	req.AccountType = domain.AccountType(accountType.String)
	req.AccountID = accountID.String
	req.Reason = reason.String
	req.ResolverUserID = resolver.String
	req.ResolutionNote = note.String
	req.CreatedAccountID = createdAccount.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		req.ResolvedAt = &t
	}
	return &req, nil
}

func (r *RequestRepository) Create(ctx context.Context, req *domain.Request) error {
	_, err := r.store.Conn(ctx).ExecContext(ctx, `
		INSERT INTO requests (id, kind, requester_user_id, subject_user_id, account_type, account_id, reason, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID,
		req.Kind,
		req.RequesterUserID,
		req.SubjectUserID,
		nullString(string(req.AccountType)),
		nullString(req.AccountID),
		nullString(req.Reason),
		req.Status,
		req.RequestedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create request", map[string]interface{}{
			"kind":  req.Kind,
			"error": err.Error(),
		})
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (r *RequestRepository) FindByID(ctx context.Context, id string) (*domain.Request, error) {
	row := r.store.Conn(ctx).QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find request %s: %w", id, err)
	}
	return req, nil
}

func (r *RequestRepository) FindPending(ctx context.Context, filter domain.PendingFilter) ([]*domain.Request, error) {
	conds := []string{"status = $1"}
	args := []interface{}{domain.RequestPending}
	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, filter.Since.UTC())
		conds = append(conds, fmt.Sprintf("requested_at > $%d", len(args)))
	}

	return r.list(ctx, `SELECT `+requestColumns+` FROM requests WHERE `+
		strings.Join(conds, " AND ")+` ORDER BY requested_at, id`, args...)
}

func (r *RequestRepository) FindByRequester(ctx context.Context, userID string) ([]*domain.Request, error) {
	return r.list(ctx, `SELECT `+requestColumns+` FROM requests
		WHERE requester_user_id = $1 OR subject_user_id = $1
		ORDER BY requested_at DESC, id`, userID)
}

func (r *RequestRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Request, error) {
	rows, err := r.store.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	reqs := make([]*domain.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

func (r *RequestRepository) HasPending(ctx context.Context, kind domain.RequestKind, subjectUserID, accountID string, accountType domain.AccountType) (bool, error) {
	query := `SELECT COUNT(*) FROM requests WHERE status = $1 AND kind = $2 AND subject_user_id = $3`
	args := []interface{}{domain.RequestPending, kind, subjectUserID}
	if accountID != "" {
		args = append(args, accountID)
		query += fmt.Sprintf(" AND account_id = $%d", len(args))
	}
	if accountType != "" {
		args = append(args, accountType)
		query += fmt.Sprintf(" AND account_type = $%d", len(args))
	}

	var n int
	if err := r.store.Conn(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check pending requests: %w", err)
	}
	return n > 0, nil
}

// Resolve is a compare-and-swap on status: only a pending row is updated.
func (r *RequestRepository) Resolve(ctx context.Context, req *domain.Request) (bool, error) {
	res, err := r.store.Conn(ctx).ExecContext(ctx, `
		UPDATE requests
		SET status = $1, resolved_at = $2, resolver_user_id = $3, resolution_note = $4
		WHERE id = $5 AND status = $6`,
		req.Status,
		req.ResolvedAt,
		req.ResolverUserID,
		nullString(req.ResolutionNote),
		req.ID,
		domain.RequestPending,
	)
	if err != nil {
		return false, fmt.Errorf("resolve request %s: %w", req.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve request %s: %w", req.ID, err)
	}
	return n == 1, nil
}

func (r *RequestRepository) AttachAccount(ctx context.Context, id, accountID string) error {
	_, err := r.store.Conn(ctx).ExecContext(ctx,
		`UPDATE requests SET created_account_id = $1 WHERE id = $2`, accountID, id)
	if err != nil {
		return fmt.Errorf("attach account to request %s: %w", id, err)
	}
	return nil
}
