package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mybank/internal/database"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

const accountColumns = `a.id, a.account_number, a.owner_user_id, a.account_type, a.balance, a.status, a.created_at, a.updated_at, a.closed_at`

type AccountRepository struct {
	store  *database.Store
	logger logger.Logger
}

func NewAccountRepository(store *database.Store, logger logger.Logger) domain.AccountRepository {
	return &AccountRepository{
		store:  store,
		logger: logger,
	}
}

func scanAccount(row interface{ Scan(...interface{}) error }, extra ...interface{}) (*domain.Account, error) {
	var (
		a        domain.Account
		closedAt sql.NullTime
	)
	dest := []interface{}{
		&a.ID,
		&a.AccountNumber,
		&a.OwnerUserID,
		&a.AccountType,
		&a.Balance,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&closedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		a.ClosedAt = &t
	}
	return &a, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	_, err := r.store.Conn(ctx).ExecContext(ctx, `
		INSERT INTO accounts (id, account_number, owner_user_id, account_type, balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID,
		account.AccountNumber,
		account.OwnerUserID,
		account.AccountType,
		account.Balance,
		account.Status,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			if account.AccountType == domain.AccountChecking {
				return domain.ErrPrimaryCheckingExists
			}
			return domain.ErrAccountNumberConflict
		}
		r.logger.Error("Failed to create account", map[string]interface{}{
			"owner_user_id": account.OwnerUserID,
			"error":         err.Error(),
		})
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.store.Conn(ctx).QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.id = $1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account %s: %w", id, err)
	}
	return account, nil
}

func (r *AccountRepository) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var n int
	err := r.store.Conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE account_number = $1`, number).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check account number: %w", err)
	}
	return n > 0, nil
}

func (r *AccountRepository) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	rows, err := r.store.Conn(ctx).QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts a
		WHERE a.owner_user_id = $1 AND a.status <> $2
		ORDER BY a.created_at, a.account_number`,
		ownerID, domain.AccountClosed,
	)
	if err != nil {
		return nil, fmt.Errorf("list accounts for owner: %w", err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) HasOpenChecking(ctx context.Context, ownerID string) (bool, error) {
	var n int
	err := r.store.Conn(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM accounts
		WHERE owner_user_id = $1 AND account_type = $2 AND status <> $3`,
		ownerID, domain.AccountChecking, domain.AccountClosed,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check open checking: %w", err)
	}
	return n > 0, nil
}

func (r *AccountRepository) Credit(ctx context.Context, id string, amount domain.Money, at time.Time) (domain.Money, error) {
	var balance domain.Money
	err := r.store.Conn(ctx).QueryRowContext(ctx, `
		UPDATE accounts SET balance = balance + $1, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING balance`,
		amount, at, id, domain.AccountActive,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrAccountNotActive
	}
	if err != nil {
		return 0, fmt.Errorf("credit account %s: %w", id, err)
	}
	return balance, nil
}

// Debit only applies when the balance covers the amount, so the check and the
// write are one statement.
func (r *AccountRepository) Debit(ctx context.Context, id string, amount domain.Money, at time.Time) (domain.Money, error) {
	var balance domain.Money
	err := r.store.Conn(ctx).QueryRowContext(ctx, `
		UPDATE accounts SET balance = balance - $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND balance >= $1
		RETURNING balance`,
		amount, at, id, domain.AccountActive,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("debit account %s: %w", id, err)
	}
	return balance, nil
}

func (r *AccountRepository) Close(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.store.Conn(ctx).ExecContext(ctx, `
		UPDATE accounts SET status = $1, closed_at = $2, updated_at = $2
		WHERE id = $3 AND status <> $1`,
		domain.AccountClosed, at, id,
	)
	if err != nil {
		return false, fmt.Errorf("close account %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close account %s: %w", id, err)
	}
	return n > 0, nil
}

func (r *AccountRepository) Search(ctx context.Context, query string, limit, offset int) ([]*domain.Account, int, error) {
	const where = `
		FROM accounts a JOIN users u ON u.id = a.owner_user_id
		WHERE LOWER(a.account_number) LIKE $1 ESCAPE '\'
		   OR LOWER(u.first_name || ' ' || u.last_name) LIKE $1 ESCAPE '\'`
	pattern := containsPattern(query)
	conn := r.store.Conn(ctx)

	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) `+where, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT `+accountColumns+`, u.first_name, u.last_name `+where+`
		ORDER BY a.account_number
		LIMIT $2 OFFSET $3`,
		pattern, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("search accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0, limit)
	for rows.Next() {
		var first, last string
		account, err := scanAccount(rows, &first, &last)
		if err != nil {
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		account.OwnerName = (&domain.User{FirstName: first, LastName: last}).FullName()
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("search accounts: %w", err)
	}
	return accounts, total, nil
}
