package repository

import (
	"context"
	"database/sql"
	"fmt"

	"mybank/internal/database"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

type TransactionRepository struct {
	store  *database.Store
	logger logger.Logger
}

func NewTransactionRepository(store *database.Store, logger logger.Logger) domain.TransactionRepository {
	return &TransactionRepository{
		store:  store,
		logger: logger,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	var counterparty sql.NullString
	if tx.CounterpartyAccountID != "" {
		counterparty = sql.NullString{String: tx.CounterpartyAccountID, Valid: true}
	}

	_, err := r.store.Conn(ctx).ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, type, direction, amount, balance_after, description, status, counterparty_account_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.ID,
		tx.AccountID,
		tx.Type,
		tx.Direction,
		tx.Amount,
		tx.BalanceAfter,
		tx.Description,
		tx.Status,
		counterparty,
		tx.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record transaction", map[string]interface{}{
			"account_id": tx.AccountID,
			"type":       tx.Type,
			"error":      err.Error(),
		})
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// orderClause only ever returns one of these fixed strings.
func orderClause(f domain.TransactionFilter) string {
	dir := "DESC"
	if f.Ascending {
		dir = "ASC"
	}
	if f.SortBy == domain.SortByAmount {
		return "amount " + dir + ", created_at " + dir + ", id " + dir
	}
	return "created_at " + dir + ", id " + dir
}

func (r *TransactionRepository) FindByAccount(ctx context.Context, accountID string, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	query := `
		SELECT id, account_id, type, direction, amount, balance_after, description, status, counterparty_account_id, created_at
		FROM transactions
		WHERE account_id = $1`
	args := []interface{}{accountID}
	if filter.Type != nil {
		query += ` AND type = $2`
		args = append(args, *filter.Type)
	}
	query += ` ORDER BY ` + orderClause(filter)

	rows, err := r.store.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]*domain.Transaction, 0)
	for rows.Next() {
		var (
			t            domain.Transaction
			counterparty sql.NullString
		)
		err := rows.Scan(
			&t.ID,
			&t.AccountID,
			&t.Type,
			&t.Direction,
			&t.Amount,
			&t.BalanceAfter,
			&t.Description,
			&t.Status,
			&counterparty,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.CounterpartyAccountID = counterparty.String
		txs = append(txs, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}
