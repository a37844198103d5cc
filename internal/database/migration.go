package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mybank/pkg/logger"
)

type Migration struct {
	Name       string
	Statements []string
}

type MigrationService struct {
	db     *sql.DB
	logger logger.Logger
}

func NewMigrationService(db *sql.DB, logger logger.Logger) *MigrationService {
	return &MigrationService{
		db:     db,
		logger: logger,
	}
}

// The schema sticks to the subset shared by SQLite and PostgreSQL: text ids,
// integer minor units for money, $n placeholders and UTC timestamps.
var migrations = []Migration{
	{
		Name: "create_users_table",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL,
				first_name TEXT NOT NULL,
				last_name TEXT NOT NULL,
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL CHECK (role IN ('customer', 'teller', 'admin')),
				is_active BOOLEAN NOT NULL,
				must_change_password BOOLEAN NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_idx ON users (LOWER(username))`,
		},
	},
	{
		Name: "create_accounts_table",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS accounts (
				id TEXT PRIMARY KEY,
				account_number TEXT NOT NULL UNIQUE,
				owner_user_id TEXT NOT NULL REFERENCES users (id),
				account_type TEXT NOT NULL,
				balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
				status TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				closed_at TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS accounts_owner_idx ON accounts (owner_user_id)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS accounts_open_checking_idx ON accounts (owner_user_id)
				WHERE account_type = 'checking' AND status <> 'closed'`,
		},
	},
	{
		Name: "create_transactions_table",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS transactions (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL REFERENCES accounts (id),
				type TEXT NOT NULL,
				direction TEXT NOT NULL CHECK (direction IN ('credit', 'debit')),
				amount BIGINT NOT NULL CHECK (amount > 0),
				balance_after BIGINT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				counterparty_account_id TEXT,
				created_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS transactions_account_created_idx ON transactions (account_id, created_at)`,
		},
	},
	{
		Name: "create_requests_table",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS requests (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				requester_user_id TEXT NOT NULL REFERENCES users (id),
				subject_user_id TEXT NOT NULL REFERENCES users (id),
				account_type TEXT,
				account_id TEXT REFERENCES accounts (id),
				reason TEXT,
				status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
				requested_at TIMESTAMP NOT NULL,
				resolved_at TIMESTAMP,
				resolver_user_id TEXT REFERENCES users (id),
				resolution_note TEXT,
				created_account_id TEXT REFERENCES accounts (id)
			)`,
			`CREATE INDEX IF NOT EXISTS requests_status_requested_idx ON requests (status, requested_at)`,
			`CREATE INDEX IF NOT EXISTS requests_requester_idx ON requests (requester_user_id)`,
		},
	},
	{
		Name: "create_audit_logs_table",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS audit_logs (
				id TEXT PRIMARY KEY,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				action TEXT NOT NULL,
				actor_user_id TEXT,
				details TEXT,
				created_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS audit_logs_entity_idx ON audit_logs (entity_type, entity_id)`,
		},
	},
}

func (m *MigrationService) initMigrationTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)`)
	return err
}

func (m *MigrationService) isApplied(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations WHERE name = $1", name).Scan(&count)
	return count > 0, err
}

// apply runs one migration and records it in the same transaction.
func (m *MigrationService) apply(ctx context.Context, mig Migration) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	applied, err := m.isApplied(ctx, tx, mig.Name)
	if err != nil {
		return fmt.Errorf("check state: %w", err)
	}
	if applied {
		m.logger.Debug("Migration already applied", map[string]interface{}{"name": mig.Name})
		return tx.Rollback()
	}

	for _, stmt := range mig.Statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	if _, err = tx.ExecContext(ctx,
		"INSERT INTO migrations (name, applied_at) VALUES ($1, $2)",
		mig.Name, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.logger.Info("Migration applied", map[string]interface{}{"name": mig.Name})
	return nil
}

func (m *MigrationService) RunMigrations(ctx context.Context) error {
	if err := m.initMigrationTable(ctx); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, mig := range migrations {
		if err := m.apply(ctx, mig); err != nil {
			m.logger.Error("Migration failed", map[string]interface{}{
				"name":  mig.Name,
				"error": err.Error(),
			})
			return fmt.Errorf("migration %s: %w", mig.Name, err)
		}
	}
	return nil
}
