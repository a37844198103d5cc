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

const userColumns = `id, username, first_name, last_name, password_hash, role, is_active, must_change_password, created_at, updated_at`

type UserRepository struct {
	store  *database.Store
	logger logger.Logger
}

func NewUserRepository(store *database.Store, logger logger.Logger) domain.UserRepository {
	return &UserRepository{
		store:  store,
		logger: logger,
	}
}

func scanUser(row interface{ Scan(...interface{}) error }) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.MustChangePassword,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.store.Conn(ctx).ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.Role,
		user.IsActive,
		user.MustChangePassword,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrUsernameTaken
		}
		r.logger.Error("Failed to create user", map[string]interface{}{
			"username": user.Username,
			"error":    err.Error(),
		})
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.store.Conn(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}
	return user, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.store.Conn(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1)`, username)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return user, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool, at time.Time) error {
	return r.update(ctx, "password", `
		UPDATE users SET password_hash = $1, must_change_password = $2, updated_at = $3
		WHERE id = $4`,
		passwordHash, mustChange, at, id)
}

func (r *UserRepository) UpdateRole(ctx context.Context, id string, role domain.Role, at time.Time) error {
	return r.update(ctx, "role", `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`, role, at, id)
}

func (r *UserRepository) UpdateActive(ctx context.Context, id string, active bool, at time.Time) error {
	return r.update(ctx, "status", `UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`, active, at, id)
}

func (r *UserRepository) update(ctx context.Context, field, query string, args ...interface{}) error {
	res, err := r.store.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update user", map[string]interface{}{
			"field": field,
			"error": err.Error(),
		})
		return fmt.Errorf("update user %s: %w", field, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user %s: %w", field, err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) Search(ctx context.Context, query string) ([]*domain.User, error) {
	rows, err := r.store.Conn(ctx).QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE LOWER(username) LIKE $1 ESCAPE '\'
		   OR LOWER(first_name) LIKE $1 ESCAPE '\'
		   OR LOWER(last_name) LIKE $1 ESCAPE '\'
		   OR LOWER(first_name || ' ' || last_name) LIKE $1 ESCAPE '\'
		ORDER BY LOWER(username)`,
		containsPattern(query),
	)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}
