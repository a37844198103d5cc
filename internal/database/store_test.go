package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mybank/internal/database"
	"mybank/internal/database/dbtest"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

func insertUser(ctx context.Context, store *database.Store, id string) error {
	now := time.Now().UTC()
	_, err := store.Conn(ctx).ExecContext(ctx, `
		INSERT INTO users (id, username, first_name, last_name, password_hash, role, is_active, must_change_password, created_at, updated_at)
		VALUES ($1, $2, 'Test', 'User', 'x', 'customer', $3, $4, $5, $5)`,
		id, "user-"+id, true, false, now)
	return err
}

func countUsers(t *testing.T, store *database.Store) int {
	t.Helper()
	var n int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM users").Scan(&n))
	return n
}

func TestWithTxCommits(t *testing.T) {
	store := dbtest.New(t)

	err := store.WithTx(context.Background(), func(ctx context.Context) error {
		return insertUser(ctx, store, "u1")
	})

	require.NoError(t, err)
	assert.Equal(t, 1, countUsers(t, store))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store := dbtest.New(t)
	errStop := errors.New("stop")

	err := store.WithTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, insertUser(ctx, store, "u1"))
		return errStop
	})

	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 0, countUsers(t, store))
}

func TestNestedWithTxSharesOuterTransaction(t *testing.T) {
	store := dbtest.New(t)

	err := store.WithTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, insertUser(ctx, store, "u1"))
		require.NoError(t, store.WithTx(ctx, func(ctx context.Context) error {
			return insertUser(ctx, store, "u2")
		}))
		return domain.ErrInsufficientFunds
	})

	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, 0, countUsers(t, store))
}

func TestAfterCommitRunsOnlyOnCommit(t *testing.T) {
	store := dbtest.New(t)
	ran := 0

	_ = store.WithTx(context.Background(), func(ctx context.Context) error {
		database.AfterCommit(ctx, func() { ran++ })
		return errors.New("abort")
	})
	assert.Equal(t, 0, ran)

	require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context) error {
		database.AfterCommit(ctx, func() { ran++ })
		return nil
	}))
	assert.Equal(t, 1, ran)

	database.AfterCommit(context.Background(), func() { ran++ })
	assert.Equal(t, 2, ran)
}

func TestTimeoutBecomesUnavailable(t *testing.T) {
	store := dbtest.NewWithTimeout(t, 20*time.Millisecond)

	err := store.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	kind, _ := domain.KindOf(err)
	assert.Equal(t, domain.KindUnavailable, kind)
}

func TestDomainErrorsPassThrough(t *testing.T) {
	store := dbtest.New(t)

	err := store.Do(context.Background(), func(ctx context.Context) error {
		return domain.ErrAccountNotFound
	})

	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.False(t, domain.IsRetryable(err))
}

func TestUniqueViolationDetected(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	require.NoError(t, insertUser(ctx, store, "u1"))

	err := insertUser(ctx, store, "u1")

	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
	assert.False(t, database.IsInfrastructureError(err))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	store := dbtest.New(t)

	err := database.NewMigrationService(store.DB(), logger.Nop()).RunMigrations(context.Background())
	assert.NoError(t, err)
}
