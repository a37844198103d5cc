// Package dbtest provides migrated in-memory SQLite stores for tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mybank/internal/database"
	"mybank/pkg/logger"
)

var seq atomic.Int64

// New returns a Store over a fresh, migrated in-memory database that is closed
// when the test ends.
func New(t testing.TB) *database.Store {
	t.Helper()
	return NewWithTimeout(t, 5*time.Second)
}

func NewWithTimeout(t testing.TB, timeout time.Duration) *database.Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=5000",
		name, seq.Add(1))

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.Nop()
	if err := database.NewMigrationService(db, log).RunMigrations(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database.NewStore(db, "sqlite3", timeout, log)
}
