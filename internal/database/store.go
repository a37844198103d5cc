package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"mybank/internal/domain"
	"mybank/pkg/circuitbreaker"
	"mybank/pkg/logger"
	"mybank/pkg/metrics"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}
type opKey struct{}

type txState struct {
	tx          *sql.Tx
	afterCommit []func()
}

// Store is the unit-of-work boundary. Every storage interaction runs inside
// Do or WithTx, which bound it with the operation timeout, route it through
// the circuit breaker and translate infrastructure failures into
// domain.ErrUnavailable.
type Store struct {
	db      *sql.DB
	driver  string
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  logger.Logger
}

func NewStore(db *sql.DB, driverName string, timeout time.Duration, log logger.Logger) *Store {
	s := &Store{
		db:      db,
		driver:  driverName,
		timeout: timeout,
		logger:  log,
	}
	s.breaker = circuitbreaker.New(circuitbreaker.Settings{
		Name:        "database",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(c circuitbreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsInfrastructureError(err)
		},
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.SetCircuitBreakerState(name, int(to))
			log.Warn("Circuit breaker state changed", map[string]interface{}{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})
	return s
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) OperationTimeout() time.Duration {
	return s.timeout
}

func (s *Store) BreakerState() circuitbreaker.State {
	return s.breaker.State()
}

// Conn returns the transaction carried by ctx, or the pool.
func (s *Store) Conn(ctx context.Context) Querier {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		return st.tx
	}
	return s.db
}

// Do runs fn without opening a transaction. Nested calls join the outer operation.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(opKey{}) != nil {
		return fn(ctx)
	}
	return s.run(ctx, "read", fn)
}

// WithTx runs fn inside a transaction carried by the context. Nested calls
// reuse the outer transaction, and only the outermost call commits.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	var state *txState
	err := s.run(ctx, "tx", func(ctx context.Context) (err error) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		state = &txState{tx: tx}

		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
			if err != nil {
				if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
					s.logger.Error("Transaction rollback failed", map[string]interface{}{"error": rbErr.Error()})
				}
			}
		}()

		if err = fn(context.WithValue(ctx, txKey{}, state)); err != nil {
			return err
		}
		if err = tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, hook := range state.afterCommit {
		hook()
	}
	return nil
}

// AfterCommit defers hook until the transaction in ctx commits. Outside a
// transaction the hook runs immediately.
func AfterCommit(ctx context.Context, hook func()) {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		st.afterCommit = append(st.afterCommit, hook)
		return
	}
	hook()
}

func (s *Store) run(ctx context.Context, kind string, fn func(ctx context.Context) error) error {
	start := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	opCtx = context.WithValue(opCtx, opKey{}, kind)

	err := s.breaker.Execute(func() error {
		return fn(opCtx)
	})
	err = s.classify(opCtx, err)

	metrics.RecordStoreOperation(kind, err, time.Since(start))
	return err
}

func (s *Store) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.KindOf(err); ok {
		return err
	}
	if IsInfrastructureError(err) || ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Storage unavailable", map[string]interface{}{"error": err.Error()})
		return domain.Unavailable(err)
	}
	return err
}

// IsInfrastructureError reports failures that say nothing about the request
// itself: timeouts, lost connections, lock contention and an open breaker.
func IsInfrastructureError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrUnavailable) {
		return true
	}
	if _, ok := domain.KindOf(err); ok {
		return false
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, circuitbreaker.ErrOpenState),
		errors.Is(err, circuitbreaker.ErrTooManyRequests),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone):
		return true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := string(pqErr.Code.Class())
		// 08 connection exception, 53 insufficient resources, 57 operator intervention, 40 serialization.
		return class == "08" || class == "53" || class == "57" || class == "40"
	}
	return false
}

// IsUniqueViolation reports a unique constraint failure on either driver.
func IsUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
