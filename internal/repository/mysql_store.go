package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

const (
	mysqlDuplicateEntry   = 1062 // ER_DUP_ENTRY
	mysqlLockWaitTimeout  = 1205 // ER_LOCK_WAIT_TIMEOUT
	mysqlDeadlockDetected = 1213 // ER_LOCK_DEADLOCK
)

// MySQLStore runs units of work as MySQL transactions.  Seat rows are never
// locked up front; lost updates are caught by the version check in
// CompareAndSwap and status-gated updates on bookings and payments.
type MySQLStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMySQLStore returns a store bound to db.  A positive timeout bounds every
// transaction.
func NewMySQLStore(db *sqlx.DB, timeout time.Duration) *MySQLStore {
	return &MySQLStore{db: db, timeout: timeout}
}

// DB exposes the underlying handle for health checks.
func (s *MySQLStore) DB() *sqlx.DB { return s.db }

// WithTx begins a transaction, runs fn and commits.  The transaction is
// rolled back when fn fails or the commit does.  InnoDB deadlocks and lock
// wait timeouts come back as ErrConcurrencyConflict so callers treat them
// like any other lost race.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(ctx, &sqlTx{tx: tx}); err != nil {
		return asConflict(err)
	}
	if err := tx.Commit(); err != nil {
		return asConflict(err)
	}
	committed = true
	return nil
}

// sqlTx implements Tx on top of a *sqlx.Tx.  Its methods live in the
// per-table *_repository.go files.
type sqlTx struct {
	tx *sqlx.Tx
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func isLockFailure(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == mysqlDeadlockDetected || me.Number == mysqlLockWaitTimeout
}

// asConflict tags lock failures with ErrConcurrencyConflict and keeps the
// driver error in the chain.
func asConflict(err error) error {
	if isLockFailure(err) && !errors.Is(err, ErrConcurrencyConflict) {
		return fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
	}
	return err
}

func placeholders(n, width int) string {
	// "(?,?,?),(?,?,?)" for n rows of width columns
	row := make([]byte, 0, 2*width+1)
	row = append(row, '(')
	for i := 0; i < width; i++ {
		if i > 0 {
			row = append(row, ',')
		}
		row = append(row, '?')
	}
	row = append(row, ')')
	out := make([]byte, 0, n*(len(row)+1))
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, row...)
	}
	return string(out)
}
