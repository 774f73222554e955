package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"simpellab-backend/internal/platform/apperr"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Runner abstracts transaction execution so services can be tested without a
// live database.
type Runner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}

type sqlRunner struct{ db *sql.DB }

func NewRunner(conn *sql.DB) Runner { return sqlRunner{db: conn} }

func (r sqlRunner) InTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return RunInTx(ctx, r.db, nil, fn)
}

// RunInTx opens a transaction and runs fn. COMMIT on nil, ROLLBACK on error.
// Lock waits and deadlocks come back as a retryable UNAVAILABLE error.
func RunInTx(ctx context.Context, conn *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return translate(err)
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return translate(err)
	}
	if err := tx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

func ReadOnly(ctx context.Context, conn *sql.DB, fn func(ctx context.Context, tx DBTX) error) error {
	return RunInTx(ctx, conn, &sql.TxOptions{ReadOnly: true}, fn)
}

func translate(err error) error {
	if IsRetryable(err) {
		return apperr.Unavailable("transaction aborted, retry the operation: " + err.Error())
	}
	return err
}

// IsDuplicate reports a unique-key violation (MySQL 1062).
func IsDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// IsRetryable reports lock wait timeout (1205) or deadlock (1213).
func IsRetryable(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == 1205 || me.Number == 1213
}
