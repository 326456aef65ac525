package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TxFunc is the body of a transaction. exec must be passed to every repository call
// made inside it; the in-memory store passes nil.
type TxFunc func(ctx context.Context, exec SQLExecutor) error

// Transactor runs a block of repository calls atomically.
type Transactor interface {
	WithinTx(ctx context.Context, fn TxFunc) error
	// WithinTournament also serializes the block against every other writer of the same tournament.
	WithinTournament(ctx context.Context, tournamentID int, fn TxFunc) error
}

type postgresTransactor struct {
	db *sql.DB
}

func NewPostgresTransactor(db *sql.DB) Transactor {
	return &postgresTransactor{db: db}
}

func (t *postgresTransactor) WithinTx(ctx context.Context, fn TxFunc) error {
	return t.run(ctx, nil, fn)
}

func (t *postgresTransactor) WithinTournament(ctx context.Context, tournamentID int, fn TxFunc) error {
	return t.run(ctx, &tournamentID, fn)
}

func (t *postgresTransactor) run(ctx context.Context, lockKey *int, fn TxFunc) (err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			}
		} else {
			if commitErr := tx.Commit(); commitErr != nil {
				err = fmt.Errorf("failed to commit transaction: %w", commitErr)
			}
		}
	}()

	if lockKey != nil {
		// Снимается автоматически при COMMIT/ROLLBACK.
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(*lockKey)); err != nil {
			return fmt.Errorf("failed to lock tournament %d: %w", *lockKey, err)
		}
	}

	err = fn(ctx, tx)
	return err
}
