package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Finisher is the part of a transaction InTx needs to end it.
type Finisher interface {
	Commit() error
	Rollback() error
}

// Run executes fn against queries bound to a new *sql.Tx on db.
func Run[Q any](
	ctx context.Context,
	db *sql.DB,
	newQueries func(*sql.Tx) Q,
	fn func(q Q) error,
) error {
	begin := func(ctx context.Context) (*sql.Tx, error) {
		return db.BeginTx(ctx, nil)
	}
	return InTx(ctx, begin, newQueries, fn)
}

// InTx begins a transaction, hands fn the queries bound to it and commits
// when fn succeeds. A failing or panicking fn rolls the transaction back; a
// panic is re-raised after the rollback.
func InTx[T Finisher, Q any](
	ctx context.Context,
	begin func(context.Context) (T, error),
	newQueries func(T) Q,
	fn func(q Q) error,
) (err error) {
	tx, err := begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			log.Warn().Err(rerr).Msg("tx rollback failed")
			if err != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
			}
		}
	}()

	if err = fn(newQueries(tx)); err != nil {
		return err
	}
	committed = true
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
