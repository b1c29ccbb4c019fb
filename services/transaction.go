package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/pleader-ai/pleader-backend/repositories"
)

// WithCompensatedTransaction runs fn within a database transaction for work
// that also has effects outside the database, such as writing to the vector
// index. It commits on success and rolls back on error or panic. If fn
// succeeds but the commit fails, undo is called with fn's result so those
// effects can be reverted. undo runs with a context that is not cancelled.
func WithCompensatedTransaction[T any](
	ctx context.Context,
	txMgr repositories.TransactionManager,
	fn func(ctx context.Context, tx repositories.Transaction) (T, error),
	undo func(ctx context.Context, result T),
) (T, error) {
	var result T

	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return result, WrapInternal("failed to begin transaction", err)
	}

	// Rollback on panic, then re-panic
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	result, err = fn(ctx, tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return result, errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return result, err
	}

	if err := tx.Commit(); err != nil {
		if undo != nil {
			undo(context.WithoutCancel(ctx), result)
		}
		return result, WrapInternal("failed to commit transaction", err)
	}

	return result, nil
}
