package service

import (
	"context"
	"time"

	"github.com/grocerydist/routeledger/internal/database"
	"github.com/jackc/pgx/v5"
)

// DefaultStoreTimeout bounds each service operation when none is configured.
const DefaultStoreTimeout = 5 * time.Second

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool is a TxBeginner that can also serve reads outside a transaction.
// Satisfied by *pgxpool.Pool.
type Pool interface {
	TxBeginner
	database.DBTX
}

func boundedContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// inTx runs fn inside one transaction and commits when fn succeeds.
func inTx(ctx context.Context, pool TxBeginner, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit tx", err)
	}
	return nil
}
