package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
)

// ErrNotInitialized is returned when a transaction is requested on a closed or zero DB.
var ErrNotInitialized = errors.New("sqlite: db is not initialized")

// TxFunc is the unit of work executed inside a transaction.
type TxFunc func(ctx context.Context, tx bun.Tx) error

// WithWriteTx runs fn in one immediate write transaction. Any error from fn
// rolls the whole unit back; nothing fn wrote is visible to other readers
// until fn returns nil and the commit succeeds.
func (db *DB) WithWriteTx(ctx context.Context, fn TxFunc) error {
	if db == nil || db.W == nil {
		return ErrNotInitialized
	}
	return db.W.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
}

// WithReadTx runs fn in a read-only transaction on the reader pool.
func (db *DB) WithReadTx(ctx context.Context, fn TxFunc) error {
	if db == nil || db.R == nil {
		return ErrNotInitialized
	}
	return db.R.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
}
