// Package postgres implements the querier interfaces of the document, chat,
// and settings packages on top of pgx.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx, letting the same
// queries run pooled or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries bundles all database operations.
type Queries struct {
	db DBTX
}

// New creates a Queries instance over a pool, connection, or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// withTx returns a copy bound to the transaction.
func (q *Queries) withTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
