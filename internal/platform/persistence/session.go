package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	advisoryLockQuery   = `SELECT pg_advisory_lock($1)`
	advisoryUnlockQuery = `SELECT pg_advisory_unlock($1)`
)

// session is one connection kept for a whole unit of work, so that session-level
// state such as an advisory lock outlives the transaction run on it.
type session interface {
	Conn
	// release hands the connection back. A discarded connection is closed first, which
	// also drops any lock it still holds.
	release(discard bool)
}

type poolSession struct {
	conn *pgxpool.Conn
}

func acquireFromPool(pool *pgxpool.Pool) func(ctx context.Context) (session, error) {
	return func(ctx context.Context) (session, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return poolSession{conn: conn}, nil
	}
}

func (s poolSession) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return s.conn.Exec(ctx, sql, args...)
}

func (s poolSession) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return s.conn.Query(ctx, sql, args...)
}

func (s poolSession) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return s.conn.QueryRow(ctx, sql, args...)
}

func (s poolSession) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	return s.conn.BeginTx(ctx, opts)
}

func (s poolSession) release(discard bool) {
	if discard {
		_ = s.conn.Conn().Close(context.Background())
	}
	s.conn.Release()
}

// sharedConn serves every session from one connection. Used when the database is built
// from a single Conn, as in tests.
func sharedConn(conn Conn) func(ctx context.Context) (session, error) {
	return func(context.Context) (session, error) {
		return sharedSession{Conn: conn}, nil
	}
}

type sharedSession struct {
	Conn
}

func (sharedSession) release(bool) {}
