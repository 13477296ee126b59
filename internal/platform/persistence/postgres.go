package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tamper-evident-ledger/internal/config"
)

// Querier supports database operations for both pool and transactions
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Conn is a Querier that can also open transactions with explicit options.
type Conn interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TxExecutor runs a unit of work inside a transaction. Ledger and audit services depend
// on this rather than on the pool.
type TxExecutor interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	ExecuteLockedSerializableTx(ctx context.Context, lockKey int64, fn func(tx pgx.Tx) error) error
}

var (
	_ Querier    = (*pgxpool.Pool)(nil)
	_ Querier    = (pgx.Tx)(nil)
	_ Conn       = (*pgxpool.Pool)(nil)
	_ TxExecutor = (*PostgresDB)(nil)
)

type PostgresDB struct {
	pool    *pgxpool.Pool
	conn    Conn
	acquire func(ctx context.Context) (session, error)
	logger  *slog.Logger
}

func NewPostgresDB(ctx context.Context, logger *slog.Logger, cfg *config.PostgresConfig) (*PostgresDB, error) {
	if err := RunMigrations(cfg.URL, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL", "max_conns", cfg.MaxConns)

	return &PostgresDB{pool: pool, conn: pool, acquire: acquireFromPool(pool), logger: logger}, nil
}

// NewPostgresDBFromConn wraps an existing connection. Used by tests with pgxmock.
func NewPostgresDBFromConn(logger *slog.Logger, conn Conn) *PostgresDB {
	db := &PostgresDB{conn: conn, acquire: sharedConn(conn), logger: logger}
	if pool, ok := conn.(*pgxpool.Pool); ok {
		db.pool = pool
		db.acquire = acquireFromPool(pool)
	}
	return db
}

func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Querier returns the non-transactional query surface.
func (db *PostgresDB) Querier() Querier {
	return db.conn
}

func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
	db.logger.Info("Closed PostgreSQL connection")
}

// ExecuteTx runs fn in a read-committed transaction, rolling back on error or panic
func (db *PostgresDB) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.ExecuteTxWithOptions(ctx, pgx.TxOptions{}, fn)
}

// ExecuteLockedSerializableTx runs fn at SERIALIZABLE isolation while holding the
// session-level advisory lock lockKey. The lock is taken on a dedicated connection before
// BEGIN, so the transaction snapshot already contains every commit of the previous holder.
// It is released after COMMIT or ROLLBACK. Waiting for the lock blocks until ctx is done.
// A serialization failure is returned unchanged; retrying is the caller's decision.
func (db *PostgresDB) ExecuteLockedSerializableTx(ctx context.Context, lockKey int64, fn func(tx pgx.Tx) error) error {
	s, err := db.acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	if _, err := s.Exec(ctx, advisoryLockQuery, lockKey); err != nil {
		s.release(true)
		return fmt.Errorf("failed to acquire advisory lock %d: %w", lockKey, err)
	}
	defer func() {
		// ctx may already be done here; the lock must still be given back
		_, unlockErr := s.Exec(context.WithoutCancel(ctx), advisoryUnlockQuery, lockKey)
		if unlockErr != nil {
			db.logger.Error("Failed to release advisory lock, discarding connection", "lock_key", lockKey, "error", unlockErr)
		}
		s.release(unlockErr != nil)
	}()

	return runTx(ctx, db.logger, s, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
}

func (db *PostgresDB) ExecuteTxWithOptions(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	return runTx(ctx, db.logger, db.conn, opts, fn)
}

func runTx(ctx context.Context, logger *slog.Logger, conn Conn, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Error("Failed to roll back transaction", "isolation", opts.IsoLevel, "error", rbErr)
			return fmt.Errorf("tx err: %w, rb err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const advisoryXactLockQuery = `SELECT pg_advisory_xact_lock($1)`

// AcquireAdvisoryXactLock blocks until the transaction-scoped advisory lock identified by
// key is held. The lock is released when the surrounding transaction ends.
func AcquireAdvisoryXactLock(ctx context.Context, q Querier, key int64) error {
	if _, err := q.Exec(ctx, advisoryXactLockQuery, key); err != nil {
		return fmt.Errorf("failed to acquire advisory lock %d: %w", key, err)
	}
	return nil
}
