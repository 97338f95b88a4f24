package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"solana-pump-tracker/internal/storage"
)

// Pool size bounds match the upstream deployment profile.
const (
	poolMinConns = 1
	poolMaxConns = 10
)

// Pool wraps pgxpool.Pool and supports swapping the underlying pool when
// the DSN changes at runtime. Stores hold the wrapper, never the inner pool.
type Pool struct {
	mu   sync.RWMutex
	pool *pgxpool.Pool
}

// NewPool creates a new Postgres connection pool and verifies it with a ping.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	pool, err := open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Pool{pool: pool}, nil
}

// NewIdlePool creates a wrapper with no underlying pool. Every query returns
// ErrUnavailable until the first successful Reconnect. Lets stores and HTTP
// handlers be wired before the database is reachable.
func NewIdlePool() *Pool {
	return &Pool{}
}

func open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	config.MinConns = poolMinConns
	config.MaxConns = poolMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// Reconnect dials a fresh pool for the given DSN and swaps it in. The old
// pool keeps serving queries until the new one is verified, then is closed.
func (p *Pool) Reconnect(ctx context.Context, dsn string) error {
	fresh, err := open(ctx, dsn)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.pool
	p.pool = fresh
	p.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// Close closes the connection pool. Calls after Close return ErrUnavailable.
func (p *Pool) Close() {
	p.mu.Lock()
	pool := p.pool
	p.pool = nil
	p.mu.Unlock()

	if pool != nil {
		pool.Close()
	}
}

func (p *Pool) current() (*pgxpool.Pool, error) {
	p.mu.RLock()
	pool := p.pool
	p.mu.RUnlock()
	if pool == nil {
		return nil, storage.ErrUnavailable
	}
	return pool, nil
}

// Exec runs a statement on the current pool.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	pool, err := p.current()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return pool.Exec(ctx, sql, args...)
}

// Query runs a query on the current pool.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool, err := p.current()
	if err != nil {
		return nil, err
	}
	return pool.Query(ctx, sql, args...)
}

// QueryRow runs a single-row query on the current pool.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	pool, err := p.current()
	if err != nil {
		return errRow{err: err}
	}
	return pool.QueryRow(ctx, sql, args...)
}

// Begin opens a transaction on the current pool.
func (p *Pool) Begin(ctx context.Context) (pgx.Tx, error) {
	pool, err := p.current()
	if err != nil {
		return nil, err
	}
	return pool.Begin(ctx)
}

// Ping reports whether the current pool is reachable.
func (p *Pool) Ping(ctx context.Context) error {
	pool, err := p.current()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// errRow satisfies pgx.Row while the pool is unavailable.
type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	// Use pgconn.PgError for reliable error code detection
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}
