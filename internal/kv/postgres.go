package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"commodity-price-alerts/internal/config"
)

const (
	pgSchemaSQL = `CREATE TABLE IF NOT EXISTS kv_blobs (
        key        TEXT PRIMARY KEY,
        value      BYTEA NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	pgGetSQL = `SELECT value FROM kv_blobs WHERE key = $1;`

	pgSetSQL = `INSERT INTO kv_blobs (key, value, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (key) DO UPDATE
    SET value      = EXCLUDED.value,
        updated_at = EXCLUDED.updated_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Postgres stores blobs in a PostgreSQL table.
type Postgres struct {
	pool    *pgxpool.Pool
	lockKey int64
}

// NewPostgres wires a pgx pool into a Postgres store and ensures the table
// exists. lockKey identifies the writer advisory lock.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, lockKey int64) (*Postgres, error) {
	p := &Postgres{pool: pool, lockKey: lockKey}
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchemaSQL); err != nil {
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return p, nil
}

func (p *Postgres) getPool() (*pgxpool.Pool, error) {
	if p == nil || p.pool == nil {
		return nil, ErrNotConfigured
	}
	return p.pool, nil
}

// Get returns the blob stored under key.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}
	var value []byte
	if scanErr := pool.QueryRow(ctx, pgGetSQL, key).Scan(&value); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %q: %w", key, scanErr)
	}
	return value, nil
}

// Set replaces the blob stored under key.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, pgSetSQL, key, value); execErr != nil {
		return fmt.Errorf("set %q: %w", key, execErr)
	}
	return nil
}

// TryLock attempts the writer advisory lock on a dedicated connection, which
// is held until release.
func (p *Postgres) TryLock(ctx context.Context) (func(), error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, p.lockKey).Scan(&acquired); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, ErrLocked
	}

	release := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// closing the connection drops the lock if the unlock fails
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, p.lockKey); err != nil {
			conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return release, nil
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	return nil
}

var (
	_ Store  = (*Postgres)(nil)
	_ Locker = (*Postgres)(nil)
)
