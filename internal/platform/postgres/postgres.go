package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"domainintel/internal/platform/migrations"
)

// DB holds the pgx pool and a database/sql handle backed by it.
type DB struct {
	Pool *pgxpool.Pool
	SQL  *sql.DB
}

// Connect opens a pool, pings it, and applies pending migrations.
func Connect(ctx context.Context, url string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := &DB{Pool: pool, SQL: stdlib.OpenDBFromPool(pool)}
	if _, err := migrations.Up(ctx, db.SQL, goose.DialectPostgres); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() {
	_ = db.SQL.Close()
	db.Pool.Close()
}
