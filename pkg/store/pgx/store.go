// Package pgx stores record summaries, composition embeddings and build jobs
// in Postgres with pgvector.
package pgx

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"proteinshake/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	conn dbConn
}

type NewStoreParams struct {
	DatabaseURL string
	// Migrate applies the embedded migrations before connecting.
	Migrate bool
}

// NewStore connects a pool with the vector types registered on every
// connection. The caller closes the returned pool.
func NewStore(ctx context.Context, params NewStoreParams) (*Store, *pgxpool.Pool, error) {
	if params.Migrate {
		if err := Migrate(params.DatabaseURL); err != nil {
			return nil, nil, err
		}
	}

	cfg, err := pgxpool.ParseConfig(params.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{conn: pool}, pool, nil
}

// Migrate brings the schema to the latest embedded version.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Debug("[Store] Schema migrated", "version", version, "dirty", dirty)
	return nil
}
