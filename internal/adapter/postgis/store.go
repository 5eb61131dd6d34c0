package postgis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paulheiniger/storm-event-leads/internal/config"
)

// Store is a PostGIS-backed spatial store and run log.
type Store struct {
	pool   *pgxpool.Pool
	schema config.Schema
	logger *slog.Logger
}

// New creates a new Store and verifies the connection.
func New(ctx context.Context, dsn string, schema config.Schema, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgis connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgis ping: %w", err)
	}
	return &Store{pool: pool, schema: schema, logger: logger}, nil
}

// Migrate creates the extension and the bookkeeping tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("postgis migrate: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Exists reports whether a table or view called name exists.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, ident(name)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", name, err)
	}
	return exists, nil
}
