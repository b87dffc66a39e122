package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/redclawsec/redclaw/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS discoveries (
    target     TEXT        NOT NULL,
    category   TEXT        NOT NULL,
    key        TEXT        NOT NULL,
    value      TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (target, category, key)
)`

const upsertSQL = `
INSERT INTO discoveries (target, category, key, value, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (target, category, key) DO UPDATE SET value = EXCLUDED.value`

const selectSQL = `
SELECT category, key, value FROM discoveries
WHERE target = $1
ORDER BY category, key
LIMIT $2`

// PostgresStore persists discoveries in a discoveries table.
type PostgresStore struct {
	pool   DBPool
	logger *zap.Logger
}

// NewPostgresStore connects a pool from the DSN and ensures the schema.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	store, err := NewPostgresStoreWithPool(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithPool wires the store over an existing pool. The
// database must be reachable.
func NewPostgresStoreWithPool(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s := &PostgresStore{
		pool:   pool,
		logger: logger.Named("knowledge.postgres"),
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensuring discoveries schema: %w", err)
	}
	return nil
}

// Record upserts one discovery.
func (s *PostgresStore) Record(ctx context.Context, rec schemas.DiscoveryRecord) error {
	if rec.Target == "" {
		return fmt.Errorf("discovery record requires a target")
	}
	_, err := s.pool.Exec(ctx, upsertSQL,
		rec.Target, rec.Category, rec.Key, rec.Value, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("recording discovery: %w", err)
	}
	return nil
}

// RetrieveRelevant renders the target's stored discoveries as a text block.
func (s *PostgresStore) RetrieveRelevant(ctx context.Context, target string) (string, error) {
	rows, err := s.pool.Query(ctx, selectSQL, target, retrieveCap)
	if err != nil {
		return "", fmt.Errorf("querying discoveries: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var category, key, value string
		if err := rows.Scan(&category, &key, &value); err != nil {
			return "", fmt.Errorf("scanning discovery row: %w", err)
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", category, key, value)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating discovery rows: %w", err)
	}
	return b.String(), nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
