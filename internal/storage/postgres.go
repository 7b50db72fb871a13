package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists keys in the session_kv table created by
// database.EnsureSchema.
type PostgresStore struct {
	pool      *pgxpool.Pool
	namespace string
}

func NewPostgresStore(pool *pgxpool.Pool, namespace string) *PostgresStore {
	return &PostgresStore{pool: pool, namespace: normalizeNamespace(namespace)}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM session_kv WHERE namespace = $1 AND key = $2`,
		s.namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_kv (namespace, key, value, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		s.namespace, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM session_kv WHERE namespace = $1 AND key = $2`, s.namespace, key)
	if err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}
