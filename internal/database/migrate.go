package database

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed migrations/001_session_kv.up.sql
var sessionKVSQL string

func (db *DB) EnsureSchema(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	exists, err := db.hasSessionTable(ctx)
	if err != nil {
		return fmt.Errorf("check session table: %w", err)
	}
	if exists {
		return nil
	}

	slog.Info("session table missing; applying migration")
	if _, err := db.Pool.Exec(ctx, sessionKVSQL); err != nil {
		return fmt.Errorf("apply session migration: %w", err)
	}

	slog.Info("session schema ensured")
	return nil
}

func (db *DB) hasSessionTable(ctx context.Context) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema()
			  AND table_name = 'session_kv'
		)
	`).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}
