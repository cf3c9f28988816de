// Package dbtest opens throwaway SQLite databases carrying the API schema so
// repository tests run without a Postgres instance.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/angelmondragon/festpos/pkg/db"
)

var schema = []string{
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price INTEGER NOT NULL,
		display_order INTEGER,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		verified BOOLEAN NOT NULL DEFAULT false,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE sale_records (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		user_id TEXT NOT NULL,
		items TEXT NOT NULL,
		total INTEGER NOT NULL,
		returned_from TEXT UNIQUE,
		provided BOOLEAN NOT NULL DEFAULT false,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		UNIQUE (event_type, aggregate_type, aggregate_id)
	)`,
}

// Open returns a client over a fresh database file in the test's temp dir.
func Open(t testing.TB) *db.Client {
	t.Helper()

	client, err := db.OpenSQLite(filepath.Join(t.TempDir(), "festpos.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	for _, stmt := range schema {
		if err := client.DB().Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return client
}
