// Package storage provides the SQLite-backed key-value store that backs the
// "kv" host capability. Values are namespaced per plugin so no plugin can
// read or overwrite another plugin's data.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite database holding plugin key-value data.
//
// The handle is safe for concurrent use across host-function invocations
// originating from different plugins.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS plugin_storage (
	plugin_id  TEXT NOT NULL,
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (plugin_id, collection, key)
);
`

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for an ephemeral store.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set upserts a value for (pluginID, collection, key). The value must be a
// JSON document; the host function validates this before calling Set.
func (s *Store) Set(ctx context.Context, pluginID, collection, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plugin_storage (plugin_id, collection, key, data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (plugin_id, collection, key)
		DO UPDATE SET data = excluded.data, created_at = excluded.created_at`,
		pluginID, collection, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store value for plugin %q: %w", pluginID, err)
	}
	return nil
}

// Get retrieves the value for (pluginID, collection, key). The second return
// reports whether a value was present.
func (s *Store) Get(ctx context.Context, pluginID, collection, key string) (string, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM plugin_storage
		WHERE plugin_id = ? AND collection = ? AND key = ?`,
		pluginID, collection, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read value for plugin %q: %w", pluginID, err)
	}
	return data, true, nil
}
