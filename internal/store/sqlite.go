package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Gateway on a single kv table. The version
// column backs CompareAndSet: updates are guarded by WHERE version = ?
// and creates by the primary key, so concurrent writers cannot clobber
// each other.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    namespace TEXT NOT NULL,
    key TEXT NOT NULL,
    value BLOB NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
    PRIMARY KEY (namespace, key)
);

CREATE INDEX IF NOT EXISTS idx_kv_namespace ON kv(namespace);
`

func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, ns Namespace, key string) ([]byte, uint64, error) {
	var value []byte
	var version uint64

	err := s.db.QueryRowContext(ctx,
		`SELECT value, version FROM kv WHERE namespace = ? AND key = ?`,
		string(ns), key,
	).Scan(&value, &version)

	if err == sql.ErrNoRows {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get %s/%s: %w", ns, key, err)
	}

	return value, version, nil
}

func (s *SQLiteStore) Set(ctx context.Context, ns Namespace, key string, value []byte) error {
	now := time.Now().Unix()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (namespace, key, value, version, updated_at)
		 VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT(namespace, key)
		 DO UPDATE SET value = excluded.value, version = kv.version + 1, updated_at = excluded.updated_at`,
		string(ns), key, value, now,
	)
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", ns, key, err)
	}

	return nil
}

func (s *SQLiteStore) CompareAndSet(ctx context.Context, ns Namespace, key string, value []byte, version uint64) error {
	now := time.Now().Unix()

	var result sql.Result
	var err error

	if version == 0 {
		result, err = s.db.ExecContext(ctx,
			`INSERT INTO kv (namespace, key, value, version, updated_at)
			 VALUES (?, ?, ?, 1, ?)
			 ON CONFLICT(namespace, key) DO NOTHING`,
			string(ns), key, value, now,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE kv SET value = ?, version = version + 1, updated_at = ?
			 WHERE namespace = ? AND key = ? AND version = ?`,
			value, now, string(ns), key, version,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to compare-and-set %s/%s: %w", ns, key, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrConflict
	}

	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, ns Namespace, key string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE namespace = ? AND key = ?`,
		string(ns), key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", ns, key, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLiteStore) List(ctx context.Context, ns Namespace) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE namespace = ?`,
		string(ns),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", ns, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out[key] = value
	}

	return out, rows.Err()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}
