package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	location   TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_location ON artifacts(location);
`

// SQLiteStore persists artifacts in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed initializes) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize artifact schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Read implements Store.
func (s *SQLiteStore) Read(ctx context.Context, id string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM artifacts WHERE id = ?`, id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("artifact %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read artifact %s: %w", id, err)
	}
	return content, nil
}

// Write implements Store.
func (s *SQLiteStore) Write(ctx context.Context, name, content, location string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, name, location, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, location, content, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	return id, nil
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, id, content, kind string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE artifacts SET content = ?, kind = ?, updated_at = ? WHERE id = ?`,
		content, kind, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update artifact %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update artifact %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("artifact %s: %w", id, ErrNotFound)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
