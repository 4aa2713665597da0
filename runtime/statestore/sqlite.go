package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver.
)

// SQLiteStore keeps drafts in a local SQLite file so they survive restarts
// of the CLI without a Redis server.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create draft directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS drafts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_drafts_user ON drafts(user_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate drafts: %w", err)
		}
	}
	return nil
}

// SaveDraft inserts or replaces the draft.
func (s *SQLiteStore) SaveDraft(ctx context.Context, draft *Draft) error {
	if err := validate(draft); err != nil {
		return err
	}
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drafts (id, user_id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		draft.ID(),
		draft.UserID(),
		string(data),
		draft.CreatedAt.UnixNano(),
		draft.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite upsert failed: %w", err)
	}
	return nil
}

// LoadDraft retrieves a draft by session ID.
func (s *SQLiteStore) LoadDraft(ctx context.Context, id string) (*Draft, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM drafts WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite select failed: %w", err)
	}
	return decodeDraft(data)
}

// DeleteDraft removes a draft.
func (s *SQLiteStore) DeleteDraft(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite delete failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite delete failed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDrafts returns the drafts owned by userID, oldest first.
func (s *SQLiteStore) ListDrafts(ctx context.Context, userID string) ([]*Draft, error) {
	query := `SELECT data FROM drafts ORDER BY created_at, id`
	args := []any{}
	if userID != "" {
		query = `SELECT data FROM drafts WHERE user_id = ? ORDER BY created_at, id`
		args = append(args, userID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query failed: %w", err)
	}
	defer rows.Close()

	drafts := []*Draft{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan failed: %w", err)
		}
		d, err := decodeDraft(data)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite rows failed: %w", err)
	}
	return drafts, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeDraft(data string) (*Draft, error) {
	var d Draft
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &d, nil
}
