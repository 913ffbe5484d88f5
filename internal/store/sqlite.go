package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS spotify_tokens (
    id            INTEGER PRIMARY KEY,
    user_id       TEXT      NOT NULL,
    access_token  TEXT      NOT NULL,
    refresh_token TEXT      NOT NULL,
    expires_at    TIMESTAMP NOT NULL,
    token_type    TEXT      NOT NULL DEFAULT 'Bearer',
    scope         TEXT      NOT NULL DEFAULT '',
    updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteStore keeps the record in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// The path can be ":memory:" for an in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writes.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: conn}, nil
}

// Load retrieves the token row, or ErrNotFound if none exists.
func (s *SQLiteStore) Load(ctx context.Context) (*TokenRecord, error) {
	query := `
		SELECT id, user_id, access_token, refresh_token, expires_at, token_type, scope
		FROM spotify_tokens
		WHERE id = ?
	`
	var (
		rec    TokenRecord
		userID string
	)
	err := s.db.QueryRowContext(ctx, query, RecordID).Scan(
		&rec.ID,
		&userID,
		&rec.AccessToken,
		&rec.RefreshToken,
		&rec.ExpiresAt,
		&rec.TokenType,
		&rec.Scope,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}

	rec.UserID, err = uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("parsing user id: %w", err)
	}
	return &rec, nil
}

// Save upserts the token row.
func (s *SQLiteStore) Save(ctx context.Context, rec *TokenRecord) error {
	rec, err := pinned(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO spotify_tokens (id, user_id, access_token, refresh_token, expires_at, token_type, scope, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			token_type = excluded.token_type,
			scope = excluded.scope,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID.String(),
		rec.AccessToken,
		rec.RefreshToken,
		rec.ExpiresAt,
		rec.TokenType,
		rec.Scope,
	)
	if err != nil {
		return fmt.Errorf("upserting token: %w", err)
	}
	return nil
}

// UpdateAccessToken sets a new access token and expiry on the existing row.
func (s *SQLiteStore) UpdateAccessToken(ctx context.Context, accessToken string, expiresAt time.Time) error {
	query := `
		UPDATE spotify_tokens
		SET access_token = ?, expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, accessToken, expiresAt, RecordID)
	if err != nil {
		return fmt.Errorf("updating access token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating access token: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the token row.
func (s *SQLiteStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM spotify_tokens WHERE id = ?`, RecordID); err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
