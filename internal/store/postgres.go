package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justestif/spotify-now-playing/internal/db"
)

// PostgresStore keeps the record in the spotify_tokens table.
type PostgresStore struct {
	database *db.DB
}

// OpenPostgres connects to PostgreSQL and applies the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	database, err := db.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return NewPostgresStore(database), nil
}

// NewPostgresStore wraps an open database.
func NewPostgresStore(database *db.DB) *PostgresStore {
	return &PostgresStore{database: database}
}

// Load retrieves the token row, or ErrNotFound if none exists.
func (s *PostgresStore) Load(ctx context.Context) (*TokenRecord, error) {
	t, err := s.database.Tokens().Get(ctx, RecordID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &TokenRecord{
		ID:           t.ID,
		UserID:       t.UserID,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
		TokenType:    t.TokenType,
		Scope:        t.Scope,
	}, nil
}

// Save upserts the token row.
func (s *PostgresStore) Save(ctx context.Context, rec *TokenRecord) error {
	rec, err := pinned(rec)
	if err != nil {
		return err
	}
	return s.database.Tokens().Upsert(ctx, &db.Token{
		ID:           rec.ID,
		UserID:       rec.UserID,
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    rec.ExpiresAt,
		TokenType:    rec.TokenType,
		Scope:        rec.Scope,
	})
}

// UpdateAccessToken sets a new access token and expiry on the existing row.
func (s *PostgresStore) UpdateAccessToken(ctx context.Context, accessToken string, expiresAt time.Time) error {
	err := s.database.Tokens().UpdateAccessToken(ctx, RecordID, accessToken, expiresAt)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Delete removes the token row.
func (s *PostgresStore) Delete(ctx context.Context) error {
	return s.database.Tokens().Delete(ctx, RecordID)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.database.Close()
	return nil
}
