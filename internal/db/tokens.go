package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenRepository handles spotify_tokens database operations.
type TokenRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves the token row with the given id.
func (r *TokenRepository) Get(ctx context.Context, id int) (*Token, error) {
	query := `
		SELECT id, user_id, access_token, refresh_token, expires_at, token_type, scope, updated_at
		FROM spotify_tokens
		WHERE id = $1
	`
	var token Token
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&token.ID,
		&token.UserID,
		&token.AccessToken,
		&token.RefreshToken,
		&token.ExpiresAt,
		&token.TokenType,
		&token.Scope,
		&token.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}
	return &token, nil
}

// Upsert creates or wholly replaces the token row.
func (r *TokenRepository) Upsert(ctx context.Context, token *Token) error {
	query := `
		INSERT INTO spotify_tokens (id, user_id, access_token, refresh_token, expires_at, token_type, scope, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			updated_at = NOW()
		RETURNING updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		token.ID,
		token.UserID,
		token.AccessToken,
		token.RefreshToken,
		token.ExpiresAt,
		token.TokenType,
		token.Scope,
	).Scan(&token.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting token: %w", err)
	}
	return nil
}

// UpdateAccessToken replaces the access token and expiry, keeping the refresh token.
func (r *TokenRepository) UpdateAccessToken(ctx context.Context, id int, accessToken string, expiresAt time.Time) error {
	query := `
		UPDATE spotify_tokens
		SET access_token = $2, expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, accessToken, expiresAt)
	if err != nil {
		return fmt.Errorf("updating access token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the token row.
func (r *TokenRepository) Delete(ctx context.Context, id int) error {
	query := `DELETE FROM spotify_tokens WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}
