package db

import (
	"time"

	"github.com/google/uuid"
)

// Token is a row of the spotify_tokens table.
type Token struct {
	ID           int
	UserID       uuid.UUID
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	TokenType    string
	Scope        string
	UpdatedAt    time.Time
}
