// Package store persists the single Spotify credential record.
//
// There is exactly one record per deployment: every write targets RecordID
// and the nil-UUID owner. Stores are last-write-wins; callers that refresh
// tokens serialize their writes (see tracks.Service).
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordID is the fixed primary key of the credential record.
const RecordID = 1

// OwnerID is the fixed owner of the credential record. The system is single-user.
var OwnerID = uuid.Nil

// ErrNotFound is returned by Load when no credential record exists.
var ErrNotFound = errors.New("token record not found")

// TokenRecord is the persisted OAuth credential set.
type TokenRecord struct {
	ID           int       `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
}

// Expired reports whether the access token expired at or before now.
func (r *TokenRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Store is the singleton credential store.
type Store interface {
	// Load returns the record, or ErrNotFound.
	Load(ctx context.Context) (*TokenRecord, error)
	// Save upserts the whole record. ID and UserID are forced to the fixed values.
	Save(ctx context.Context, rec *TokenRecord) error
	// UpdateAccessToken replaces the access token and expiry only.
	UpdateAccessToken(ctx context.Context, accessToken string, expiresAt time.Time) error
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context) error
	Close() error
}

// pinned returns a copy of rec carrying the singleton key. The caller's
// record is left as is.
func pinned(rec *TokenRecord) (*TokenRecord, error) {
	if rec == nil {
		return nil, errors.New("cannot save nil token record")
	}
	cp := *rec
	cp.ID = RecordID
	cp.UserID = OwnerID
	return &cp, nil
}

// Open returns the Store selected by dsn:
//
//	""                       JSON file in the user config dir
//	memory://                in-process
//	json://<path>            JSON file at path
//	sqlite://<path>          SQLite database at path
//	postgres://, postgresql:// PostgreSQL
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "":
		return DefaultFileStore()
	case dsn == "memory://" || dsn == "memory":
		return NewMemoryStore(), nil
	case strings.HasPrefix(dsn, "json://"):
		return NewFileStore(strings.TrimPrefix(dsn, "json://")), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", dsn)
	}
}
