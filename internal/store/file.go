package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	configDirName = "spotify-now-playing"
	tokenFileName = "token.json"
)

// FileStore keeps the record as a JSON file readable only by the owner.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// DefaultFileStore returns a FileStore using the default location:
// ~/.config/spotify-now-playing/token.json
func DefaultFileStore() (*FileStore, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("getting user config dir: %w", err)
	}

	return NewFileStore(filepath.Join(configDir, configDirName, tokenFileName)), nil
}

// NewFileStore creates a FileStore with a custom path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file path where the record is stored.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the record from disk.
func (s *FileStore) Load(_ context.Context) (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Save writes the record to disk, creating the parent directory if needed.
func (s *FileStore) Save(_ context.Context, rec *TokenRecord) error {
	rec, err := pinned(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(rec)
}

// UpdateAccessToken rewrites the file with a new access token and expiry.
func (s *FileStore) UpdateAccessToken(_ context.Context, accessToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil {
		return err
	}
	rec.AccessToken = accessToken
	rec.ExpiresAt = expiresAt
	return s.write(rec)
}

// Delete removes the token file.
// Returns nil if the file does not exist.
func (s *FileStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) read() (*TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing token file: %w", err)
	}
	return &rec, nil
}

func (s *FileStore) write(rec *TokenRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token record: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}
