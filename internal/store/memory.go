package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	mu  sync.RWMutex
	rec *TokenRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the record.
func (s *MemoryStore) Load(_ context.Context) (*TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.rec == nil {
		return nil, ErrNotFound
	}
	rec := *s.rec
	return &rec, nil
}

// Save replaces the record.
func (s *MemoryStore) Save(_ context.Context, rec *TokenRecord) error {
	rec, err := pinned(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()
	return nil
}

// UpdateAccessToken replaces the access token and expiry.
func (s *MemoryStore) UpdateAccessToken(_ context.Context, accessToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec == nil {
		return ErrNotFound
	}
	s.rec.AccessToken = accessToken
	s.rec.ExpiresAt = expiresAt
	return nil
}

// Delete clears the record.
func (s *MemoryStore) Delete(_ context.Context) error {
	s.mu.Lock()
	s.rec = nil
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
