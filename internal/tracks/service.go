// Package tracks fetches the currently playing track for the stored Spotify account,
// refreshing the access token when it has expired.
package tracks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/spotify-now-playing/internal/spotify"
	"github.com/justestif/spotify-now-playing/internal/store"
)

// ErrNotConnected is returned when no credentials have been stored yet.
var ErrNotConnected = errors.New("Spotify not connected")

// Refresher runs a refresh_token grant.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken string, expiresAt time.Time, err error)
}

// Service fetches the currently playing track.
//
// The Service is the only writer of refreshed tokens in the process: refreshes
// are serialized and the record is re-read under the lock, so overlapping
// fetches trigger at most one refresh per expiry.
type Service struct {
	store      store.Store
	refresher  Refresher
	apiURL     string
	httpClient *http.Client
	fallback   bool
	now        func() time.Time
	logger     *zap.Logger

	refreshMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithAPIURL sets the Web API base URL.
func WithAPIURL(u string) Option {
	return func(s *Service) {
		s.apiURL = u
	}
}

// WithHTTPClient sets the base HTTP client for Web API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		s.httpClient = c
	}
}

// WithRefreshFallback controls what happens when a refresh fails. When true
// (the default) the stale access token is used anyway and the provider call
// will most likely fail with an auth error. When false the refresh error is returned.
func WithRefreshFallback(enabled bool) Option {
	return func(s *Service) {
		s.fallback = enabled
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a Service.
func NewService(st store.Store, refresher Refresher, opts ...Option) *Service {
	s := &Service{
		store:     st,
		refresher: refresher,
		fallback:  true,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchCurrentTrack loads the stored credentials, refreshes them if expired and
// returns the normalized currently playing state.
func (s *Service) FetchCurrentTrack(ctx context.Context) (*spotify.CurrentTrack, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	accessToken := rec.AccessToken
	if rec.Expired(s.now()) {
		accessToken, err = s.refresh(ctx)
		if err != nil {
			return nil, err
		}
	}

	client := spotify.NewWithToken(s.httpClient, accessToken, s.apiURL)
	current, err := client.CurrentlyPlaying(ctx)
	if err != nil {
		s.logger.Error("Fetching currently playing failed", zap.Error(err))
		return nil, err
	}
	return current, nil
}

func (s *Service) load(ctx context.Context) (*store.TokenRecord, error) {
	rec, err := s.store.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("loading tokens: %w", err)
	}
	return rec, nil
}

// refresh returns a usable access token, refreshing the stored one if it is
// still expired once the lock is held.
func (s *Service) refresh(ctx context.Context) (string, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	rec, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	if !rec.Expired(s.now()) {
		// Another fetch refreshed while we waited.
		return rec.AccessToken, nil
	}

	accessToken, expiresAt, err := s.refresher.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		if s.fallback {
			s.logger.Warn("Token refresh failed, using stored access token", zap.Error(err))
			return rec.AccessToken, nil
		}
		return "", fmt.Errorf("refreshing access token: %w", err)
	}

	if err := s.store.UpdateAccessToken(ctx, accessToken, expiresAt); err != nil {
		// The new token is still good for this request.
		s.logger.Error("Storing refreshed token failed", zap.Error(err))
		return accessToken, nil
	}

	s.logger.Info("Access token refreshed", zap.Time("expires_at", expiresAt))
	return accessToken, nil
}
