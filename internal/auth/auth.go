// Package auth implements the Spotify authorization code and refresh token grants
// and persists the resulting credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/justestif/spotify-now-playing/internal/store"
)

// CallbackPath is appended to the request origin to form the redirect URI.
const CallbackPath = "/callback"

var (
	// ErrMissingCredentials is returned when the client id or secret is not configured.
	ErrMissingCredentials = errors.New("Spotify credentials not configured")

	// ErrMissingCode is returned when an exchange is attempted without a code.
	ErrMissingCode = errors.New("missing authorization code")
)

// Scopes requested during authorization.
var Scopes = []string{
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserReadRecentlyPlayed,
	spotifyauth.ScopeStreaming,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopeUserReadPrivate,
}

// ProviderError is a token endpoint rejection (bad code, revoked refresh token, ...).
type ProviderError struct {
	Op          string // "exchange" or "refresh"
	Status      int
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	switch e.Op {
	case "exchange":
		return "Failed to exchange code for tokens"
	case "refresh":
		return "Failed to refresh access token"
	}
	return fmt.Sprintf("token endpoint error %d: %s", e.Status, e.Code)
}

// Authorizer runs the OAuth grants against the Spotify accounts service.
type Authorizer struct {
	clientID     string
	clientSecret string
	endpoint     oauth2.Endpoint
	store        store.Store
	httpClient   *http.Client
	now          func() time.Time
	logger       *zap.Logger
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithAccountsURL points the authorizer at a different accounts service base URL.
func WithAccountsURL(base string) Option {
	return func(a *Authorizer) {
		base = strings.TrimRight(base, "/")
		a.endpoint = oauth2.Endpoint{
			AuthURL:  base + "/authorize",
			TokenURL: base + "/api/token",
		}
	}
}

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Authorizer) {
		a.httpClient = c
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) {
		a.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Authorizer) {
		a.logger = l
	}
}

// New creates an Authorizer. Missing credentials are reported per call
// with ErrMissingCredentials rather than here.
func New(clientID, clientSecret string, st store.Store, opts ...Option) *Authorizer {
	a := &Authorizer{
		clientID:     clientID,
		clientSecret: clientSecret,
		endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: spotifyauth.TokenURL,
		},
		store:      st,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RedirectURI derives the callback URL from a request origin.
func RedirectURI(origin string) string {
	return strings.TrimRight(origin, "/") + CallbackPath
}

// AuthURL builds the provider authorize URL for the given origin.
// The consent dialog is always shown. No state parameter is sent.
func (a *Authorizer) AuthURL(origin string) (string, error) {
	return a.authCodeURL(origin, "")
}

func (a *Authorizer) authCodeURL(origin, state string) (string, error) {
	cfg, err := a.config(origin)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true")), nil
}

// ExchangeCode trades an authorization code for tokens and stores them.
// origin must match the one used to build the authorize URL.
func (a *Authorizer) ExchangeCode(ctx context.Context, code, origin string) error {
	cfg, err := a.config(origin)
	if err != nil {
		return err
	}
	if code == "" {
		return ErrMissingCode
	}

	tok, err := cfg.Exchange(a.withClient(ctx), code)
	if err != nil {
		return a.providerError("exchange", err)
	}

	rec := &store.TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    a.expiry(tok),
		TokenType:    tok.TokenType,
		Scope:        extraString(tok, "scope"),
	}
	if err := a.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("storing tokens: %w", err)
	}

	a.logger.Info("Tokens stored", zap.Time("expires_at", rec.ExpiresAt), zap.String("scope", rec.Scope))
	return nil
}

// Refresh runs a refresh_token grant. The stored record is not touched.
func (a *Authorizer) Refresh(ctx context.Context, refreshToken string) (accessToken string, expiresAt time.Time, err error) {
	cfg, err := a.config("")
	if err != nil {
		return "", time.Time{}, err
	}

	// A token without an access token is never valid, so Token() always refreshes.
	src := cfg.TokenSource(a.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", time.Time{}, a.providerError("refresh", err)
	}
	return tok.AccessToken, a.expiry(tok), nil
}

// Logout removes the stored credentials.
func (a *Authorizer) Logout(ctx context.Context) error {
	return a.store.Delete(ctx)
}

// CheckCredentials returns ErrMissingCredentials unless both the client id
// and secret are set.
func (a *Authorizer) CheckCredentials() error {
	if a.clientID == "" || a.clientSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

func (a *Authorizer) config(origin string) (*oauth2.Config, error) {
	if err := a.CheckCredentials(); err != nil {
		return nil, err
	}
	cfg := &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		Scopes:       Scopes,
		Endpoint:     a.endpoint,
	}
	cfg.Endpoint.AuthStyle = oauth2.AuthStyleInHeader
	if origin != "" {
		cfg.RedirectURL = RedirectURI(origin)
	}
	return cfg, nil
}

func (a *Authorizer) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// expiry computes now + expires_in with the authorizer's clock, falling back
// to the expiry oauth2 derived itself.
func (a *Authorizer) expiry(tok *oauth2.Token) time.Time {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return a.now().Add(time.Duration(v) * time.Second)
	case string:
		if secs, err := strconv.Atoi(v); err == nil {
			return a.now().Add(time.Duration(secs) * time.Second)
		}
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	return a.now()
}

func (a *Authorizer) providerError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		perr := &ProviderError{
			Op:          op,
			Code:        re.ErrorCode,
			Description: re.ErrorDescription,
		}
		if re.Response != nil {
			perr.Status = re.Response.StatusCode
		}
		a.logger.Warn("Token endpoint rejected request",
			zap.String("op", op),
			zap.Int("status", perr.Status),
			zap.String("error", perr.Code),
			zap.String("description", perr.Description),
		)
		return perr
	}
	return fmt.Errorf("%s token request: %w", op, err)
}

func extraString(tok *oauth2.Token, key string) string {
	if s, ok := tok.Extra(key).(string); ok {
		return s
	}
	return ""
}
