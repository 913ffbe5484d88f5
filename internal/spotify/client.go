// Package spotify provides a wrapper around the Spotify Web API player endpoints.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// ErrProviderAPI is returned when the currently-playing endpoint answers with
// anything other than 200 or 204.
var ErrProviderAPI = errors.New("Failed to get currently playing track")

const defaultTimeout = 10 * time.Second

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api    *spotify.Client
	status *statusRecorder
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client) *Client {
	return &Client{api: api}
}

// NewWithToken creates a client that presents accessToken as a bearer token
// and never refreshes it. base may be nil; apiURL may be empty for the public API.
func NewWithToken(base *http.Client, accessToken, apiURL string) *Client {
	var transport http.RoundTripper
	timeout := defaultTimeout
	if base != nil {
		transport = base.Transport
		if base.Timeout > 0 {
			timeout = base.Timeout
		}
	}

	recorder := &statusRecorder{base: transport}
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   recorder,
		},
	}

	var opts []spotify.ClientOption
	if apiURL != "" {
		opts = append(opts, spotify.WithBaseURL(apiURL))
	}
	c := New(spotify.New(httpClient, opts...))
	c.status = recorder
	return c
}

// CurrentlyPlaying fetches and normalizes the user's currently playing item.
func (c *Client) CurrentlyPlaying(ctx context.Context) (*CurrentTrack, error) {
	cp, err := c.api.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		if status, ok := c.apiStatus(err); ok {
			return nil, fmt.Errorf("%w: status %d: %v", ErrProviderAPI, status, err)
		}
		return nil, fmt.Errorf("fetching currently playing: %w", err)
	}
	if c.status != nil && c.status.last() == http.StatusNoContent {
		return &CurrentTrack{IsPlaying: false}, nil
	}
	return Normalize(cp), nil
}

// apiStatus extracts the HTTP status of a failed Web API call.
func (c *Client) apiStatus(err error) (int, bool) {
	if c.status != nil {
		if code := c.status.last(); code >= http.StatusMultipleChoices {
			return code, true
		}
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	var apiErrPtr *spotify.Error
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Status, true
	}
	return 0, false
}

// statusRecorder remembers the status code of the last response.
type statusRecorder struct {
	base http.RoundTripper

	mu   sync.Mutex
	code int
}

func (s *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := s.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err == nil {
		s.mu.Lock()
		s.code = resp.StatusCode
		s.mu.Unlock()
	}
	return resp, err
}

func (s *statusRecorder) last() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}
