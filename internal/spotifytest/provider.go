// Package spotifytest provides a fake Spotify accounts and Web API server for tests.
package spotifytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Call names recorded by Provider.
const (
	CallExchange          = "token:authorization_code"
	CallRefresh           = "token:refresh_token"
	CallCurrentlyPlaying  = "currently-playing"
	currentlyPlayingRoute = "/v1/me/player/currently-playing"
)

// Provider is a fake Spotify. Configure fields before issuing requests.
type Provider struct {
	Server *httptest.Server

	ClientID     string
	ClientSecret string

	// Authorization code grant
	ValidCode    string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	Scope        string

	// Refresh token grant
	RefreshedAccessToken string
	RefreshFails         bool

	// Currently playing endpoint. Status 0 means 200.
	PlayingStatus int
	PlayingBody   string

	mu      sync.Mutex
	calls   []string
	bearers []string
	forms   []map[string]string
}

// NewProvider starts a fake provider that is closed when the test ends.
func NewProvider(t testing.TB) *Provider {
	t.Helper()

	p := &Provider{
		ClientID:             "test-client-id",
		ClientSecret:         "test-client-secret",
		ValidCode:            "good-code",
		AccessToken:          "access-1",
		RefreshToken:         "refresh-1",
		ExpiresIn:            3600,
		Scope:                "user-read-currently-playing user-read-playback-state",
		RefreshedAccessToken: "access-refreshed",
		PlayingStatus:        http.StatusNoContent,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", p.handleToken)
	mux.HandleFunc(currentlyPlayingRoute, p.handleCurrentlyPlaying)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)

	return p
}

// AccountsURL is the base URL for the accounts service.
func (p *Provider) AccountsURL() string { return p.Server.URL }

// APIURL is the Web API base URL, with trailing slash.
func (p *Provider) APIURL() string { return p.Server.URL + "/v1/" }

// Calls returns the recorded calls in order.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Count returns how many times the named call was made.
func (p *Provider) Count(name string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

// Bearers returns the access tokens presented to the Web API, in order.
func (p *Provider) Bearers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.bearers...)
}

// TokenForms returns the form values of each token endpoint request.
func (p *Provider) TokenForms() []map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]string(nil), p.forms...)
}

func (p *Provider) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, tokenError("invalid_request", err.Error()))
		return
	}

	grant := r.PostForm.Get("grant_type")
	p.record("token:" + grant)

	form := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	p.mu.Lock()
	p.forms = append(p.forms, form)
	p.mu.Unlock()

	id, secret, ok := r.BasicAuth()
	if !ok || id != p.ClientID || secret != p.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, tokenError("invalid_client", "Invalid client"))
		return
	}

	switch grant {
	case "authorization_code":
		if r.PostForm.Get("code") != p.ValidCode {
			writeJSON(w, http.StatusBadRequest, tokenError("invalid_grant", "Invalid authorization code"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  p.AccessToken,
			"token_type":    "Bearer",
			"scope":         p.Scope,
			"expires_in":    p.ExpiresIn,
			"refresh_token": p.RefreshToken,
		})
	case "refresh_token":
		if p.RefreshFails || r.PostForm.Get("refresh_token") == "" {
			writeJSON(w, http.StatusBadRequest, tokenError("invalid_grant", "Refresh token revoked"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": p.RefreshedAccessToken,
			"token_type":   "Bearer",
			"scope":        p.Scope,
			"expires_in":   p.ExpiresIn,
		})
	default:
		writeJSON(w, http.StatusBadRequest, tokenError("unsupported_grant_type", grant))
	}
}

func (p *Provider) handleCurrentlyPlaying(w http.ResponseWriter, r *http.Request) {
	p.record(CallCurrentlyPlaying)

	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	p.mu.Lock()
	p.bearers = append(p.bearers, bearer)
	p.mu.Unlock()

	status := p.PlayingStatus
	if status == 0 {
		status = http.StatusOK
	}

	switch {
	case status == http.StatusNoContent:
		w.WriteHeader(status)
	case status >= 400:
		writeJSON(w, status, map[string]any{
			"error": map[string]any{"status": status, "message": http.StatusText(status)},
		})
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, p.PlayingBody)
	}
}

func tokenError(code, description string) map[string]string {
	return map[string]string{"error": code, "error_description": description}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Playing describes a currently-playing response body.
type Playing struct {
	IsPlaying  bool
	Title      string
	Artists    []string
	Album      string
	Images     []string
	DurationMs int
	ProgressMs int
}

// JSON renders p as a Web API currently-playing payload.
func (pl Playing) JSON() string {
	artists := make([]map[string]any, len(pl.Artists))
	for i, a := range pl.Artists {
		artists[i] = map[string]any{"name": a, "id": fmt.Sprintf("artist%d", i)}
	}
	images := make([]map[string]any, len(pl.Images))
	for i, u := range pl.Images {
		images[i] = map[string]any{"url": u, "height": 640, "width": 640}
	}

	body, _ := json.Marshal(map[string]any{
		"timestamp":   1700000000000,
		"progress_ms": pl.ProgressMs,
		"is_playing":  pl.IsPlaying,
		"item": map[string]any{
			"id":          "track123",
			"name":        pl.Title,
			"duration_ms": pl.DurationMs,
			"artists":     artists,
			"album": map[string]any{
				"name":   pl.Album,
				"images": images,
			},
		},
	})
	return string(body)
}
