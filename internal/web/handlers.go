package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/spotify-now-playing/internal/auth"
	"github.com/justestif/spotify-now-playing/internal/spotify"
	"github.com/justestif/spotify-now-playing/internal/tracks"
)

const (
	actionGetAuthURL   = "get-auth-url"
	actionExchangeCode = "exchange-code"

	noTrackMessage = "No track currently playing"
)

var errInvalidAction = errors.New("Invalid action")

// AuthService is the authorization flow used by the handlers. *auth.Authorizer implements it.
type AuthService interface {
	CheckCredentials() error
	AuthURL(origin string) (string, error)
	ExchangeCode(ctx context.Context, code, origin string) error
	Logout(ctx context.Context) error
}

// TrackFetcher fetches the current track. *tracks.Service implements it.
type TrackFetcher interface {
	FetchCurrentTrack(ctx context.Context) (*spotify.CurrentTrack, error)
}

// PageSettings is passed to every page for the client-side poller.
type PageSettings struct {
	APIBaseURL   string
	PollInterval time.Duration
}

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	auth      AuthService
	tracks    TrackFetcher
	templates *Templates
	settings  PageSettings
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(authSvc AuthService, fetcher TrackFetcher, templates *Templates, settings PageSettings, logger *zap.Logger) *Handlers {
	return &Handlers{
		auth:      authSvc,
		tracks:    fetcher,
		templates: templates,
		settings:  settings,
		logger:    logger,
	}
}

type authRequest struct {
	Action string `json:"action"`
	Code   string `json:"code,omitempty"`
}

type currentTrackResponse struct {
	IsPlaying bool                   `json:"isPlaying"`
	Track     *spotify.TrackSnapshot `json:"track,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

// SpotifyAuth dispatches authorization actions (POST /spotify-auth).
func (h *Handlers) SpotifyAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Missing credentials fail every action, known or not.
	if err := h.auth.CheckCredentials(); err != nil {
		h.fail(w, "spotify-auth", err)
		return
	}

	origin := requestOrigin(r)

	switch req.Action {
	case actionGetAuthURL:
		url, err := h.auth.AuthURL(origin)
		if err != nil {
			h.fail(w, "get-auth-url", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"authUrl": url})

	case actionExchangeCode:
		if err := h.auth.ExchangeCode(r.Context(), req.Code, origin); err != nil {
			h.fail(w, "exchange-code", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	default:
		h.fail(w, "spotify-auth", errInvalidAction)
	}
}

// CurrentTrack returns the currently playing track
// (GET /spotify-current-track, GET /api/current-track).
func (h *Handlers) CurrentTrack(w http.ResponseWriter, r *http.Request) {
	current, err := h.tracks.FetchCurrentTrack(r.Context())
	if err != nil {
		h.fail(w, "current-track", err)
		return
	}

	if current.NotPlaying() {
		writeJSON(w, http.StatusOK, currentTrackResponse{IsPlaying: false, Message: noTrackMessage})
		return
	}
	writeJSON(w, http.StatusOK, currentTrackResponse{IsPlaying: current.IsPlaying, Track: current.Track})
}

// Health reports liveness (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Server is running"})
}

// Home renders the now-playing page (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	data := HomePageData{
		PageData:   h.pageData("Now Playing", r),
		NowPlaying: h.nowPlaying(r.Context()),
	}
	h.render(w, http.StatusOK, "home", data)
}

// NowPlayingPartial renders the now-playing fragment the page polls
// (GET /partials/now-playing).
func (h *Handlers) NowPlayingPartial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.RenderPartial(w, "now-playing", h.nowPlaying(r.Context())); err != nil {
		h.logger.Error("Rendering partial failed", zap.Error(err))
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

// Callback completes the browser authorization flow (GET /callback).
// The code is exchanged using the same origin the authorize URL was built from.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	data := CallbackPageData{PageData: h.pageData("Connecting Spotify", r)}

	switch q := r.URL.Query(); {
	case q.Get("error") != "":
		data.Error = "Spotify authorization failed: " + q.Get("error")
	case q.Get("code") == "":
		data.Error = "No authorization code received"
	default:
		if err := h.auth.ExchangeCode(r.Context(), q.Get("code"), requestOrigin(r)); err != nil {
			h.logger.Error("Callback exchange failed", zap.Error(err))
			data.Error = errorMessage(err)
		} else {
			data.Success = true
		}
	}

	status := http.StatusOK
	if data.Error != "" {
		status = http.StatusBadRequest
	}
	h.render(w, status, "callback", data)
}

// Logout deletes the stored credentials and redirects home (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		h.fail(w, "logout", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) pageData(title string, r *http.Request) PageData {
	return PageData{
		Title:        title,
		CurrentPath:  r.URL.Path,
		APIBaseURL:   h.settings.APIBaseURL,
		PollInterval: h.settings.PollInterval,
	}
}

func (h *Handlers) nowPlaying(ctx context.Context) NowPlayingData {
	current, err := h.tracks.FetchCurrentTrack(ctx)
	switch {
	case errors.Is(err, tracks.ErrNotConnected):
		return NowPlayingData{}
	case err != nil:
		h.logger.Error("Fetching current track for page failed", zap.Error(err))
		return NowPlayingData{Connected: true, Error: errorMessage(err)}
	}

	data := NowPlayingData{Connected: true, IsPlaying: current.IsPlaying}
	if !current.NotPlaying() {
		data.Track = current.Track
		data.Progress = spotify.ProgressPercent(current.Track)
	}
	return data
}

func (h *Handlers) render(w http.ResponseWriter, status int, page string, data any) {
	var buf bytes.Buffer
	if err := h.templates.Render(&buf, page, data); err != nil {
		h.logger.Error("Rendering template failed", zap.String("page", page), zap.Error(err))
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// fail logs err and writes it as a JSON error with the mapped status.
func (h *Handlers) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("op", op), zap.Error(err))
	} else {
		h.logger.Warn("Request rejected", zap.String("op", op), zap.Error(err))
	}
	h.writeError(w, status, errorMessage(err))
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tracks.ErrNotConnected):
		return http.StatusUnauthorized
	case errors.Is(err, errInvalidAction), errors.Is(err, auth.ErrMissingCode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage returns the client-facing message for err.
func errorMessage(err error) string {
	var perr *auth.ProviderError
	switch {
	case errors.As(err, &perr):
		return perr.Error()
	case errors.Is(err, spotify.ErrProviderAPI):
		return spotify.ErrProviderAPI.Error()
	default:
		return err.Error()
	}
}

// requestOrigin returns the Origin header, or the scheme and host the
// request was made to.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" && origin != "null" {
		return strings.TrimRight(origin, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
