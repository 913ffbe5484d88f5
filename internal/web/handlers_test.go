package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/spotify-now-playing/internal/auth"
	"github.com/justestif/spotify-now-playing/internal/spotify"
	"github.com/justestif/spotify-now-playing/internal/spotifytest"
	"github.com/justestif/spotify-now-playing/internal/store"
	"github.com/justestif/spotify-now-playing/internal/tracks"
	assets "github.com/justestif/spotify-now-playing/web"
)

type fakeAuth struct {
	credsErr    error
	authURLErr  error
	exchangeErr error
	logoutErr   error

	origins []string
	codes   []string
	logouts int
}

func (f *fakeAuth) CheckCredentials() error {
	return f.credsErr
}

func (f *fakeAuth) AuthURL(origin string) (string, error) {
	f.origins = append(f.origins, origin)
	if f.authURLErr != nil {
		return "", f.authURLErr
	}
	return "https://accounts.example/authorize?redirect_uri=" + auth.RedirectURI(origin), nil
}

func (f *fakeAuth) ExchangeCode(_ context.Context, code, origin string) error {
	f.codes = append(f.codes, code)
	f.origins = append(f.origins, origin)
	return f.exchangeErr
}

func (f *fakeAuth) Logout(context.Context) error {
	f.logouts++
	return f.logoutErr
}

type fakeTracks struct {
	current *spotify.CurrentTrack
	err     error
}

func (f *fakeTracks) FetchCurrentTrack(context.Context) (*spotify.CurrentTrack, error) {
	return f.current, f.err
}

var songA = &spotify.CurrentTrack{
	IsPlaying: true,
	Track: &spotify.TrackSnapshot{
		Title:       "Song A",
		Artist:      "Artist A",
		Album:       "Album A",
		AlbumArtURL: "https://img/1",
		DurationMs:  200000,
		ProgressMs:  50000,
	},
}

func newTestServer(t *testing.T, a AuthService, f TrackFetcher) http.Handler {
	t.Helper()

	templatesFS, err := fs.Sub(assets.TemplatesFS, "templates")
	require.NoError(t, err)
	staticFS, err := fs.Sub(assets.StaticFS, "static")
	require.NoError(t, err)

	s, err := NewServer(ServerConfig{
		Addr:         "127.0.0.1:0",
		TemplatesFS:  templatesFS,
		StaticFS:     staticFS,
		Auth:         a,
		Tracks:       f,
		PollInterval: 5 * time.Second,
	})
	require.NoError(t, err)
	return s.Handler()
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &fakeAuth{}, &fakeTracks{})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"Server is running"}`, rec.Body.String())
}

func TestCurrentTrack(t *testing.T) {
	tests := []struct {
		name       string
		fetcher    *fakeTracks
		wantStatus int
		wantBody   string
	}{
		{
			name:       "nothing playing",
			fetcher:    &fakeTracks{current: &spotify.CurrentTrack{IsPlaying: false}},
			wantStatus: http.StatusOK,
			wantBody:   `{"isPlaying":false,"message":"No track currently playing"}`,
		},
		{
			name:       "playing",
			fetcher:    &fakeTracks{current: songA},
			wantStatus: http.StatusOK,
			wantBody: `{"isPlaying":true,"track":{"title":"Song A","artist":"Artist A","album":"Album A",` +
				`"albumArt":"https://img/1","duration":200000,"progress":50000}}`,
		},
		{
			name: "paused keeps track",
			fetcher: &fakeTracks{current: &spotify.CurrentTrack{
				IsPlaying: false,
				Track:     &spotify.TrackSnapshot{Title: "T", Artist: "A", Album: "B", DurationMs: 10, ProgressMs: 5},
			}},
			wantStatus: http.StatusOK,
			wantBody: `{"isPlaying":false,"track":{"title":"T","artist":"A","album":"B",` +
				`"albumArt":"","duration":10,"progress":5}}`,
		},
		{
			name:       "not connected",
			fetcher:    &fakeTracks{err: tracks.ErrNotConnected},
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":"Spotify not connected"}`,
		},
		{
			name:       "provider error",
			fetcher:    &fakeTracks{err: fmt.Errorf("%w: status 502", spotify.ErrProviderAPI)},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Failed to get currently playing track"}`,
		},
		{
			name:       "refresh rejected",
			fetcher:    &fakeTracks{err: fmt.Errorf("refreshing access token: %w", &auth.ProviderError{Op: "refresh"})},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Failed to refresh access token"}`,
		},
	}

	for _, tt := range tests {
		for _, path := range []string{"/spotify-current-track", "/api/current-track"} {
			t.Run(tt.name+" "+path, func(t *testing.T) {
				h := newTestServer(t, &fakeAuth{}, tt.fetcher)

				rec := do(t, h, httptest.NewRequest(http.MethodGet, path, nil))

				assert.Equal(t, tt.wantStatus, rec.Code)
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			})
		}
	}
}

func TestSpotifyAuth_GetAuthURL(t *testing.T) {
	t.Run("origin header", func(t *testing.T) {
		fa := &fakeAuth{}
		h := newTestServer(t, fa, &fakeTracks{})

		req := postJSON("/spotify-auth", `{"action":"get-auth-url"}`)
		req.Header.Set("Origin", "https://player.example.com")
		rec := do(t, h, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://accounts.example/authorize?redirect_uri=https://player.example.com/callback", decode(t, rec)["authUrl"])
		assert.Equal(t, []string{"https://player.example.com"}, fa.origins)
	})

	t.Run("falls back to host", func(t *testing.T) {
		fa := &fakeAuth{}
		h := newTestServer(t, fa, &fakeTracks{})

		req := postJSON("/spotify-auth", `{"action":"get-auth-url"}`)
		req.Host = "127.0.0.1:8080"
		rec := do(t, h, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"http://127.0.0.1:8080"}, fa.origins)
	})

	t.Run("missing credentials", func(t *testing.T) {
		h := newTestServer(t, &fakeAuth{authURLErr: auth.ErrMissingCredentials}, &fakeTracks{})

		rec := do(t, h, postJSON("/spotify-auth", `{"action":"get-auth-url"}`))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"Spotify credentials not configured"}`, rec.Body.String())
	})
}

func TestSpotifyAuth_ExchangeCode(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		fa := &fakeAuth{}
		h := newTestServer(t, fa, &fakeTracks{})

		req := postJSON("/spotify-auth", `{"action":"exchange-code","code":"abc"}`)
		req.Header.Set("Origin", "https://player.example.com")
		rec := do(t, h, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
		assert.Equal(t, []string{"abc"}, fa.codes)
		assert.Equal(t, []string{"https://player.example.com"}, fa.origins)
	})

	t.Run("provider rejects code", func(t *testing.T) {
		fa := &fakeAuth{exchangeErr: &auth.ProviderError{Op: "exchange", Status: 400, Code: "invalid_grant", Description: "Invalid authorization code"}}
		h := newTestServer(t, fa, &fakeTracks{})

		rec := do(t, h, postJSON("/spotify-auth", `{"action":"exchange-code","code":"bad"}`))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid authorization code"}`, rec.Body.String())
	})

	t.Run("missing code", func(t *testing.T) {
		h := newTestServer(t, &fakeAuth{exchangeErr: auth.ErrMissingCode}, &fakeTracks{})

		rec := do(t, h, postJSON("/spotify-auth", `{"action":"exchange-code"}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSpotifyAuth_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantBody string
	}{
		{"unknown action", `{"action":"delete-everything"}`, `{"error":"Invalid action"}`},
		{"no action", `{}`, `{"error":"Invalid action"}`},
		{"malformed json", `{"action":`, `{"error":"Invalid request body"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := &fakeAuth{}
			h := newTestServer(t, fa, &fakeTracks{})

			rec := do(t, h, postJSON("/spotify-auth", tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			assert.Empty(t, fa.origins)
		})
	}
}

func TestSpotifyAuth_MissingCredentials(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"get auth url", `{"action":"get-auth-url"}`},
		{"exchange code", `{"action":"exchange-code","code":"abc"}`},
		{"unknown action", `{"action":"delete-everything"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := &fakeAuth{credsErr: auth.ErrMissingCredentials}
			h := newTestServer(t, fa, &fakeTracks{})

			rec := do(t, h, postJSON("/spotify-auth", tt.body))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"Spotify credentials not configured"}`, rec.Body.String())
			assert.Empty(t, fa.origins)
			assert.Empty(t, fa.codes)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	tests := []struct {
		name    string
		headers string
	}{
		{"content type", "content-type"},
		{"apikey and content type", "apikey,content-type"},
		{"all allowed headers", "authorization,apikey,content-type,x-client-info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeAuth{}, &fakeTracks{})

			// Browsers send the requested headers lowercased and sorted.
			req := httptest.NewRequest(http.MethodOptions, "/spotify-auth", nil)
			req.Header.Set("Origin", "https://player.example.com")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			req.Header.Set("Access-Control-Request-Headers", tt.headers)
			rec := do(t, h, req)

			assert.Less(t, rec.Code, 300)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSSimpleRequest(t *testing.T) {
	h := newTestServer(t, &fakeAuth{}, &fakeTracks{current: &spotify.CurrentTrack{}})

	req := httptest.NewRequest(http.MethodGet, "/spotify-current-track", nil)
	req.Header.Set("Origin", "https://player.example.com")
	rec := do(t, h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHome(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *fakeTracks
		want    []string
	}{
		{"not connected", &fakeTracks{err: tracks.ErrNotConnected}, []string{"Connect Spotify", `data-poll-ms="5000"`}},
		{"playing", &fakeTracks{current: songA}, []string{"Song A", "Artist A", "0:50 / 3:20", `src="https://img/1"`}},
		{"idle", &fakeTracks{current: &spotify.CurrentTrack{}}, []string{"No track currently playing"}},
		{"error", &fakeTracks{err: spotify.ErrProviderAPI}, []string{"Failed to get currently playing track"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeAuth{}, tt.fetcher)

			rec := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
			for _, s := range tt.want {
				assert.Contains(t, rec.Body.String(), s)
			}
		})
	}
}

func TestNowPlayingPartial(t *testing.T) {
	h := newTestServer(t, &fakeAuth{}, &fakeTracks{current: songA})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/partials/now-playing", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Song A")
	assert.NotContains(t, rec.Body.String(), "<html")
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		auth       *fakeAuth
		wantStatus int
		wantBody   string
		wantCodes  []string
	}{
		{
			name:       "success",
			query:      "?code=abc",
			auth:       &fakeAuth{},
			wantStatus: http.StatusOK,
			wantBody:   "Spotify connected",
			wantCodes:  []string{"abc"},
		},
		{
			name:       "denied",
			query:      "?error=access_denied",
			auth:       &fakeAuth{},
			wantStatus: http.StatusBadRequest,
			wantBody:   "access_denied",
		},
		{
			name:       "no code",
			query:      "",
			auth:       &fakeAuth{},
			wantStatus: http.StatusBadRequest,
			wantBody:   "No authorization code received",
		},
		{
			name:       "exchange fails",
			query:      "?code=bad",
			auth:       &fakeAuth{exchangeErr: &auth.ProviderError{Op: "exchange", Description: "Invalid authorization code"}},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Invalid authorization code",
			wantCodes:  []string{"bad"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, tt.auth, &fakeTracks{})

			req := httptest.NewRequest(http.MethodGet, "/callback"+tt.query, nil)
			req.Host = "127.0.0.1:8080"
			rec := do(t, h, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.Equal(t, tt.wantCodes, tt.auth.codes)
			if tt.wantCodes != nil {
				assert.Equal(t, []string{"http://127.0.0.1:8080"}, tt.auth.origins)
			}
		})
	}
}

func TestLogout(t *testing.T) {
	fa := &fakeAuth{}
	h := newTestServer(t, fa, &fakeTracks{})

	rec := do(t, h, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, 1, fa.logouts)
}

func TestStaticAssets(t *testing.T) {
	h := newTestServer(t, &fakeAuth{}, &fakeTracks{})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/static/js/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestEndToEnd drives the gateway against a fake provider: exchange a code,
// then read the playing state with the stored token.
func TestEndToEnd(t *testing.T) {
	p := spotifytest.NewProvider(t)
	p.PlayingStatus = http.StatusOK
	p.PlayingBody = spotifytest.Playing{
		IsPlaying:  true,
		Title:      "Song A",
		Artists:    []string{"Artist A"},
		Album:      "Album A",
		DurationMs: 200000,
		ProgressMs: 50000,
	}.JSON()

	st := store.NewMemoryStore()
	authorizer := auth.New(p.ClientID, p.ClientSecret, st, auth.WithAccountsURL(p.AccountsURL()))
	svc := tracks.NewService(st, authorizer, tracks.WithAPIURL(p.APIURL()))
	h := newTestServer(t, authorizer, svc)

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/spotify-current-track", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, p.Calls())

	req := postJSON("/spotify-auth", `{"action":"exchange-code","code":"`+p.ValidCode+`"}`)
	req.Header.Set("Origin", "http://127.0.0.1:8080")
	rec = do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "http://127.0.0.1:8080/callback", p.TokenForms()[0]["redirect_uri"])

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/spotify-current-track", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"isPlaying":true,"track":{"title":"Song A","artist":"Artist A","album":"Album A",`+
		`"albumArt":"","duration":200000,"progress":50000}}`, rec.Body.String())
	assert.Equal(t, []string{p.AccessToken}, p.Bearers())
}
