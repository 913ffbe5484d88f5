package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultLoopbackAddr uses explicit IPv4 loopback as required by Spotify for local development.
// See: https://developer.spotify.com/documentation/web-api/concepts/redirect-uri
const DefaultLoopbackAddr = "127.0.0.1:8888"

const callbackTimeout = 2 * time.Minute

var (
	// ErrAuthTimeout is returned when the OAuth callback is not received in time.
	ErrAuthTimeout = errors.New("authentication timed out waiting for callback")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")
)

// LoginLoopback runs the authorization flow from a terminal: it prints the
// authorize URL to out, serves the callback on addr, and stores the exchanged
// tokens. Unlike the browser flow it binds the callback to a random state.
func (a *Authorizer) LoginLoopback(ctx context.Context, addr string, out io.Writer) error {
	state, err := generateState()
	if err != nil {
		return fmt.Errorf("generating state: %w", err)
	}

	origin := "http://" + addr
	authURL, err := a.authCodeURL(origin, state)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	doneCh := make(chan struct{}, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		a.handleLoopbackCallback(w, r, origin, state, doneCh, errCh)
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("callback server error: %w", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Fprintln(out, "\nTo authenticate, open this URL in your browser:")
	fmt.Fprintln(out, authURL)
	fmt.Fprintln(out, "\nWaiting for authentication...")

	select {
	case <-doneCh:
		return nil
	case err := <-errCh:
		return err
	case <-time.After(callbackTimeout):
		return ErrAuthTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Authorizer) handleLoopbackCallback(w http.ResponseWriter, r *http.Request, origin, expectedState string, doneCh chan<- struct{}, errCh chan<- error) {
	if r.URL.Query().Get("state") != expectedState {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		sendErr(errCh, ErrStateMismatch)
		return
	}

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, "Authentication failed: "+errMsg, http.StatusBadRequest)
		sendErr(errCh, fmt.Errorf("spotify auth error: %s", errMsg))
		return
	}

	if err := a.ExchangeCode(r.Context(), r.URL.Query().Get("code"), origin); err != nil {
		a.logger.Error("Loopback exchange failed", zap.Error(err))
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		sendErr(errCh, err)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Spotify Connected</title></head>
<body>
<h1>Spotify connected!</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`)

	select {
	case doneCh <- struct{}{}:
	default:
	}
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// generateState creates a random state string for OAuth.
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
