// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingCredentials is returned when the Spotify client id or secret is not set.
var ErrMissingCredentials = errors.New("missing SPOTIFY_CLIENT_ID or SPOTIFY_CLIENT_SECRET environment variable")

const (
	DefaultAddr         = "127.0.0.1:8080"
	DefaultPollInterval = 5 * time.Second
	DefaultAccountsURL  = "https://accounts.spotify.com"
	DefaultAPIURL       = "https://api.spotify.com/v1/"
)

// Config holds application configuration.
type Config struct {
	ClientID     string
	ClientSecret string

	Addr        string
	DatabaseURL string

	// APIBaseURL is the base URL the browser uses for API calls.
	// Empty means same origin.
	APIBaseURL   string
	PollInterval time.Duration

	// RefreshFallback keeps using the stored access token when a refresh fails.
	RefreshFallback bool

	AllowedOrigins []string

	LogLevel string
	LogFile  string

	AccountsURL string
	APIURL      string
}

// Load reads configuration from a .env file (if present) and the environment.
// Missing Spotify credentials are not an error here; see Validate.
func Load() *Config {
	// .env is optional
	_ = godotenv.Load()

	return &Config{
		ClientID:        firstEnv("SPOTIFY_CLIENT_ID", "SPOTIFY_ID"),
		ClientSecret:    firstEnv("SPOTIFY_CLIENT_SECRET", "SPOTIFY_SECRET"),
		Addr:            getEnv("ADDR", DefaultAddr),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		APIBaseURL:      strings.TrimRight(getEnv("API_BASE_URL", ""), "/"),
		PollInterval:    getEnvDuration("POLL_INTERVAL", DefaultPollInterval),
		RefreshFallback: getEnvBool("REFRESH_FALLBACK", true),
		AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
		AccountsURL:     strings.TrimRight(getEnv("SPOTIFY_ACCOUNTS_URL", DefaultAccountsURL), "/"),
		APIURL:          withTrailingSlash(getEnv("SPOTIFY_API_URL", DefaultAPIURL)),
	}
}

// Validate reports ErrMissingCredentials when the client id or secret is empty.
func (c *Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("5s") or plain milliseconds ("1000").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func withTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
