package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete client configuration
type Config struct {
	Server      ServerConfig
	Session     SessionConfig
	OAuth       OAuthConfig
	Storage     StorageConfig
	Environment string
}

// ServerConfig holds the authentication server endpoints and HTTP client tuning
type ServerConfig struct {
	BaseURL        string
	TokenPath      string
	LogoutPath     string
	RequestTimeout time.Duration
}

// SessionConfig holds session-lifecycle timing
type SessionConfig struct {
	InactivityTimeout time.Duration
	WarningLead       time.Duration
	SettleDelay       time.Duration
}

// OAuthConfig holds the external login provider configuration
type OAuthConfig struct {
	AuthURL      string
	ClientID     string
	RedirectURI  string
	Scopes       []string
	ListenAddr   string // loopback address for the return server
	AllowedOrigin string // origin permitted to POST identity attributes back
}

// StorageConfig selects and configures the durable client store.
// Backend is one of "memory", "file", "postgres".
type StorageConfig struct {
	Backend          string
	FilePath         string
	ConnectionString string // From CLIENTCORE_DATABASE_URL when set
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env if it exists (clientcore/.env when run from project root, .env otherwise)
	_ = godotenv.Load("clientcore/.env")
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			BaseURL:        getEnv("AUTH_SERVER_URL", "http://localhost:8080"),
			TokenPath:      getEnv("AUTH_TOKEN_PATH", "/api/v1/csrf-token"),
			LogoutPath:     getEnv("AUTH_LOGOUT_PATH", "/api/v1/logout"),
			RequestTimeout: getEnvAsDuration("AUTH_REQUEST_TIMEOUT", 15*time.Second),
		},
		Session: SessionConfig{
			InactivityTimeout: getEnvAsDuration("SESSION_INACTIVITY_TIMEOUT", 15*time.Minute),
			WarningLead:       getEnvAsDuration("SESSION_WARNING_LEAD", 2*time.Minute),
			SettleDelay:       getEnvAsDuration("SESSION_SETTLE_DELAY", 500*time.Millisecond),
		},
		OAuth: OAuthConfig{
			AuthURL:       getEnv("OAUTH_AUTH_URL", ""),
			ClientID:      getEnv("OAUTH_CLIENT_ID", ""),
			RedirectURI:   getEnv("OAUTH_REDIRECT_URI", "http://127.0.0.1:8732/return"),
			Scopes:        []string{"profile", "openid", "email"},
			ListenAddr:    getEnv("OAUTH_LISTEN_ADDR", "127.0.0.1:8732"),
			AllowedOrigin: getEnv("OAUTH_ALLOWED_ORIGIN", ""),
		},
		Storage: StorageConfig{
			Backend:          getEnv("CLIENTCORE_STORAGE_BACKEND", "file"),
			FilePath:         getEnv("CLIENTCORE_STORAGE_FILE", defaultStorageFile()),
			ConnectionString: getEnv("CLIENTCORE_DATABASE_URL", ""),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are consistent
func (c *Config) Validate() error {
	if _, err := url.Parse(c.Server.BaseURL); err != nil {
		return fmt.Errorf("AUTH_SERVER_URL is not a valid URL: %w", err)
	}
	if c.Session.WarningLead >= c.Session.InactivityTimeout {
		return fmt.Errorf("SESSION_WARNING_LEAD (%s) must be shorter than SESSION_INACTIVITY_TIMEOUT (%s)",
			c.Session.WarningLead, c.Session.InactivityTimeout)
	}
	if c.Session.SettleDelay <= 0 {
		return fmt.Errorf("SESSION_SETTLE_DELAY must be positive")
	}
	switch c.Storage.Backend {
	case "memory", "file":
	case "postgres":
		if c.Storage.ConnectionString == "" {
			return fmt.Errorf("CLIENTCORE_DATABASE_URL is required for the postgres storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func defaultStorageFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "clientcore-state.json"
	}
	return dir + string(os.PathSeparator) + "bookline" + string(os.PathSeparator) + "state.json"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
