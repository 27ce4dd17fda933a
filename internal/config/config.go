package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const devJWTSecret = "portal-dev-secret-change-me"

// Config holds all application configuration.
// Values come from environment variables, then the optional YAML file named
// by CONFIG_FILE, then defaults.
type Config struct {
	// Server
	Port        int
	LogLevel    string
	Environment string // development, production

	// Storage
	DataDir        string
	StorageDriver  string // file, sqlite, postgres
	SQLitePath     string
	DatabaseURL    string
	WatchDataDir   bool
	PortalCacheTTL time.Duration
	MaxDocBytes    int

	// Auth
	JWTSecret        string
	StaffSessionTTL  time.Duration
	ClientSessionTTL time.Duration
	InviteTTL        time.Duration
	ResetTTL         time.Duration
	CookieSecure     bool
	AppBaseURL       string
	LegacyHeaderAuth bool

	// Rate limiting
	RateLimitRedisURL string

	// External services
	GoogleDriveAPIURL string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Observability
	OTLPEndpoint string
}

// Load reads .env (if present), the YAML overlay (if CONFIG_FILE is set) and
// the environment.
func Load() (*Config, error) {
	_ = LoadDotEnv()

	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		overlay, err := loadYAML(path)
		if err != nil {
			return nil, err
		}
		src.file = overlay
	}
	return src.build(), nil
}

// source resolves a key from the environment first, then the YAML overlay.
type source struct {
	file map[string]string
}

func (s source) build() *Config {
	dataDir := s.getEnv("DATA_DIR", "data")
	return &Config{
		Port:        s.getEnvInt("PORT", 8080),
		LogLevel:    s.getEnv("LOG_LEVEL", "info"),
		Environment: s.getEnv("ENVIRONMENT", "development"),

		DataDir:        dataDir,
		StorageDriver:  strings.ToLower(s.getEnv("STORAGE_DRIVER", "file")),
		SQLitePath:     s.getEnv("SQLITE_PATH", ""),
		DatabaseURL:    s.getEnv("DATABASE_URL", ""),
		WatchDataDir:   s.getEnvBool("WATCH_DATA_DIR", true),
		PortalCacheTTL: s.getEnvDuration("PORTAL_CACHE_TTL", 2*time.Minute),
		MaxDocBytes:    s.getEnvInt("PORTAL_MAX_DOC_BYTES", 4<<20),

		JWTSecret:        s.getEnv("JWT_SECRET", devJWTSecret),
		StaffSessionTTL:  s.getEnvDuration("STAFF_SESSION_TTL", 7*24*time.Hour),
		ClientSessionTTL: s.getEnvDuration("CLIENT_SESSION_TTL", 24*time.Hour),
		InviteTTL:        s.getEnvDuration("INVITE_TTL", 72*time.Hour),
		ResetTTL:         s.getEnvDuration("RESET_TTL", time.Hour),
		CookieSecure:     s.getEnvBool("COOKIE_SECURE", false),
		AppBaseURL:       strings.TrimRight(s.getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
		LegacyHeaderAuth: s.getEnvBool("LEGACY_HEADER_AUTH", false),

		RateLimitRedisURL: s.getEnv("RATE_LIMIT_REDIS_URL", ""),

		GoogleDriveAPIURL: strings.TrimRight(s.getEnv("GOOGLE_DRIVE_API_URL", "https://www.googleapis.com/drive/v3"), "/"),

		HTTPTimeout: s.getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     s.getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: s.getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: s.getEnvInt("MAX_CONCURRENCY", 8),

		OTLPEndpoint: s.getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate rejects settings that are unsafe outside development.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case "file", "sqlite", "postgres":
	default:
		return fmt.Errorf("STORAGE_DRIVER must be file, sqlite or postgres, got %q", c.StorageDriver)
	}
	if c.StorageDriver == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres driver")
	}
	if c.IsProduction() {
		if c.JWTSecret == devJWTSecret || len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be set to at least 32 characters in production")
		}
		if c.LegacyHeaderAuth {
			return fmt.Errorf("LEGACY_HEADER_AUTH cannot be enabled in production")
		}
	}
	return nil
}

func (s source) lookup(key string) (string, bool) {
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	if v, ok := s.file[key]; ok && v != "" {
		return v, true
	}
	return "", false
}

func (s source) getEnv(key, fallback string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return fallback
}

func (s source) getEnvInt(key string, fallback int) int {
	if v, ok := s.lookup(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func (s source) getEnvBool(key string, fallback bool) bool {
	if v, ok := s.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func (s source) getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := s.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
