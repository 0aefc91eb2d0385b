package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/tokengate/internal/auth/revocation"
	"github.com/aussiebroadwan/tokengate/pkg/cryptox"
	"github.com/aussiebroadwan/tokengate/pkg/jwtx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrInvalidConfig = errors.New("app: invalid config")

type Config struct {
	JWTSecret       string        // Required: HS256 signing secret
	Issuer          string        // Optional: iss claim, enforced when set
	AccessTTL       time.Duration // Access token lifetime (default: 1h)
	RefreshTTL      time.Duration // Refresh token lifetime (default: 4 weeks)
	AccessCookieTTL time.Duration // token cookie lifetime (default: 4h)
	CookieSecure    bool          // Secure flag on session cookies (default: false)

	DatabaseDriver string // sqlite or postgres (default: sqlite)
	DatabaseURL    string // postgres DSN, required with the postgres driver
	DatabaseFile   string // SQLite file (default: ./auth.db)

	RedisURL            string // Revocation store (default: redis://localhost:6379/0)
	RevocationKeyPrefix string // Key prefix for revoked token ids
	RevocationFailOpen  bool   // Access gates admit tokens while Redis is down (default: true)
	RevocationTimeout   time.Duration

	PasswordHasher string // argon2id or bcrypt (default: argon2id)
	BcryptCost     int    // bcrypt cost (default: bcrypt.DefaultCost)
	PepperFile     string // argon2id pepper, generated on first start (default: ./pepper)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
	MonitorInterval     time.Duration // Dependency probe interval (default: 15s)
}

func LoadConfig() Config {
	return Config{
		JWTSecret:       os.Getenv("JWT_SECRET"),
		Issuer:          os.Getenv("JWT_ISSUER"),
		AccessTTL:       getEnvDurationOrDefault("ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:      getEnvDurationOrDefault("REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),
		AccessCookieTTL: getEnvDurationOrDefault("ACCESS_COOKIE_TTL", 4*time.Hour),
		CookieSecure:    getEnvBoolOrDefault("COOKIE_SECURE", false),

		DatabaseDriver: strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", DriverSQLite)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DatabaseFile:   getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),

		RedisURL:            getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		RevocationKeyPrefix: getEnvOrDefault("REVOCATION_KEY_PREFIX", revocation.DefaultKeyPrefix),
		RevocationFailOpen:  getEnvBoolOrDefault("REVOCATION_FAIL_OPEN", true),
		RevocationTimeout:   getEnvDurationOrDefault("REVOCATION_TIMEOUT", 5*time.Second),

		PasswordHasher: getEnvOrDefault("PASSWORD_HASHER", cryptox.HasherArgon2id),
		BcryptCost:     getEnvIntOrDefault("BCRYPT_COST", 0),
		PepperFile:     getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		MonitorInterval:     getEnvDurationOrDefault("MONITOR_INTERVAL", 15*time.Second),
	}
}

// Validate reports the first setting the service cannot start with.
func (c Config) Validate() error {
	switch {
	case c.JWTSecret == "":
		return fmt.Errorf("%w: JWT_SECRET is required", ErrInvalidConfig)
	case c.AccessTTL <= 0 || c.RefreshTTL <= 0:
		return fmt.Errorf("%w: token TTLs must be positive", ErrInvalidConfig)
	case c.DatabaseDriver != DriverSQLite && c.DatabaseDriver != DriverPostgres:
		return fmt.Errorf("%w: unknown DATABASE_DRIVER %q", ErrInvalidConfig, c.DatabaseDriver)
	case c.DatabaseDriver == DriverPostgres && c.DatabaseURL == "":
		return fmt.Errorf("%w: DATABASE_URL is required with the postgres driver", ErrInvalidConfig)
	case c.RedisURL == "":
		return fmt.Errorf("%w: REDIS_URL is required", ErrInvalidConfig)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
