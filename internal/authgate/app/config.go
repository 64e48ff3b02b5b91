package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/audit"
	"github.com/aussiebroadwan/authgate/internal/authgate/service"
	"github.com/aussiebroadwan/authgate/pkg/jwtx"
	"github.com/aussiebroadwan/authgate/pkg/ratelimit"
	"github.com/joho/godotenv"
)

type Config struct {
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	AuditRetention       time.Duration // How long audit rows are kept (default: 90 days)

	DatabaseDriver string // sqlite or postgres (default: sqlite)
	DatabaseFile   string // SQLite database file (default: ./authgate.db)
	DatabaseURL    string // Postgres connection string, required for the postgres driver
	PepperFile     string // Path to the password pepper file (default: ./pepper)

	JWTAccessSecret      string        // HS256 secret for access tokens, required in prod
	JWTRefreshSecret     string        // HS256 secret for refresh tokens, required in prod
	JWTIssuer            string        // Issuer claim (default: authgate)
	AccessTTL            time.Duration // Access token lifetime (default: 15m)
	RefreshTTL           time.Duration // Refresh token lifetime (default: 24h)
	PersistentRefreshTTL time.Duration // "Remember me" refresh lifetime (default: 7 days)

	LockoutThreshold int           // Consecutive failures before lockout (default: 5)
	LockoutDuration  time.Duration // Lockout length (default: 30m)
	LoginRateLimit   ratelimit.Policy

	SentryDSN         string   // Optional: Sentry error reporting
	AuditKafkaBrokers []string // Optional: comma separated brokers for the audit topic
	AuditKafkaTopic   string   // Audit topic (default: authgate.audit)
	AuditBufferSize   int      // Queued audit events before new ones are dropped (default: 1024)

	BootstrapOperatorEmail    string // Optional: first operator, created when none exists
	BootstrapOperatorPassword string
}

// LoadConfig reads the environment, after loading a .env file when one is
// present in the working directory.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		AuditRetention:       getEnvDurationOrDefault("AUDIT_RETENTION", service.DefaultAuditRetention),

		DatabaseDriver: strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", "sqlite")),
		DatabaseFile:   getEnvOrDefault("DATABASE_FILE", "authgate.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		PepperFile:     getEnvOrDefault("PEPPER_FILE", "pepper"),

		JWTAccessSecret:      os.Getenv("JWT_ACCESS_SECRET"),
		JWTRefreshSecret:     os.Getenv("JWT_REFRESH_SECRET"),
		JWTIssuer:            getEnvOrDefault("JWT_ISSUER", "authgate"),
		AccessTTL:            getEnvDurationOrDefault("JWT_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:           getEnvDurationOrDefault("JWT_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		PersistentRefreshTTL: getEnvDurationOrDefault("JWT_PERSISTENT_REFRESH_TTL", jwtx.DefaultPersistentRefreshTTL),

		LockoutThreshold: getEnvIntOrDefault("LOCKOUT_THRESHOLD", service.DefaultLockoutThreshold),
		LockoutDuration:  getEnvDurationOrDefault("LOCKOUT_DURATION", service.DefaultLockoutDuration),
		LoginRateLimit:   ratelimit.PolicyFromEnv("LOGIN", ratelimit.LoginPolicy),

		SentryDSN:         os.Getenv("SENTRY_DSN"),
		AuditKafkaBrokers: splitList(os.Getenv("AUDIT_KAFKA_BROKERS")),
		AuditKafkaTopic:   getEnvOrDefault("AUDIT_KAFKA_TOPIC", "authgate.audit"),
		AuditBufferSize:   getEnvIntOrDefault("AUDIT_BUFFER_SIZE", audit.DefaultBufferSize),

		BootstrapOperatorEmail:    os.Getenv("BOOTSTRAP_OPERATOR_EMAIL"),
		BootstrapOperatorPassword: os.Getenv("BOOTSTRAP_OPERATOR_PASSWORD"),
	}
}

func (c Config) IsProd() bool { return c.Env == "prod" }

// Validate rejects configurations that would start an insecure or broken
// server. Missing JWT secrets are only tolerated outside prod.
func (c Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	if c.IsProd() && (c.JWTAccessSecret == "" || c.JWTRefreshSecret == "") {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required in prod"))
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.LockoutThreshold < 1 {
		errs = append(errs, errors.New("LOCKOUT_THRESHOLD must be at least 1"))
	}
	if c.LockoutDuration <= 0 {
		errs = append(errs, errors.New("LOCKOUT_DURATION must be positive"))
	}
	if c.BootstrapOperatorEmail != "" && c.BootstrapOperatorPassword == "" {
		errs = append(errs, errors.New("BOOTSTRAP_OPERATOR_PASSWORD is required with BOOTSTRAP_OPERATOR_EMAIL"))
	}

	return errors.Join(errs...)
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
