package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// HasherBcrypt selects bcrypt for new password hashes.
	HasherBcrypt = "bcrypt"
	// HasherArgon2id selects argon2id for new password hashes.
	HasherArgon2id = "argon2id"

	minJWTSecretLength = 32
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// OpTimeout bounds every registry/limiter call made on the request path.
	OpTimeout time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level         string
	File          string
	RotationHours int
	MaxAgeDays    int
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret                  string
	AccessTokenTTL             time.Duration
	RefreshTokenTTL            time.Duration
	TwoFactorPendingTTL        time.Duration
	EmailVerificationTTL       time.Duration
	PasswordResetTTL           time.Duration
	PasswordHasher             string
	BcryptCost                 int
	Argon2Memory               uint32
	Argon2Time                 uint32
	Argon2Threads              uint8
	TOTPIssuer                 string
	TOTPWindow                 uint
	RevokePriorEphemeralTokens bool
	RevocationFailOpen         bool
	EphemeralPurgeInterval     time.Duration
}

// RateLimitConfig bounds repeated attempts against the auth endpoints.
type RateLimitConfig struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
}

// NotificationConfig holds email delivery settings.
type NotificationConfig struct {
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string
	FrontendURL    string
	Workers        int
	QueueSize      int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "proptrade-auth"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           redisDB,
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", time.Second),
			OpTimeout:    getEnvAsDuration("REDIS_OP_TIMEOUT", 2*time.Second),
		},
		Logger: LoggerConfig{
			Level:         getEnv("LOG_LEVEL", "info"),
			File:          os.Getenv("LOG_FILE"),
			RotationHours: getEnvAsInt("LOG_ROTATION_HOURS", 24),
			MaxAgeDays:    getEnvAsInt("LOG_MAX_AGE_DAYS", 7),
		},
		Auth: AuthConfig{
			JWTSecret:                  getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTL:             time.Duration(getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60)) * time.Minute,
			RefreshTokenTTL:            time.Duration(getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_HOURS", 720)) * time.Hour,
			TwoFactorPendingTTL:        time.Duration(getEnvAsInt("AUTH_2FA_PENDING_TTL_MINUTES", 5)) * time.Minute,
			EmailVerificationTTL:       time.Duration(getEnvAsInt("AUTH_EMAIL_VERIFICATION_TTL_HOURS", 24)) * time.Hour,
			PasswordResetTTL:           time.Duration(getEnvAsInt("AUTH_PASSWORD_RESET_TTL_MINUTES", 60)) * time.Minute,
			PasswordHasher:             strings.ToLower(getEnv("AUTH_PASSWORD_HASHER", HasherBcrypt)),
			BcryptCost:                 getEnvAsInt("AUTH_BCRYPT_COST", 12),
			Argon2Memory:               uint32(getEnvAsInt("AUTH_ARGON2_MEMORY_KB", 64*1024)),
			Argon2Time:                 uint32(getEnvAsInt("AUTH_ARGON2_TIME", 3)),
			Argon2Threads:              uint8(getEnvAsInt("AUTH_ARGON2_THREADS", 2)),
			TOTPIssuer:                 getEnv("AUTH_TOTP_ISSUER", "PropTradePro"),
			TOTPWindow:                 uint(getEnvAsInt("AUTH_TOTP_WINDOW", 1)),
			RevokePriorEphemeralTokens: getEnvAsBool("AUTH_REVOKE_PRIOR_EPHEMERAL_TOKENS", false),
			RevocationFailOpen:         getEnvAsBool("AUTH_REVOCATION_FAIL_OPEN", false),
			EphemeralPurgeInterval:     getEnvAsDuration("AUTH_EPHEMERAL_PURGE_INTERVAL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getEnvAsBool("RATE_LIMIT_ENABLED", true),
			MaxAttempts: getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", 5),
			Window:      getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
		Notification: NotificationConfig{
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
			EmailFrom:      getEnv("NOTIFY_EMAIL_FROM", "noreply@proptradepro.com"),
			EmailFromName:  getEnv("NOTIFY_EMAIL_FROM_NAME", "PropTradePro"),
			FrontendURL:    strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
			Workers:        getEnvAsInt("NOTIFY_WORKERS", 2),
			QueueSize:      getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would weaken the auth core.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	} else if !c.App.IsDevelopment() && len(c.Auth.JWTSecret) < minJWTSecretLength {
		errs = append(errs, fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes outside development", minJWTSecretLength))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 || c.Auth.TwoFactorPendingTTL <= 0 {
		errs = append(errs, errors.New("session token TTLs must be positive"))
	}
	if c.Auth.AccessTokenTTL >= c.Auth.RefreshTokenTTL {
		errs = append(errs, errors.New("access token TTL must be shorter than refresh token TTL"))
	}
	if c.Auth.EmailVerificationTTL <= 0 || c.Auth.PasswordResetTTL <= 0 {
		errs = append(errs, errors.New("ephemeral token TTLs must be positive"))
	}
	switch c.Auth.PasswordHasher {
	case HasherBcrypt, HasherArgon2id:
	default:
		errs = append(errs, fmt.Errorf("unsupported AUTH_PASSWORD_HASHER %q", c.Auth.PasswordHasher))
	}
	if c.RateLimit.Enabled && (c.RateLimit.MaxAttempts <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate limit attempts and window must be positive"))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsDevelopment reports whether the service runs in a development environment.
func (a AppConfig) IsDevelopment() bool {
	return strings.EqualFold(a.Env, "development")
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
