package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Identity provider backends
const (
	ProviderGoTrue = "gotrue"
	ProviderLocal  = "local"
)

type Config struct {
	Server    ServerConfig
	Identity  IdentityConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Google    GoogleConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Mail      MailConfig
	Kafka     KafkaConfig
	Breach    BreachConfig
}

type ServerConfig struct {
	Port           string        `env:"PORT" envDefault:"3001"`
	Env            string        `env:"ENV" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	TrustedProxies []string      `env:"TRUSTED_PROXIES" envSeparator:","`
	AppURL         string        `env:"APP_URL" envDefault:"http://localhost:3000"`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout    time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	IPRateLimit    int           `env:"IP_RATE_LIMIT_PER_MINUTE" envDefault:"30"`
}

// IdentityConfig selects the system of record for accounts and sessions
type IdentityConfig struct {
	Provider       string        `env:"IDENTITY_PROVIDER" envDefault:"gotrue"`
	GoTrueURL      string        `env:"GOTRUE_URL"`
	GoTrueAnonKey  string        `env:"GOTRUE_ANON_KEY"`
	GoTrueAdminKey string        `env:"GOTRUE_SERVICE_ROLE_KEY"`
	Timeout        time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`
	RetryAttempts  int           `env:"IDENTITY_RETRY_ATTEMPTS" envDefault:"2"`
}

type DatabaseConfig struct {
	Host              string        `env:"DB_HOST" envDefault:"localhost"`
	Port              int           `env:"DB_PORT" envDefault:"5432"`
	User              string        `env:"DB_USER" envDefault:"postgres"`
	Password          string        `env:"DB_PASSWORD"`
	Name              string        `env:"DB_NAME" envDefault:"voyageur"`
	SSLMode           string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns          int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	MinConns          int32         `env:"DB_MIN_CONNS" envDefault:"5"`
	MaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"5m"`
	MaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"1m"`
	HealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// AuthConfig drives the local provider's sessions and passcodes
type AuthConfig struct {
	JWTSecret          string        `env:"JWT_SECRET"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"1h"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	OTPTTL             time.Duration `env:"OTP_TTL" envDefault:"10m"`
	OTPMaxAttempts     int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	CleanupInterval    time.Duration `env:"CLEANUP_INTERVAL" envDefault:"10m"`
	TimingBaseDelay    time.Duration `env:"TIMING_DELAY_BASE" envDefault:"100ms"`
	TimingRandomDelay  time.Duration `env:"TIMING_DELAY_RANDOM" envDefault:"50ms"`
}

type GoogleConfig struct {
	ClientID string        `env:"GOOGLE_CLIENT_ID"`
	JWKSURL  string        `env:"GOOGLE_JWKS_URL" envDefault:"https://www.googleapis.com/oauth2/v3/certs"`
	KeyTTL   time.Duration `env:"GOOGLE_JWKS_TTL" envDefault:"1h"`
}

type RateLimitConfig struct {
	OTPWindow time.Duration `env:"RATE_LIMIT_OTP_WINDOW" envDefault:"1h"`
	OTPMax    int           `env:"RATE_LIMIT_OTP_MAX" envDefault:"5"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type MailConfig struct {
	Region    string `env:"AWS_REGION" envDefault:"us-east-1"`
	FromEmail string `env:"MAIL_FROM" envDefault:"no-reply@voyageur.app"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_ACCOUNT_TOPIC" envDefault:"account-events"`
}

type BreachConfig struct {
	Enabled bool          `env:"BREACH_CHECK_ENABLED" envDefault:"true"`
	BaseURL string        `env:"BREACH_CHECK_URL" envDefault:"https://api.pwnedpasswords.com"`
	Timeout time.Duration `env:"BREACH_CHECK_TIMEOUT" envDefault:"3s"`
}

// Load reads .env (if present) and the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if len(cfg.Server.AllowedOrigins) == 0 && cfg.Server.Env != "production" {
		cfg.Server.AllowedOrigins = developmentOrigins
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements
func (c *Config) Validate() error {
	if c.Google.ClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}
	if c.RateLimit.OTPMax <= 0 || c.RateLimit.OTPWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_OTP_MAX and RATE_LIMIT_OTP_WINDOW must be positive")
	}

	switch c.Identity.Provider {
	case ProviderGoTrue:
		if c.Identity.GoTrueURL == "" || c.Identity.GoTrueAnonKey == "" || c.Identity.GoTrueAdminKey == "" {
			return fmt.Errorf("GOTRUE_URL, GOTRUE_ANON_KEY and GOTRUE_SERVICE_ROLE_KEY are required for the gotrue provider")
		}
	case ProviderLocal:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required for the local provider")
		}
		if err := validateJWTSecret(c.Auth.JWTSecret, c.Server.Env); err != nil {
			return err
		}
	default:
		return fmt.Errorf("IDENTITY_PROVIDER must be %q or %q, got %q", ProviderGoTrue, ProviderLocal, c.Identity.Provider)
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}
	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

var developmentOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173", // Vite default
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}
