package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setGoTrueEnv(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "client-123.apps.googleusercontent.com")
	t.Setenv("GOTRUE_URL", "https://project.supabase.co")
	t.Setenv("GOTRUE_ANON_KEY", "anon")
	t.Setenv("GOTRUE_SERVICE_ROLE_KEY", "service")
}

func TestLoad_Defaults(t *testing.T) {
	setGoTrueEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderGoTrue, cfg.Identity.Provider)
	assert.Equal(t, "3001", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, time.Hour, cfg.RateLimit.OTPWindow)
	assert.Equal(t, 5, cfg.RateLimit.OTPMax)
	assert.Equal(t, "https://www.googleapis.com/oauth2/v3/certs", cfg.Google.JWKSURL)
	assert.True(t, cfg.Breach.Enabled)
	assert.Contains(t, cfg.Server.AllowedOrigins, "http://localhost:3000")
}

func TestLoad_CustomValues(t *testing.T) {
	setGoTrueEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("RATE_LIMIT_OTP_MAX", "3")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("ALLOWED_ORIGINS", "https://voyageur.app")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 3, cfg.RateLimit.OTPMax)
	assert.Len(t, cfg.Kafka.Brokers, 2)
	assert.Equal(t, []string{"https://voyageur.app"}, cfg.Server.AllowedOrigins)
}

func TestLoad_InvalidDuration(t *testing.T) {
	setGoTrueEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Identity:  IdentityConfig{Provider: ProviderGoTrue, GoTrueURL: "u", GoTrueAnonKey: "a", GoTrueAdminKey: "s"},
			Google:    GoogleConfig{ClientID: "client"},
			RateLimit: RateLimitConfig{OTPWindow: time.Hour, OTPMax: 5},
			Server:    ServerConfig{Env: "development"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid gotrue", mutate: func(c *Config) {}},
		{name: "missing google client", mutate: func(c *Config) { c.Google.ClientID = "" }, wantErr: "GOOGLE_CLIENT_ID"},
		{name: "missing gotrue url", mutate: func(c *Config) { c.Identity.GoTrueURL = "" }, wantErr: "GOTRUE_URL"},
		{name: "unknown provider", mutate: func(c *Config) { c.Identity.Provider = "ldap" }, wantErr: "IDENTITY_PROVIDER"},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimit.OTPMax = 0 }, wantErr: "RATE_LIMIT"},
		{
			name: "local without db password",
			mutate: func(c *Config) {
				c.Identity.Provider = ProviderLocal
				c.Auth.JWTSecret = "a-long-enough-secret-value"
			},
			wantErr: "DB_PASSWORD",
		},
		{
			name: "local with weak secret",
			mutate: func(c *Config) {
				c.Identity.Provider = ProviderLocal
				c.Database.Password = "pw"
				c.Auth.JWTSecret = "short"
			},
			wantErr: "JWT_SECRET",
		},
		{
			name: "local production needs 32 chars",
			mutate: func(c *Config) {
				c.Identity.Provider = ProviderLocal
				c.Database.Password = "pw"
				c.Server.Env = "production"
				c.Auth.JWTSecret = "only-twenty-chars!!!"
			},
			wantErr: "at least 32",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "voyageur", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=voyageur sslmode=disable", c.DSN())
}
