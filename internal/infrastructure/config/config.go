package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// DefaultSessionSecret is the development fallback. It is never safe in
// production and is reported by SecurityWarnings.
const (
	DefaultSessionSecret = "dev-secret-key-change-in-production"
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "admin123"

	minSecretLength = 32
)

type Config struct {
	Port     string `env:"PORT,      default=5002"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// TrustedProxies lists the proxy IPs or CIDRs allowed to set
	// X-Forwarded-For. Empty means the socket peer is the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	Session  SessionConfig
	Provider ProviderConfig
	Admin    AdminConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Limits   LimitsConfig
}

type SessionConfig struct {
	Secret       string        `env:"SESSION_SECRET"`
	LegacySecret string        `env:"SECRET_KEY"`
	TTL          time.Duration `env:"SESSION_TTL, default=2h"`
}

type ProviderConfig struct {
	APIKey         string        `env:"BREVO_API_KEY"`
	SendGridAPIKey string        `env:"SENDGRID_API_KEY"`
	BaseURL        string        `env:"BREVO_BASE_URL, default=https://api.brevo.com/v3"`
	SenderEmail    string        `env:"SENDER_EMAIL"`
	SenderName     string        `env:"SENDER_NAME,    default=Magazine Store"`
	MagazineName   string        `env:"MAGAZINE_NAME,  default=Magazine"`
	Timeout        time.Duration `env:"PROVIDER_TIMEOUT, default=15s"`
}

type AdminConfig struct {
	Username string `env:"ADMIN_USERNAME, default=admin"`
	Password string `env:"ADMIN_PASSWORD, default=admin123"`
	Email    string `env:"ADMIN_EMAIL"`
}

// PostgresConfig: an empty URL selects the in-memory store.
type PostgresConfig struct {
	URL string `env:"DATABASE_URL"`
}

// RedisConfig: an empty address disables logout revocation.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	DB       int    `env:"REDIS_DB,  default=0"`
	Password string `env:"REDIS_PASSWORD"`
}

type LimitsConfig struct {
	MaxCSVBytes      int64         `env:"MAX_CSV_BYTES,      default=1048576"`
	LoginMaxFailures int           `env:"LOGIN_MAX_FAILURES, default=5"`
	LoginWindow      time.Duration `env:"LOGIN_WINDOW,       default=5m"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom is Load with an explicit variable source.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = cfg.Provider.SendGridAPIKey
	}
	if cfg.Session.Secret == "" {
		cfg.Session.Secret = cfg.Session.LegacySecret
	}
	if cfg.Session.Secret == "" {
		cfg.Session.Secret = DefaultSessionSecret
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ProviderConfigured reports whether an API key and a sender address are set.
func (c *Config) ProviderConfigured() bool {
	return c.Provider.APIKey != "" && c.Provider.SenderEmail != ""
}

// SecurityWarnings lists deployment settings that are unsafe to run with.
func (c *Config) SecurityWarnings() []string {
	var out []string
	if c.Session.Secret == DefaultSessionSecret || len(c.Session.Secret) < minSecretLength {
		out = append(out, fmt.Sprintf("SESSION_SECRET is the default or shorter than %d characters", minSecretLength))
	}
	if c.Admin.Username == DefaultAdminUsername && c.Admin.Password == DefaultAdminPassword {
		out = append(out, "default admin credentials are in use; set ADMIN_USERNAME and ADMIN_PASSWORD")
	}
	if !c.ProviderConfigured() {
		out = append(out, "email provider is not configured; set BREVO_API_KEY and SENDER_EMAIL")
	}
	if c.Postgres.URL == "" {
		out = append(out, "DATABASE_URL is empty; sent emails are kept in memory only")
	}
	if c.IsProduction() && c.Redis.Addr == "" {
		out = append(out, "REDIS_ADDR is empty; logged-out sessions stay valid until they expire")
	}
	return out
}
