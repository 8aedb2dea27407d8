// Package config loads the minimal settings surface named in spec §6:
// database DSN, cache URL, JWT signing secret and lifetimes, webhook
// secret, per-country provider base URLs/keys, CORS origin list, log
// level, debug flag. Loading mechanics — env vars via envdecode, an
// optional .env via godotenv, an optional YAML file — follow the
// teacher's pkg/config package; the fields are this system's own.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/coderTtxi12/loan-system/internal/logging"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the Postgres connection.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifeSecs int    `yaml:"conn_max_lifetime_seconds" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// CacheConfig controls the best-effort Redis cache (§9 "Caching" note).
type CacheConfig struct {
	URL       string `yaml:"url" env:"CACHE_URL"`
	LoanTTL   int    `yaml:"loan_ttl_seconds" env:"CACHE_LOAN_TTL_SECONDS"`
	StatsTTL  int    `yaml:"stats_ttl_seconds" env:"CACHE_STATS_TTL_SECONDS"`
	DialMSecs int    `yaml:"dial_timeout_ms" env:"CACHE_DIAL_TIMEOUT_MS"`
}

// SecurityConfig holds the PII master secret and webhook HMAC secret.
type SecurityConfig struct {
	PIIMasterSecret string `yaml:"pii_master_secret" env:"PII_MASTER_SECRET"`
	WebhookSecret   string `yaml:"webhook_secret" env:"WEBHOOK_SECRET"`
}

// JWTConfig controls bearer-token validation (issuance is out of scope
// per spec §1; this config only feeds the authn middleware that consumes
// tokens).
type JWTConfig struct {
	Secret           string `yaml:"secret" env:"JWT_SECRET"`
	AccessLifetimeS  int    `yaml:"access_lifetime_seconds" env:"JWT_ACCESS_LIFETIME_SECONDS"`
	RefreshLifetimeS int    `yaml:"refresh_lifetime_seconds" env:"JWT_REFRESH_LIFETIME_SECONDS"`
}

// CountryProviderConfig holds the per-country simulated banking-provider
// base URL + key, addressed by ISO country code.
type CountryProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// CORSConfig lists allowed origins for the HTTP layer.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// Config is the top-level settings object.
type Config struct {
	Server    ServerConfig                     `yaml:"server"`
	Database  DatabaseConfig                   `yaml:"database"`
	Cache     CacheConfig                      `yaml:"cache"`
	Security  SecurityConfig                   `yaml:"security"`
	JWT       JWTConfig                        `yaml:"jwt"`
	Providers map[string]CountryProviderConfig `yaml:"providers"`
	CORS      CORSConfig                       `yaml:"cors"`
	Logging   logging.Config                   `yaml:"logging"`
	Debug     bool                             `yaml:"debug" env:"DEBUG"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifeSecs: 300,
		},
		Cache: CacheConfig{
			LoanTTL:   300,
			StatsTTL:  120,
			DialMSecs: 500,
		},
		JWT: JWTConfig{
			AccessLifetimeS:  900,
			RefreshLifetimeS: 604800,
		},
		Providers: map[string]CountryProviderConfig{},
		Logging:   logging.Config{Level: "info", Format: "text"},
	}
}

// Load reads an optional .env, an optional YAML file named by CONFIG_FILE,
// then env-var overrides, mirroring the teacher's load order.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
