package config

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultDevDSN = "sqlite:data/app.db"

type Config struct {
	Env          string `env:"APP_ENV"          envDefault:"dev"`
	Addr         string `env:"APP_ADDR"         envDefault:"127.0.0.1:8080"`
	PublicURLRaw string `env:"APP_PUBLIC_URL"`
	FrontendURL  string `env:"APP_FRONTEND_URL"`
	DBDSN        string `env:"APP_DB_DSN"`
	LogLevel     string `env:"APP_LOG_LEVEL"    envDefault:"info"`
	Debug        bool   `env:"APP_DEBUG"`

	VerificationSecret string        `env:"APP_VERIFICATION_SECRET"`
	ResetTokenTTL      time.Duration `env:"APP_RESET_TOKEN_TTL"     envDefault:"1h"`

	RedisAddr        string        `env:"APP_REDIS_ADDR"`
	RedisPassword    string        `env:"APP_REDIS_PASSWORD"`
	RedisDB          int           `env:"APP_REDIS_DB"`
	ActiveProfileTTL time.Duration `env:"APP_ACTIVE_PROFILE_TTL" envDefault:"720h"`

	SMTPHost      string `env:"APP_SMTP_HOST"`
	SMTPPort      int    `env:"APP_SMTP_PORT"       envDefault:"587"`
	SMTPUsername  string `env:"APP_SMTP_USERNAME"`
	SMTPPassword  string `env:"APP_SMTP_PASSWORD"`
	SMTPTLSMode   string `env:"APP_SMTP_TLS_MODE"   envDefault:"starttls"`
	SMTPFromEmail string `env:"APP_SMTP_FROM_EMAIL"`
	SMTPFromName  string `env:"APP_SMTP_FROM_NAME"  envDefault:"StreamAccounts"`

	PwnedCheck  bool   `env:"APP_PWNED_CHECK"   envDefault:"true"`
	PwnedAPIURL string `env:"APP_PWNED_API_URL"`

	OTelEndpoint string `env:"APP_OTEL_ENDPOINT"`

	AdminBootstrapEmail    string `env:"APP_ADMIN_BOOTSTRAP_EMAIL"`
	AdminBootstrapPassword string `env:"APP_ADMIN_BOOTSTRAP_PASSWORD"`

	PublicURL *url.URL `env:"-"`
}

// Load reads an optional dotenv file (APP_ENV_FILE, or ./.env when present)
// into the process environment and then parses it.
func Load() (Config, error) {
	path := os.Getenv("APP_ENV_FILE")
	if path == "" {
		if _, err := os.Stat(".env"); err == nil {
			path = ".env"
		}
	}
	if path != "" {
		if err := loadDotEnvFile(path, os.Setenv, os.Getenv); err != nil {
			return Config{}, fmt.Errorf("APP_ENV_FILE: %w", err)
		}
	}
	return LoadFromEnv(environMap(os.Environ()))
}

func LoadFromEnv(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, errors.New("APP_LOG_LEVEL: must be one of debug, info, warn, error")
	}

	if cfg.PublicURLRaw != "" {
		parsed, err := parseHTTPURL(cfg.PublicURLRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_PUBLIC_URL: %w", err)
		}
		cfg.PublicURL = parsed
	}
	if cfg.FrontendURL != "" {
		if _, err := parseHTTPURL(cfg.FrontendURL); err != nil {
			return Config{}, fmt.Errorf("APP_FRONTEND_URL: %w", err)
		}
	} else if cfg.PublicURL != nil {
		cfg.FrontendURL = cfg.PublicURL.String()
	} else {
		cfg.FrontendURL = "http://localhost:3000"
	}

	if cfg.DBDSN == "" && !cfg.IsProd() {
		cfg.DBDSN = defaultDevDSN
	}
	if cfg.DBDSN != "" {
		if _, _, err := cfg.Database(); err != nil {
			return Config{}, err
		}
	}

	if cfg.ResetTokenTTL <= 0 {
		return Config{}, errors.New("APP_RESET_TOKEN_TTL: must be > 0")
	}
	if cfg.ActiveProfileTTL <= 0 {
		return Config{}, errors.New("APP_ACTIVE_PROFILE_TTL: must be > 0")
	}

	switch cfg.SMTPTLSMode {
	case "tls", "starttls", "none":
	default:
		return Config{}, errors.New("APP_SMTP_TLS_MODE: must be one of tls, starttls, none")
	}
	if cfg.SMTPHost != "" && cfg.SMTPFromEmail == "" {
		return Config{}, errors.New("APP_SMTP_FROM_EMAIL: required when APP_SMTP_HOST is set")
	}

	cfg.AdminBootstrapEmail = strings.TrimSpace(strings.ToLower(cfg.AdminBootstrapEmail))
	if cfg.AdminBootstrapPassword != "" && cfg.AdminBootstrapEmail == "" {
		return Config{}, errors.New("APP_ADMIN_BOOTSTRAP_EMAIL: required when APP_ADMIN_BOOTSTRAP_PASSWORD is set")
	}

	if cfg.IsProd() {
		if cfg.PublicURL == nil {
			return Config{}, errors.New("APP_PUBLIC_URL: required in prod")
		}
		if cfg.DBDSN == "" {
			return Config{}, errors.New("APP_DB_DSN: required in prod")
		}
		if len(cfg.VerificationSecret) < 32 {
			return Config{}, errors.New("APP_VERIFICATION_SECRET: must be at least 32 bytes in prod")
		}
	}

	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

func (c Config) SMTPConfigured() bool { return c.SMTPHost != "" }

// Database splits APP_DB_DSN into a driver ("postgres" or "sqlite") and the
// value that driver opens.
func (c Config) Database() (driver, target string, err error) {
	switch {
	case strings.HasPrefix(c.DBDSN, "postgres://"), strings.HasPrefix(c.DBDSN, "postgresql://"):
		return "postgres", c.DBDSN, nil
	case strings.HasPrefix(c.DBDSN, "sqlite:"):
		path := strings.TrimPrefix(c.DBDSN, "sqlite:")
		if path == "" {
			return "", "", errors.New("APP_DB_DSN: sqlite path is empty")
		}
		return "sqlite", path, nil
	default:
		return "", "", errors.New("APP_DB_DSN: must start with postgres:// or sqlite:")
	}
}

func parseHTTPURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return nil, errors.New("must be an absolute URL")
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return nil, errors.New("scheme must be http or https")
	}
	return parsed, nil
}

// loadDotEnvFile sets KEY=VALUE pairs from path without overriding
// variables that are already set. Blank values and malformed lines are
// skipped.
func loadDotEnvFile(path string, setenv func(string, string) error, getenv func(string) string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))
		if key == "" || value == "" || getenv(key) != "" {
			continue
		}
		if err := setenv(key, value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return sc.Err()
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func environMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
