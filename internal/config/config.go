package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment  string
	Server       ServerConfig
	Logging      LoggingConfig
	Verification VerificationConfig
	Ledger       LedgerConfig
	CORS         CORSConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	EnableTLS   bool
	TLSPort     int
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type VerificationConfig struct {
	DestinationURL   string
	VerificationCode string
	SessionTimeout   time.Duration
	MaxAttempts      int
}

type LedgerConfig struct {
	Shards        int
	Capacity      int
	SweepInterval time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds and validates a Config from the process environment only.
func FromEnv() (*Config, error) {
	p := &envParser{}

	cfg := &Config{
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:            p.intVar("PORT", 8000),
			ReadTimeout:     p.durationVar("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    p.durationVar("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     p.durationVar("IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: p.durationVar("SHUTDOWN_TIMEOUT", 30*time.Second),
			EnableTLS:       p.boolVar("ENABLE_TLS", false),
			TLSPort:         p.intVar("TLS_PORT", 8443),
			AutoCert:        p.boolVar("AUTO_CERT", false),
			Domain:          strings.TrimSpace(os.Getenv("DOMAIN")),
			CertFile:        strings.TrimSpace(os.Getenv("CERT_FILE")),
			KeyFile:         strings.TrimSpace(os.Getenv("KEY_FILE")),
			AutoCertDir:     getEnvOrDefault("AUTOCERT_DIR", "./certs"),
			Email:           strings.TrimSpace(os.Getenv("ACME_EMAIL")),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
		Verification: VerificationConfig{
			DestinationURL:   strings.TrimSpace(os.Getenv("DESTINATION_URL")),
			VerificationCode: strings.TrimSpace(os.Getenv("VERIFICATION_CODE")),
			SessionTimeout:   p.durationVar("SESSION_TIMEOUT", 15*time.Minute),
			MaxAttempts:      p.intVar("MAX_ATTEMPTS", 5),
		},
		Ledger: LedgerConfig{
			Shards:        p.intVar("LEDGER_SHARDS", 16),
			Capacity:      p.intVar("LEDGER_CAPACITY", 100000),
			SweepInterval: p.durationVar("SWEEP_INTERVAL", time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitCSVEnv(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		},
	}

	if err := errors.Join(append(p.errs, cfg.Validate())...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Verification.VerificationCode == "" {
		errs = append(errs, errors.New("missing required environment variable: VERIFICATION_CODE"))
	}
	if c.Verification.DestinationURL == "" {
		errs = append(errs, errors.New("missing required environment variable: DESTINATION_URL"))
	} else if u, err := url.Parse(c.Verification.DestinationURL); err != nil || !u.IsAbs() ||
		(u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("DESTINATION_URL must be an absolute http(s) URL: %q", c.Verification.DestinationURL))
	}
	if c.Verification.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("MAX_ATTEMPTS must be positive, got %d", c.Verification.MaxAttempts))
	}
	if c.Verification.SessionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TIMEOUT must be positive, got %s", c.Verification.SessionTimeout))
	}
	if c.Ledger.Shards <= 0 {
		errs = append(errs, fmt.Errorf("LEDGER_SHARDS must be positive, got %d", c.Ledger.Shards))
	}
	if c.Ledger.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.Ledger.SweepInterval))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Server.Port))
	}
	if c.Server.EnableTLS && c.Server.AutoCert && c.Server.Domain == "" {
		errs = append(errs, errors.New("DOMAIN is required when AUTO_CERT is enabled"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) GetServerAddress() string {
	if c.Server.EnableTLS {
		return fmt.Sprintf(":%d", c.Server.TLSPort)
	}
	return fmt.Sprintf(":%d", c.Server.Port)
}

type envParser struct {
	errs []error
}

func (p *envParser) intVar(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func (p *envParser) boolVar(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return fallback
	}
	return b
}

func (p *envParser) durationVar(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

func getEnvOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func splitCSVEnv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		item := strings.TrimSpace(p)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
