package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config holds everything the server reads from the environment
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	JWTSecret   string `env:"APP_JWT_SECRET"`
	Environment string `env:"APP_ENV" envDefault:"production"`

	FirebaseCredentialsBase64 string `env:"FIREBASE_CREDENTIALS_BASE64"`
	FirebaseCredentialsFile   string `env:"FIREBASE_CREDENTIALS_FILE" envDefault:"./firebase-service-account.json"`

	TrustStatelessToken  bool          `env:"TRUST_STATELESS_TOKEN" envDefault:"true"`
	SessionTTL           time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"5m"`
	TokenClockSkew       time.Duration `env:"TOKEN_CLOCK_SKEW" envDefault:"2m"`
	IdempotencyTTL       time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"10m"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads .env when present, then the process environment
func Load(logger *zap.Logger, files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		logger.Warn("no .env file found, using environment variables", zap.Error(err))
	}
	return Parse()
}

// Parse reads the process environment without touching .env files
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or out-of-range setting at once
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("APP_JWT_SECRET is required"))
	}
	if c.Environment != EnvProduction && c.Environment != EnvDevelopment {
		errs = append(errs, fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvProduction, EnvDevelopment, c.Environment))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.SessionSweepInterval <= 0 {
		errs = append(errs, errors.New("SESSION_SWEEP_INTERVAL must be positive"))
	}
	if c.TokenClockSkew < 0 {
		errs = append(errs, errors.New("TOKEN_CLOCK_SKEW must not be negative"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// IsDevelopment selects the development logger and demo seed data
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return ":" + c.Port
}

// HasFirebaseCredentials reports whether any push credential source is usable
func (c *Config) HasFirebaseCredentials() bool {
	if c.FirebaseCredentialsBase64 != "" {
		return true
	}
	_, err := os.Stat(c.FirebaseCredentialsFile)
	return err == nil
}
