package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/courier")
	t.Setenv("APP_JWT_SECRET", "secret")
}

func TestParse_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.True(t, cfg.TrustStatelessToken)
	assert.Equal(t, 168*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.SessionSweepInterval)
	assert.Equal(t, 2*time.Minute, cfg.TokenClockSkew)
	assert.Equal(t, 10*time.Minute, cfg.IdempotencyTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.OTLPEndpoint)
}

func TestParse_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "development")
	t.Setenv("TRUST_STATELESS_TOKEN", "false")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example.com,https://driver.example.com")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr())
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.TrustStatelessToken)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, []string{"https://shop.example.com", "https://driver.example.com"}, cfg.CORSAllowedOrigins)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing database url",
			env:     map[string]string{"APP_JWT_SECRET": "secret"},
			wantErr: "DATABASE_URL is required",
		},
		{
			name:    "missing jwt secret",
			env:     map[string]string{"DATABASE_URL": "postgres://x"},
			wantErr: "APP_JWT_SECRET is required",
		},
		{
			name:    "unknown environment",
			env:     map[string]string{"DATABASE_URL": "postgres://x", "APP_JWT_SECRET": "s", "APP_ENV": "staging"},
			wantErr: "APP_ENV must be",
		},
		{
			name:    "zero session ttl",
			env:     map[string]string{"DATABASE_URL": "postgres://x", "APP_JWT_SECRET": "s", "SESSION_TTL": "0s"},
			wantErr: "SESSION_TTL must be positive",
		},
		{
			name:    "unparseable duration",
			env:     map[string]string{"DATABASE_URL": "postgres://x", "APP_JWT_SECRET": "s", "IDEMPOTENCY_TTL": "soon"},
			wantErr: "parse environment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv("APP_JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Parse()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("APP_JWT_SECRET", "")
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("APP_JWT_SECRET")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_URL=postgres://from-file\nAPP_JWT_SECRET=file-secret\n"), 0o600))

	cfg, err := Load(zap.NewNop(), path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://from-file", cfg.DatabaseURL)
	assert.Equal(t, "file-secret", cfg.JWTSecret)
}

func TestLoad_MissingFileFallsBackToEnvironment(t *testing.T) {
	setRequired(t)

	cfg, err := Load(zap.NewNop(), filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.JWTSecret)
}
