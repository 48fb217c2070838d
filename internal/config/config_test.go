package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal(t, "zenith-tasker", cfg.Auth.Issuer)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5.0, cfg.RateLimit.RPS)
	assert.Empty(t, cfg.CORS.AllowedOrigins)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasker.yaml")
	err := os.WriteFile(path, []byte(`
http:
  addr: ":8080"
database:
  driver: sqlite
  url: /tmp/tasker.db
log:
  format: console
ratelimit:
  burst: 3
`), 0o600)
	require.NoError(t, err)

	t.Setenv("TASKER_AUTH_JWT_SECRET", "from-env")
	t.Setenv("TASKER_LOG_LEVEL", "debug")
	t.Setenv("TASKER_CORS_ALLOWED_ORIGINS", "http://localhost:3000,https://app.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/tasker.db", cfg.Database.URL)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.CORS.AllowedOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret")
	assert.Contains(t, err.Error(), "database.url")

	cfg.Auth.JWTSecret = "x"
	cfg.Database.URL = "postgres://localhost/tasker"
	require.NoError(t, cfg.Validate())

	cfg.Database.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "mysql")
}
