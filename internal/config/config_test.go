package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, time.Duration(0), cfg.Server.RequestTimeout)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, 1, cfg.LLM.Retry.MaxAttempts)
	assert.Equal(t, "sale-images", cfg.Storage.Bucket)
	assert.Equal(t, uint(1600), cfg.Imaging.MaxWidth)
	assert.Equal(t, 98, cfg.Imaging.Quality)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
  request_timeout: 45s
llm:
  provider: local
  retry:
    max_attempts: 3
storage:
  bucket: flyers
cors:
  allowed_origins: ["http://localhost:8081"]
`), 0o600))

	t.Setenv("DATABASE_URL", "postgres://localhost/smartrecipe")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SMARTRECIPE_LOGGING_LEVEL", "debug")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, ProviderLocal, cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.LLM.Retry.MaxAttempts)
	assert.Equal(t, "flyers", cfg.Storage.Bucket)
	assert.Equal(t, "http://localhost:9000", cfg.Storage.Endpoint)
	assert.Equal(t, []string{"http://localhost:8081"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "postgres://localhost/smartrecipe", cfg.Database.URL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, name := range []string{"DATABASE_URL", "JWT_SECRET", "GEMINI_API_KEY"} {
		t.Setenv(name, "")
	}
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
	assert.Contains(t, err.Error(), "auth.jwt_secret")
	assert.Contains(t, err.Error(), "llm.gemini.api_key")

	cfg.LLM.Provider = "openai"
	assert.Contains(t, cfg.Validate().Error(), `unknown llm.provider "openai"`)
}
