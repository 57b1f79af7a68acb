package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "assistant", cfg.Analysis.Backend)
	assert.Equal(t, 3, cfg.Analysis.MaxAttempts)
	assert.Equal(t, 1000, cfg.Analysis.BaseDelayMs)
	assert.Equal(t, 25, cfg.Service.TimeoutSecs)
	assert.Equal(t, "memory", cfg.Queue.Driver)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, "log", cfg.Notify.Provider)
	assert.Equal(t, int64(10<<20), cfg.Intake.MaxFileBytes)
	assert.Equal(t, "gemini-2.5-pro", cfg.Gemini.Model)
	assert.True(t, cfg.Queue.RequeueOnBoot)
	assert.Equal(t, 30, cfg.Queue.DrainSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
analysis:
  backend: service
  max_attempts: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "service", cfg.Analysis.Backend)
	assert.Equal(t, 5, cfg.Analysis.MaxAttempts)
	// Defaults still apply for unset values
	assert.Equal(t, 1000, cfg.Analysis.BaseDelayMs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ASSESS_STORE_DRIVER", "postgres")
	t.Setenv("ASSESS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("ASSESS_SERVER_PORT", "3000")
	t.Setenv("ASSESS_QUEUE_DRIVER", "redis")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Queue.Driver)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/assess"
	cfg.Server.Port = 8080
	cfg.Auth.JWTSecret = "secret"
	cfg.Analysis.Backend = "assistant"
	cfg.Analysis.MaxAttempts = 3
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Queue.Driver = "memory"
	cfg.Notify.Provider = "log"
	return cfg
}

func TestValidateServe_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.Auth.JWTSecret = ""
	cfg.Anthropic.Key = ""

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "auth.jwt_secret is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidate_SQLiteNeedsNoURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = ""

	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidate_VisionBackendKeys(t *testing.T) {
	cfg := validDefaults()
	cfg.Analysis.Backend = "vision"

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini.key is required")
	assert.Contains(t, err.Error(), "mistral.key is required")

	cfg.Gemini.Key = "g"
	cfg.Mistral.Key = "m"
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidate_ServiceBackendNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Analysis.Backend = "service"

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service.base_url is required")
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := validDefaults()
	cfg.Analysis.Backend = "oracle"

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis.backend")
}

func TestValidate_WorkerNeedsRedis(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.driver=redis")

	cfg.Queue.Driver = "redis"
	assert.NoError(t, cfg.Validate("worker"))
}

func TestValidate_SESNeedsFromAddress(t *testing.T) {
	cfg := validDefaults()
	cfg.Notify.Provider = "ses"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify.from_address")
}

func TestLoadEnvOnlySecrets(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("ASSESS_ANTHROPIC_KEY", "sk-ant-env")
	t.Setenv("ASSESS_STORE_DATABASE_URL", "postgres://db/assess")
	t.Setenv("ASSESS_AUTH_JWT_SECRET", "shh")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-env", cfg.Anthropic.Key)
	assert.Equal(t, "postgres://db/assess", cfg.Store.DatabaseURL)
	assert.Equal(t, "shh", cfg.Auth.JWTSecret)
	assert.Empty(t, cfg.Gemini.Key)
}
