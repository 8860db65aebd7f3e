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

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "reporteval.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Batch.MaxConcurrentReports)
	assert.Equal(t, int64(4096), cfg.Anthropic.MaxTokens)
	assert.Equal(t, 5, cfg.Anthropic.RateLimit)
	assert.InDelta(t, 0.8, cfg.Correct.SimilarityThreshold, 0.001)
	assert.InDelta(t, 0.05, cfg.Correct.AmbiguityMargin, 0.001)
	assert.Equal(t, []string{"Report ID", "Report"}, cfg.Truth.IDColumns)
	assert.Equal(t, "results/accuracy_reports", cfg.Output.AccuracyDir)
	assert.Equal(t, "llm_timing_log.csv", cfg.Output.TimingLog)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/reporteval
log:
  level: debug
  format: console
server:
  port: 9090
correct:
  similarity_threshold: 0.75
batch:
  max_concurrent_reports: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 0.75, cfg.Correct.SimilarityThreshold, 0.001)
	assert.Equal(t, 10, cfg.Batch.MaxConcurrentReports)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.05, cfg.Correct.AmbiguityMargin, 0.001)
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

	t.Setenv("REPORTEVAL_STORE_DRIVER", "postgres")
	t.Setenv("REPORTEVAL_LOG_LEVEL", "warn")

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

	t.Setenv("REPORTEVAL_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestValidateExtract(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "anthropic.model is required")

	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Anthropic.Model = "claude-sonnet-4-5-20250929"
	assert.NoError(t, cfg.Validate("extract"))
}

func TestValidateServe(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Server.Port = 9090
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateBadDriver(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "mysql"
	err := cfg.Validate("summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
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
