package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, ":8081", cfg.MCPAddr)
	assert.Equal(t, "http://localhost:9090", cfg.GeneratorURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoad_FromYAML(t *testing.T) {
	dir := t.TempDir()
	doc := `listenAddr: ":9000"
generatorUrl: "http://gen.internal:8000"
redisUrl: "redis://localhost:6379/1"
sessionTtl: 15m
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contentplan.yml"), []byte(doc), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "http://gen.internal:8000", cfg.GeneratorURL)
	assert.Equal(t, "redis://localhost:6379/1", cfg.RedisURL)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// Unset fields still get defaults.
	assert.Equal(t, ":8081", cfg.MCPAddr)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	doc := `listenAddr: ":9000"
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contentplan.yml"), []byte(doc), 0o644))

	t.Setenv("CONTENTPLAN_LISTEN_ADDR", ":7070")
	t.Setenv("CONTENTPLAN_LOG_LEVEL", "warn")
	t.Setenv("REDIS_URL", "redis://env:6379/0")
	t.Setenv("CONTENTPLAN_SESSION_TTL", "90s")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "redis://env:6379/0", cfg.RedisURL)
	assert.Equal(t, 90*time.Second, cfg.SessionTTL)
}

func TestLoad_DotenvFeedsOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("CONTENTPLAN_GENERATOR_URL=http://dotenv:9999\n"), 0o644))

	// godotenv does not override variables already set in the environment,
	// so clear it for the duration of the test. Load sets it process-wide,
	// so restore afterwards too.
	t.Setenv("CONTENTPLAN_GENERATOR_URL", "")
	os.Unsetenv("CONTENTPLAN_GENERATOR_URL")
	t.Cleanup(func() { os.Unsetenv("CONTENTPLAN_GENERATOR_URL") })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://dotenv:9999", cfg.GeneratorURL)
}

func TestLoad_BadYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contentplan.yml"),
		[]byte("listenAddr: [unclosed"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}
