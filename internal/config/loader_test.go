package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
models:
  gpt-4o:
    provider: OpenAI
    input_cost_per_1k: 0.25
    output_cost_per_1k: 1.0
    enabled: true
  mock-namer:
    provider: mock
    enabled: ${MOCK_ENABLED:false}
generation:
  default_model: gpt-4o
quota:
  hourly_limit: ${HOURLY:50}
`

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadFromAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", baseYAML)
	t.Setenv("APP_ENV", "test")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, DispatchSequential, cfg.Generation.DispatchMode)
	assert.Equal(t, 120*time.Second, cfg.Generation.SessionTimeout)
	assert.Equal(t, 30*time.Second, cfg.Generation.AdapterTimeout)
	assert.Equal(t, 10, cfg.Generation.MaxNames)
	assert.Equal(t, 50, cfg.Quota.HourlyLimit)
	assert.Equal(t, 200, cfg.Quota.DailyLimit)
	assert.InDelta(t, 0.8, cfg.Quota.Budget.AlertThreshold, 1e-9)
	assert.InDelta(t, 0.95, cfg.Monitoring.HealthyThreshold, 1e-9)
	assert.Equal(t, "@every 1m", cfg.Monitoring.RefreshCron)

	gpt := cfg.Models["gpt-4o"]
	assert.Equal(t, "openai", gpt.Provider)
	assert.Equal(t, "gpt-4o", gpt.APIModel)
	assert.False(t, cfg.Models["mock-namer"].Enabled)
}

func TestLoadFromExpandsEnvAndMergesEnvFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", baseYAML)
	writeConfig(t, dir, "config.staging.yaml", "generation:\n  dispatch_mode: CONCURRENT\n")
	t.Setenv("APP_ENV", "staging")
	t.Setenv("MOCK_ENABLED", "true")
	t.Setenv("HOURLY", "7")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, DispatchConcurrent, cfg.Generation.DispatchMode)
	assert.True(t, cfg.Models["mock-namer"].Enabled)
	assert.Equal(t, 7, cfg.Quota.HourlyLimit)
}

func TestLoadFromRejectsUnknownDefaultModel(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "generation:\n  default_model: nope\n")
	t.Setenv("APP_ENV", "test")

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_model")
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	require.Error(t, err)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("NS_SET", "value")

	assert.Equal(t, "a=value", expandEnv("a=${NS_SET}"))
	assert.Equal(t, "a=fallback", expandEnv("a=${NS_UNSET_VAR:fallback}"))
	assert.Equal(t, "a=", expandEnv("a=${NS_UNSET_VAR:}"))
	assert.Equal(t, "a=${NS_UNSET_VAR}", expandEnv("a=${NS_UNSET_VAR}"))
}

func TestManagerReloadNotifiesListeners(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", baseYAML)
	t.Setenv("APP_ENV", "test")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	m := NewManager(dir, cfg)

	var seen *Config
	m.OnChange(func(c *Config) { seen = c })

	writeConfig(t, dir, "config.yaml", baseYAML+"system:\n  maintenance: true\n")
	require.NoError(t, m.Reload())

	require.NotNil(t, seen)
	assert.True(t, m.Current().System.Maintenance)
	assert.Same(t, seen, m.Current())
}

func TestManagerReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", baseYAML)
	t.Setenv("APP_ENV", "test")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	m := NewManager(dir, cfg)

	writeConfig(t, dir, "config.yaml", "models: [broken")
	require.Error(t, m.Reload())
	assert.Same(t, cfg, m.Current())
}

func TestManagerSwapCallsListenersInOrder(t *testing.T) {
	m := NewStaticManager(&Config{})

	var calls []string
	m.OnChange(func(*Config) { calls = append(calls, "first") })
	m.OnChange(func(*Config) {
		calls = append(calls, "second")
		// 回调中注册新的订阅者不会死锁，也不会在本轮被调用
		m.OnChange(func(*Config) { calls = append(calls, "late") })
	})

	next := &Config{}
	m.Swap(next)
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Same(t, next, m.Current())
}
