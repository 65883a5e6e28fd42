package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "service:\n  log_level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, "refit", cfg.Service.Name)
	assert.Equal(t, ".refit/ledger.json", cfg.Ledger.Path)
	assert.Equal(t, 10*time.Second, cfg.Locks.AcquireTimeout)
	assert.Contains(t, cfg.Providers, "standard")
	assert.Contains(t, cfg.Providers, "premium")
	assert.Equal(t, "cleanup", cfg.Tasks.DefaultTask)
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
service:
  name: custom
  log_level: warn
  parallelism: 8
ledger:
  path: /tmp/custom-ledger.json
  memory_window: 50
locks:
  acquire_timeout: 30s
  backup_suffix: .bak
providers:
  standard:
    quota_per_minute: 10
    quota_per_hour: 100
    default_cost: 5
    min_spacing: 500ms
tasks:
  default_task: harden
  default_budget: 75
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Service.Parallelism)
	assert.Equal(t, 50, cfg.Ledger.MemoryWindow)
	assert.Equal(t, 30*time.Second, cfg.Locks.AcquireTimeout)
	assert.Equal(t, ".bak", cfg.Locks.BackupSuffix)
	assert.Equal(t, 10.0, cfg.Providers["standard"].QuotaPerMinute)
	assert.Equal(t, 500*time.Millisecond, cfg.Providers["standard"].MinSpacing)
	// Unnamed providers are still filled in from defaults.
	assert.Equal(t, 20.0, cfg.Providers["premium"].QuotaPerMinute)
	assert.Equal(t, "harden", cfg.Tasks.DefaultTask)
	assert.Equal(t, 75.0, cfg.Tasks.DefaultBudget)
}

func TestLoadDirectoryResolvesConfigYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("service:\n  log_level: info\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Service.LogLevel)

	_, err = Load(t.TempDir())
	require.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad log level", "service:\n  log_level: verbose\n", "log_level"},
		{"zero quota", "providers:\n  standard:\n    quota_per_minute: 0\n    quota_per_hour: 100\n", "quota_per_minute"},
		{"hour below minute", "providers:\n  standard:\n    quota_per_minute: 100\n    quota_per_hour: 10\n", "quota_per_hour"},
		{"negative cost model", "workers:\n  tidy:\n    cost_model:\n      base: -1\n", "cost_model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestEnvInterpolation(t *testing.T) {
	t.Setenv("REFIT_TEST_LEDGER", "/tmp/env-ledger.json")
	path := writeConfig(t, "ledger:\n  path: ${REFIT_TEST_LEDGER}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env-ledger.json", cfg.Ledger.Path)

	// Undefined variables are left untouched.
	path = writeConfig(t, "ledger:\n  path: ${REFIT_TEST_UNDEFINED_VAR}\n")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${REFIT_TEST_UNDEFINED_VAR}", cfg.Ledger.Path)
}

func TestDiscoverFallsBackToDefaults(t *testing.T) {
	t.Setenv("REFIT_CONFIG", "")
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmp))
	defer func() { _ = os.Chdir(cwd) }()

	cfg, source, err := Discover()
	require.NoError(t, err)
	assert.Empty(t, source)
	assert.Equal(t, "refit", cfg.Service.Name)
}

func TestDiscoverHonorsEnvOverride(t *testing.T) {
	path := writeConfig(t, "service:\n  log_level: warn\n")
	t.Setenv("REFIT_CONFIG", path)

	cfg, source, err := Discover()
	require.NoError(t, err)
	assert.Equal(t, path, source)
	assert.Equal(t, "warn", cfg.Service.LogLevel)
}
