package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig writes a config that keeps all state under a temp directory.
func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`service:
  log_level: error
  parallelism: 2
state:
  path: %s
ledger:
  path: %s
locks:
  acquire_timeout: 2s
`, filepath.Join(dir, "state.db"), filepath.Join(dir, "ledger.json"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath
}

func TestUnknownCommand(t *testing.T) {
	assert.Equal(t, 1, runCLI([]string{"bogus"}))
}

func TestNoArgsPrintsUsage(t *testing.T) {
	assert.Equal(t, 1, runCLI(nil))
}

func TestVersionCommand(t *testing.T) {
	assert.Equal(t, 0, runCLI([]string{"version"}))
	assert.Equal(t, 0, runCLI([]string{"version", "--json"}))
	assert.Equal(t, 0, runCLI([]string{"--version"}))
}

func TestClassifyCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "svc.go")
	require.NoError(t, os.WriteFile(path, []byte("func a() {}\n"), 0o644))

	assert.Equal(t, 0, runCLI([]string{"classify", path}))
	assert.Equal(t, 0, runCLI([]string{"classify", path, "--json"}))
	assert.Equal(t, 1, runCLI([]string{"classify", filepath.Join(dir, "missing.go")}))
	assert.Equal(t, 1, runCLI([]string{"classify"}))
}

func TestWorkersCommand(t *testing.T) {
	cfg := testConfig(t)
	assert.Equal(t, 0, runCLI([]string{"workers", "--config", cfg}))
	assert.Equal(t, 0, runCLI([]string{"workers", "--config", cfg, "--json"}))
}

func TestRunDryRunWritesReport(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "svc.go")
	original := "func a() {}   \n"
	require.NoError(t, os.WriteFile(target, []byte(original), 0o644))
	reportPath := filepath.Join(dir, "report.json")

	code := runCLI([]string{"run", "--config", cfg, "--task", "cleanup", "--report", reportPath, target})
	assert.Equal(t, 0, code)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"dry_run": true`)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, original, string(got), "dry run must not modify the target")
}

func TestRunApplyModifiesTarget(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "svc.go")
	require.NoError(t, os.WriteFile(target, []byte("func a() {}   \n"), 0o644))

	code := runCLI([]string{"run", "--config", cfg, "--task", "cleanup", "--apply", target})
	assert.Equal(t, 0, code)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "func a() {}\n", string(got))
}

func TestRunExplicitZeroBudgetIsUnlimited(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	// A default budget below any worker's base cost drops every
	// recommendation unless the flag overrides it.
	body := fmt.Sprintf(`service:
  log_level: error
state:
  path: %s
ledger:
  path: %s
tasks:
  default_budget: 0.001
`, filepath.Join(dir, "state.db"), filepath.Join(dir, "ledger.json"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	target := filepath.Join(dir, "svc.go")
	require.NoError(t, os.WriteFile(target, []byte("func a() {}   \n"), 0o644))

	defaulted := filepath.Join(dir, "defaulted.json")
	require.Equal(t, 0, runCLI([]string{"run", "--config", cfgPath, "--report", defaulted, target}))
	data, err := os.ReadFile(defaulted)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"worker": "tidy"`, "config default budget drops every recommendation")

	unlimited := filepath.Join(dir, "unlimited.json")
	require.Equal(t, 0, runCLI([]string{"run", "--config", cfgPath, "--budget", "0", "--report", unlimited, target}))
	data, err = os.ReadFile(unlimited)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"worker": "tidy"`, "--budget 0 lifts the cap")
}

func TestRunRejectsUnknownTask(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "svc.go")
	require.NoError(t, os.WriteFile(target, []byte("func a() {}\n"), 0o644))

	assert.Equal(t, 1, runCLI([]string{"run", "--config", cfg, "--task", "demolish", target}))
}

func TestLedgerStatsCommand(t *testing.T) {
	cfg := testConfig(t)
	assert.Equal(t, 0, runCLI([]string{"ledger", "stats", "--config", cfg}))
	assert.Equal(t, 1, runCLI([]string{"ledger"}))
	assert.Equal(t, 1, runCLI([]string{"ledger", "bogus"}))
}

func TestSessionsCommandAfterRun(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "svc.go")
	require.NoError(t, os.WriteFile(target, []byte("func a() {}\n"), 0o644))

	require.Equal(t, 0, runCLI([]string{"run", "--config", cfg, target}))
	assert.Equal(t, 0, runCLI([]string{"sessions", "--config", cfg}))
}
