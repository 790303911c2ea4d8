package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/seeder/internal/config"
)

const smallPlan = `
name: cli
seed: 42
targetTotal: 6000
recordCount: 12
chunkSize: 5
taxRate: 0
bounds: {min: 100, max: 2000}
status: {completed: 100, pending: 0, cancelled: 0}
discount: {probability: 0}
customers: 3
suppliers: 2
items: 4
`

func writePlan(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// execute runs the root command in-process from an empty directory so no
// seeder.yaml or .env leaks in.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--no-color"))
	err := root.Execute()
	return out.String(), err
}

func sandboxEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SEEDER_AUTH_USERNAME", "cli-user")
	t.Setenv("SEEDER_AUTH_PASSWORD", "cli-pass")
	t.Setenv("SEEDER_SANDBOX_DSN", ":memory:")
	t.Setenv("SEEDER_UPLOAD_INTER_BATCH_DELAY", "1ms")
	t.Setenv("SEEDER_UPLOAD_PHASE_DELAY", "1ms")
	t.Setenv("SEEDER_LOG_LEVEL", "error")
	t.Setenv("SEEDER_IDEMPOTENCY_BACKEND", "memory")
}

func TestPlanValidate(t *testing.T) {
	out, err := execute(t, "plan", "validate", "--plan", writePlan(t, smallPlan))
	require.NoError(t, err)
	assert.Contains(t, out, `plan "cli" is valid`)
	assert.Contains(t, out, "6000.00 over 12 orders")
	assert.Contains(t, out, "3 customers, 2 suppliers, 4 items")
}

func TestPlanValidate_Invalid(t *testing.T) {
	_, err := execute(t, "plan", "validate", "--plan", writePlan(t, "targetTotal: -1\n"))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = execute(t, "plan", "validate", "--plan", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, config.ErrConfigNotFound)
}

func TestRun_RequiresCredentials(t *testing.T) {
	t.Setenv("SEEDER_AUTH_USERNAME", "")
	t.Setenv("SEEDER_AUTH_PASSWORD", "")
	_, err := execute(t, "run", "--plan", writePlan(t, smallPlan), "--dry-run")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRun_DryRun(t *testing.T) {
	sandboxEnv(t)
	xlsx := filepath.Join(t.TempDir(), "summary.xlsx")
	t.Setenv("SEEDER_EXPORT_XLSX_PATH", xlsx)

	out, err := execute(t, "run", "--plan", writePlan(t, smallPlan), "--dry-run", "--count", "10")
	require.NoError(t, err, out)

	assert.Contains(t, out, "Seeding run")
	assert.Contains(t, out, "sales_orders")
	assert.Contains(t, out, "[ok] revenue")
	assert.NotContains(t, out, "Halted phases")
	assert.FileExists(t, xlsx)
}
