package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPlanFromBytes(t *testing.T) {
	t.Run("minimal plan gets defaults", func(t *testing.T) {
		p, err := LoadPlanFromBytes([]byte(`
name: month
targetTotal: 1000000
recordCount: 1800
`))
		require.NoError(t, err)

		assert.Equal(t, 1000000.0, p.TargetTotal)
		assert.Equal(t, 0.58, p.CostRatio)
		assert.Equal(t, 0.70, p.CostRatioMax)
		require.NotNil(t, p.TaxRate)
		assert.Equal(t, 0.15, *p.TaxRate)
		assert.Equal(t, 0.1, p.ToleranceFraction)
		assert.Equal(t, BoundsConfig{Min: 200, Max: 25000}, p.Bounds)
		assert.Equal(t, StatusWeights{Completed: 92, Pending: 6, Cancelled: 2}, p.Status)
		assert.NotZero(t, p.Seed)
		assert.Equal(t, 30, p.WindowDays)
	})

	t.Run("explicit zero tax and fixed cost ratio", func(t *testing.T) {
		p, err := LoadPlanFromBytes([]byte(`
targetTotal: 33333
recordCount: 60
costRatio: 0.6
costRatioMax: 0.6
taxRate: 0
discount:
  probability: 0
`))
		require.NoError(t, err)
		assert.Equal(t, 0.0, *p.TaxRate)
		assert.Equal(t, 0.0, *p.Discount.Probability)
		assert.Equal(t, 0.6, p.CostRatioMax)
	})

	t.Run("trajectory", func(t *testing.T) {
		p, err := LoadPlanFromBytes([]byte(`
trajectory:
  - {monthsAgo: 3, target: 50000, count: 10}
  - {monthsAgo: 2, target: 80000, count: 10}
  - {monthsAgo: 1, target: 120000, count: 10}
`))
		require.NoError(t, err)
		assert.Len(t, p.Trajectory, 3)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadPlanFromBytes([]byte("targetTotal: ["))
		assert.Error(t, err)
	})
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative target", "targetTotal: -1"},
		{"inverted bounds", "bounds: {min: 500, max: 100}"},
		{"cost ratio above one", "costRatio: 0.9\ncostRatioMax: 1.2"},
		{"duplicate month", "trajectory: [{monthsAgo: 1, target: 1, count: 1}, {monthsAgo: 1, target: 2, count: 1}]"},
		{"zero category weight", "categories: [{name: small, weight: 0, min: 1, max: 2}]"},
		{"unknown skip", "skip: [payroll]"},
		{"bad end date", "endDate: 2024/01/01"},
		{"tolerance above one", "toleranceFraction: 2"},
		{"nan target", "targetTotal: .nan"},
		{"infinite target", "targetTotal: .inf"},
		{"nan bounds", "bounds: {min: .nan, max: 100}"},
		{"infinite upper bound", "bounds: {min: 1, max: .inf}"},
		{"nan tax rate", "taxRate: .nan"},
		{"nan tolerance", "toleranceFraction: .nan"},
		{"nan status weight", "status: {completed: .nan, pending: 1, cancelled: 0}"},
		{"nan discount probability", "discount: {probability: .nan}"},
		{"infinite category max", "categories: [{name: big, weight: 1, min: 1, max: .inf}]"},
		{"negative infinite month target", "trajectory: [{monthsAgo: 0, target: -.inf, count: 1}]"},
		{"infinite purchases target", "purchases: {targetTotal: .inf, recordCount: 2}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPlanFromBytes([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadPlanFromFile(t *testing.T) {
	_, err := LoadPlanFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)

	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targetTotal: 100\nrecordCount: 2\n"), 0o600))
	p, err := LoadPlanFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, p.RecordCount)
}

func TestPlanOverridesAndWindow(t *testing.T) {
	p, err := LoadPlanFromBytes([]byte(`
trajectory: [{monthsAgo: 1, target: 10, count: 1}]
endDate: 2024-03-31
windowDays: 30
`))
	require.NoError(t, err)

	require.NoError(t, p.ApplyOverrides(Overrides{TargetTotal: 5000, ChunkSize: 7, InterBatchDelaySeconds: 0.5}))
	assert.Nil(t, p.Trajectory)
	assert.Equal(t, 5000.0, p.TargetTotal)
	assert.Equal(t, 7, p.EffectiveChunkSize(20))
	assert.Equal(t, 500*time.Millisecond, p.InterBatchDelay(time.Second))

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), p.End(now))
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), p.Start(now))
	assert.False(t, p.Skips("sales"))
}

func TestPlanNonFinite(t *testing.T) {
	_, err := LoadPlanFromBytes([]byte("targetTotal: .nan\nrecordCount: 3\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "targetTotal must be a finite number")

	p, err := LoadPlanFromBytes([]byte("targetTotal: 100\nrecordCount: 3\n"))
	require.NoError(t, err)
	for _, o := range []Overrides{
		{TargetTotal: math.NaN()},
		{TargetTotal: math.Inf(1)},
		{InterBatchDelaySeconds: math.NaN()},
	} {
		assert.ErrorIs(t, p.ApplyOverrides(o), ErrInvalidConfig)
	}
	assert.Equal(t, 100.0, p.TargetTotal)
}
