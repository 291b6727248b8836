package service

import (
	"testing"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snaps(limits ...float64) []domain.LimitSnapshot {
	ids := []string{"inv1", "inv2", "inv3"}
	out := make([]domain.LimitSnapshot, len(limits))
	for i, l := range limits {
		out[i] = domain.LimitSnapshot{InverterId: ids[i], CurrentLimitWatts: l}
	}
	return out
}

func mustRegistry(t *testing.T, specs []domain.InverterSpec) *InverterRegistry {
	reg, err := NewInverterRegistry(specs)
	require.NoError(t, err)
	return reg
}

func TestPlanImportRaisesLimits(t *testing.T) {
	reg := mustRegistry(t, twoInverters(2250, 2250))

	plan, err := PlanDistribution(500, snaps(1000, 1000), reg, defaultControlConfig())
	require.NoError(t, err)

	assert.Equal(t, 2000.0, plan.TotalOldWatts)
	assert.Equal(t, 2500.0, plan.TotalNewWatts)
	assert.Equal(t, map[string]float64{"inv1": 1250, "inv2": 1250}, plan.NewLimits())
	assert.Equal(t, 500.0, plan.Delta())
	assert.False(t, plan.IsDecrease())
}

func TestPlanExportLowersLimits(t *testing.T) {
	reg := mustRegistry(t, twoInverters(2250, 2250))

	plan, err := PlanDistribution(-1200, snaps(1000, 1000), reg, defaultControlConfig())
	require.NoError(t, err)

	assert.Equal(t, 1600.0, plan.TotalNewWatts)
	assert.Equal(t, map[string]float64{"inv1": 800, "inv2": 800}, plan.NewLimits())
	assert.True(t, plan.IsDecrease())
}

func TestPlanClampsToCapacity(t *testing.T) {
	reg := mustRegistry(t, twoInverters(2250, 1500))

	plan, err := PlanDistribution(2000, snaps(1000, 1000), reg, defaultControlConfig())
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"inv1": 2000, "inv2": 1500}, plan.NewLimits())
	assert.Equal(t, 3500.0, plan.TotalNewWatts)
}

func TestPlanSmallExcess(t *testing.T) {
	reg := mustRegistry(t, twoInverters(2250, 2250))

	plan, err := PlanDistribution(-850, snaps(1000, 1000), reg, defaultControlConfig())
	require.NoError(t, err)

	assert.Equal(t, 1950.0, plan.TotalNewWatts)
	assert.Equal(t, 50.0, plan.Delta())
}

func TestPlanFloorsPerDeviceShare(t *testing.T) {
	reg := mustRegistry(t, []domain.InverterSpec{
		{Id: "inv1", MaxPowerWatts: 2000},
		{Id: "inv2", MaxPowerWatts: 2000},
		{Id: "inv3", MaxPowerWatts: 2000},
	})

	plan, err := PlanDistribution(1, snaps(1000, 1000, 1000), reg, defaultControlConfig())
	require.NoError(t, err)

	// 3001 / 3 = 1000.33
	for _, e := range plan.PerInverter {
		assert.Equal(t, 1000.0, e.NewWatts)
		assert.False(t, e.Changed())
	}
	assert.LessOrEqual(t, plan.TotalNewWatts, 3001.0)
}

func TestPlanNeverNegative(t *testing.T) {
	reg := mustRegistry(t, twoInverters(2250, 2250))

	plan, err := PlanDistribution(-10000, snaps(500, 500), reg, defaultControlConfig())
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"inv1": 0, "inv2": 0}, plan.NewLimits())
	assert.Equal(t, 0.0, plan.TotalNewWatts)
}

func TestPlanTotalsAreSumOfEntries(t *testing.T) {
	reg := mustRegistry(t, twoInverters(2250, 700))

	for _, grid := range []float64{-3000, -900, -1, 0, 1, 333, 4000} {
		plan, err := PlanDistribution(grid, snaps(650, 700), reg, defaultControlConfig())
		require.NoError(t, err)

		sumOld, sumNew := 0.0, 0.0
		for _, e := range plan.PerInverter {
			sumOld += e.OldWatts
			sumNew += e.NewWatts
			assert.GreaterOrEqual(t, e.NewWatts, 0.0)
			spec, _ := reg.Lookup(e.InverterId)
			assert.LessOrEqual(t, e.NewWatts, spec.MaxPowerWatts)
		}
		assert.Equal(t, sumOld, plan.TotalOldWatts, "grid %f", grid)
		assert.Equal(t, sumNew, plan.TotalNewWatts, "grid %f", grid)
	}
}

func TestPlanImportIncludesTarget(t *testing.T) {
	reg := mustRegistry(t, twoInverters(2250, 2250))
	cfg := defaultControlConfig()
	cfg.ImportIncludesTarget = true

	plan, err := PlanDistribution(500, snaps(1000, 1000), reg, cfg)
	require.NoError(t, err)

	// 2000 + 500 + 800
	assert.Equal(t, 3300.0, plan.TotalNewWatts)
}

func TestPlanOnlyUsesSnapshotInverters(t *testing.T) {
	reg := mustRegistry(t, twoInverters(2250, 2250))

	plan, err := PlanDistribution(500, snaps(1000), reg, defaultControlConfig())
	require.NoError(t, err)

	require.Len(t, plan.PerInverter, 1)
	assert.Equal(t, "inv1", plan.PerInverter[0].InverterId)
	assert.Equal(t, 1500.0, plan.PerInverter[0].NewWatts)
}

func TestPlanErrors(t *testing.T) {
	reg := mustRegistry(t, twoInverters(2250, 2250))

	_, err := PlanDistribution(500, nil, reg, defaultControlConfig())
	assert.ErrorIs(t, err, domain.ErrNoSnapshots)

	_, err = PlanDistribution(500, []domain.LimitSnapshot{{InverterId: "ghost", CurrentLimitWatts: 10}}, reg, defaultControlConfig())
	assert.Error(t, err)
}

func TestRegistryValidation(t *testing.T) {
	_, err := NewInverterRegistry(nil)
	assert.Error(t, err)

	_, err = NewInverterRegistry([]domain.InverterSpec{{Id: "", MaxPowerWatts: 100}})
	assert.Error(t, err)

	_, err = NewInverterRegistry([]domain.InverterSpec{{Id: "a", MaxPowerWatts: 100}, {Id: "a", MaxPowerWatts: 200}})
	assert.Error(t, err)

	_, err = NewInverterRegistry([]domain.InverterSpec{{Id: "a", MaxPowerWatts: -1}})
	assert.Error(t, err)

	reg, err := NewInverterRegistry(twoInverters(2250, 1500))
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
	spec, ok := reg.Lookup("inv2")
	assert.True(t, ok)
	assert.Equal(t, 1500.0, spec.MaxPowerWatts)

	specs := reg.Specs()
	specs[0].Id = "changed"
	assert.Equal(t, "inv1", reg.Specs()[0].Id)
}
