package service

import (
	"fmt"
	"math"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
)

// PlanDistribution computes the new aggregate limit from a grid sample
// (positive = import) and splits it equally across the inverters present in
// the snapshot. Each share is floored to whole watts and clamped to the
// inverter capacity. Capacity shortfall is not moved to other inverters.
func PlanDistribution(gridPower float64, snapshots []domain.LimitSnapshot, registry *InverterRegistry, cfg domain.ControlConfig) (domain.Plan, error) {
	if len(snapshots) == 0 {
		return domain.Plan{}, domain.ErrNoSnapshots
	}

	specs := make([]domain.InverterSpec, len(snapshots))
	totalOld := 0.0
	for i, snap := range snapshots {
		spec, ok := registry.Lookup(snap.InverterId)
		if !ok {
			return domain.Plan{}, fmt.Errorf("planner: unknown inverter %q", snap.InverterId)
		}
		specs[i] = spec
		totalOld += snap.CurrentLimitWatts
	}

	target := aggregateTarget(gridPower, totalOld, cfg)
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return domain.Plan{}, fmt.Errorf("planner: aggregate target %v: %w", target, domain.ErrInvalidValue)
	}
	perDevice := math.Floor(target / float64(len(snapshots)))

	entries := make([]domain.PlanEntry, len(snapshots))
	for i, snap := range snapshots {
		entries[i] = domain.PlanEntry{
			InverterId: snap.InverterId,
			OldWatts:   snap.CurrentLimitWatts,
			NewWatts:   math.Min(perDevice, specs[i].MaxPowerWatts),
		}
	}
	return domain.NewPlan(entries), nil
}

func aggregateTarget(gridPower, totalOld float64, cfg domain.ControlConfig) float64 {
	if gridPower >= 0 && !cfg.ImportIncludesTarget {
		// importing: raise output to absorb the import
		return totalOld + gridPower
	}
	excess := gridPower - cfg.TargetFeedInWatts
	return math.Max(0, totalOld+excess)
}
