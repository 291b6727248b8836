package service

import (
	"context"
	"fmt"
	"math"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/internal/core/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type LimitSnapshotReader struct {
	registry *InverterRegistry
	limits   port.InverterLimitPort
	logger   *zap.Logger
}

type limitReadResult struct {
	value float64
	err   error
}

func NewLimitSnapshotReader(registry *InverterRegistry, limits port.InverterLimitPort, logger *zap.Logger) *LimitSnapshotReader {
	return &LimitSnapshotReader{
		registry: registry,
		limits:   limits,
		logger:   logger,
	}
}

// Read issues one limit read per inverter concurrently and waits for all of
// them. Failed or invalid reads are left out of the snapshot and reported in
// excluded. Snapshot order follows the registry.
func (r *LimitSnapshotReader) Read(ctx context.Context) (snapshots []domain.LimitSnapshot, excluded []string) {
	specs := r.registry.Specs()
	results := make([]limitReadResult, len(specs))

	var g errgroup.Group
	for i := range specs {
		g.Go(func() error {
			value, err := r.limits.ReadLimit(ctx, specs[i].Id)
			if err == nil {
				err = checkLimitValue(value)
			}
			results[i] = limitReadResult{value: value, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		if res.err != nil {
			r.logger.Warn("snapshot: inverter excluded from this tick",
				zap.String("inverter", specs[i].Id), zap.Error(res.err))
			excluded = append(excluded, specs[i].Id)
			continue
		}
		snapshots = append(snapshots, domain.LimitSnapshot{
			InverterId:        specs[i].Id,
			CurrentLimitWatts: res.value,
		})
	}
	return snapshots, excluded
}

func checkLimitValue(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %f", domain.ErrInvalidValue, value)
	}
	if value < 0 {
		return fmt.Errorf("%w: negative limit %f", domain.ErrInvalidValue, value)
	}
	return nil
}
