package service

import (
	"context"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/internal/core/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type LimitActuator struct {
	limits port.InverterLimitPort
	logger *zap.Logger
}

type ActuationReport struct {
	Written []string
	Failed  map[string]error
}

func NewLimitActuator(limits port.InverterLimitPort, logger *zap.Logger) *LimitActuator {
	return &LimitActuator{
		limits: limits,
		logger: logger,
	}
}

// Apply writes every changed entry of the plan concurrently and waits for
// all writes to settle. Unchanged entries are not written.
func (a *LimitActuator) Apply(ctx context.Context, plan domain.Plan) ActuationReport {
	var changed []domain.PlanEntry
	for _, e := range plan.PerInverter {
		if e.Changed() {
			changed = append(changed, e)
		}
	}

	errs := make([]error, len(changed))
	var g errgroup.Group
	for i := range changed {
		g.Go(func() error {
			errs[i] = a.limits.WriteLimit(ctx, changed[i].InverterId, changed[i].NewWatts)
			return nil
		})
	}
	_ = g.Wait()

	report := ActuationReport{
		Failed: map[string]error{},
	}
	for i, e := range changed {
		if errs[i] != nil {
			a.logger.Error("actuator: could not write inverter limit",
				zap.String("inverter", e.InverterId), zap.Float64("watts", e.NewWatts), zap.Error(errs[i]))
			report.Failed[e.InverterId] = errs[i]
			continue
		}
		a.logger.Debug("actuator: inverter limit written",
			zap.String("inverter", e.InverterId), zap.Float64("old", e.OldWatts), zap.Float64("new", e.NewWatts))
		report.Written = append(report.Written, e.InverterId)
	}
	return report
}
