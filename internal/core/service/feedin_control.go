package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/internal/core/port"

	"go.uber.org/zap"
)

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FeedInControl runs one evaluation per call. The caller owns the trigger and
// should not overlap calls; overlapping ones are run one after the other.
type FeedInControl struct {
	evalMu       sync.Mutex
	registry     *InverterRegistry
	telemetry    port.TelemetryPort
	snapshots    *LimitSnapshotReader
	actuator     *LimitActuator
	significance SignificanceGate
	hysteresis   *DecreaseHysteresisGate
	clock        port.Clock
	mu           sync.RWMutex
	config       domain.ControlConfig
	logger       *zap.Logger
}

func NewFeedInControl(registry *InverterRegistry, limits port.InverterLimitPort, telemetry port.TelemetryPort,
	clock port.Clock, cfg domain.ControlConfig, logger *zap.Logger) *FeedInControl {
	if clock == nil {
		clock = SystemClock{}
	}
	return &FeedInControl{
		registry:     registry,
		telemetry:    telemetry,
		snapshots:    NewLimitSnapshotReader(registry, limits, logger),
		actuator:     NewLimitActuator(limits, logger),
		significance: SignificanceGate{ThresholdWatts: cfg.SignificanceThresholdWatts},
		hysteresis:   NewDecreaseHysteresisGate(cfg.DecreaseCooldown(), clock),
		clock:        clock,
		config:       cfg,
		logger:       logger,
	}
}

func (c *FeedInControl) Tick(ctx context.Context) domain.TickResult {
	if c.telemetry == nil {
		return c.abort(domain.OutcomeTelemetryUnavailable, nil)
	}
	gridPower, err := c.telemetry.ReadGridPower(ctx)
	if err != nil {
		c.logger.Warn("feedin: grid power unavailable, skipping tick", zap.Error(err))
		return c.abort(domain.OutcomeTelemetryUnavailable, nil)
	}
	return c.Evaluate(ctx, gridPower)
}

func (c *FeedInControl) Evaluate(ctx context.Context, gridPower float64) domain.TickResult {
	c.evalMu.Lock()
	defer c.evalMu.Unlock()

	if math.IsNaN(gridPower) || math.IsInf(gridPower, 0) {
		c.logger.Warn("feedin: invalid grid power sample, skipping tick", zap.Float64("grid", gridPower))
		return c.abort(domain.OutcomeTelemetryUnavailable, nil)
	}

	snapshots, excluded := c.snapshots.Read(ctx)
	if len(snapshots) == 0 {
		c.logger.Warn("feedin: no inverter limit could be read, skipping tick", zap.Strings("excluded", excluded))
		result := c.abort(domain.OutcomeNoSnapshots, excluded)
		result.GridPowerWatts = gridPower
		result.HasGridPower = true
		return result
	}

	plan, err := PlanDistribution(gridPower, snapshots, c.registry, c.Config())
	if err != nil {
		c.logger.Error("feedin: planning failed", zap.Error(err))
		result := c.abort(domain.OutcomePlanningFailed, excluded)
		result.GridPowerWatts = gridPower
		result.HasGridPower = true
		return result
	}

	result := domain.TickResult{
		At:                c.clock.Now(),
		GridPowerWatts:    gridPower,
		HasGridPower:      true,
		Plan:              &plan,
		ExcludedInverters: excluded,
	}
	logger := c.logger.With(zap.Float64("grid", gridPower),
		zap.Float64("total_old", plan.TotalOldWatts), zap.Float64("total_new", plan.TotalNewWatts))

	if !c.significance.Admit(plan) {
		logger.Debug("feedin: change below significance threshold")
		result.Outcome = domain.OutcomeBelowThreshold
		result.Status = inactiveStatus(plan)
		result.CooldownRemaining = c.hysteresis.Remaining()
		return result
	}

	if ok, remaining := c.hysteresis.Admit(plan); !ok {
		logger.Info("feedin: decrease suppressed by cooldown", zap.Duration("remaining", remaining))
		result.Outcome = domain.OutcomeDecreaseCooldown
		result.Status = inactiveStatus(plan)
		result.CooldownRemaining = remaining
		return result
	}

	report := c.actuator.Apply(ctx, plan)
	if len(report.Failed) > 0 {
		result.FailedWrites = make(map[string]string, len(report.Failed))
		for id, err := range report.Failed {
			result.FailedWrites[id] = err.Error()
		}
	}
	logger.Info("feedin: new limits applied", zap.Strings("written", report.Written), zap.Int("failed", len(report.Failed)))

	result.Outcome = domain.OutcomeApplied
	result.Status = &domain.ControlStatus{
		AggregateLimitWatts:   plan.TotalNewWatts,
		ControlActive:         true,
		PerDeviceAppliedWatts: plan.NewLimits(),
	}
	result.CooldownRemaining = c.hysteresis.Remaining()
	return result
}

// SetTargetFeedInWatts takes effect from the next evaluation. Invalid values
// leave the current target in place.
func (c *FeedInControl) SetTargetFeedInWatts(watts float64) error {
	if err := domain.CheckFeedInTarget(watts); err != nil {
		return fmt.Errorf("feedin: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.TargetFeedInWatts = watts
	return nil
}

func (c *FeedInControl) Config() domain.ControlConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

func (c *FeedInControl) Inverters() []domain.InverterSpec {
	return c.registry.Specs()
}

func (c *FeedInControl) abort(outcome domain.Outcome, excluded []string) domain.TickResult {
	return domain.TickResult{
		Outcome:           outcome,
		At:                c.clock.Now(),
		CooldownRemaining: c.hysteresis.Remaining(),
		ExcludedInverters: excluded,
	}
}

func inactiveStatus(plan domain.Plan) *domain.ControlStatus {
	return &domain.ControlStatus{
		AggregateLimitWatts:   plan.TotalOldWatts,
		ControlActive:         false,
		PerDeviceAppliedWatts: plan.OldLimits(),
	}
}

// ensure interface compliance
var _ port.FeedInController = (*FeedInControl)(nil)
