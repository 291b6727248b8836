package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrUnavailable  = errors.New("value unavailable")
	ErrInvalidValue = errors.New("invalid numeric value")
	ErrNoSnapshots  = errors.New("no inverter limit could be read")
)

// InverterSpec describes a controllable inverter. Immutable after startup.
type InverterSpec struct {
	Id            string
	Name          string
	MaxPowerWatts float64
}

// LimitSnapshot is the limit an inverter reported at the start of a tick.
// Inverters whose read failed have no snapshot at all.
type LimitSnapshot struct {
	InverterId        string
	CurrentLimitWatts float64
}

type PlanEntry struct {
	InverterId string  `json:"inverter_id"`
	OldWatts   float64 `json:"old_watts"`
	NewWatts   float64 `json:"new_watts"`
}

func (e PlanEntry) Changed() bool {
	return e.NewWatts != e.OldWatts
}

// Plan is the outcome of distributing a new aggregate limit. Totals are
// always the sums of the entries, use NewPlan to build one.
type Plan struct {
	TotalOldWatts float64     `json:"total_old_watts"`
	TotalNewWatts float64     `json:"total_new_watts"`
	PerInverter   []PlanEntry `json:"per_inverter"`
}

func NewPlan(entries []PlanEntry) Plan {
	plan := Plan{
		PerInverter: entries,
	}
	for _, e := range entries {
		plan.TotalOldWatts += e.OldWatts
		plan.TotalNewWatts += e.NewWatts
	}
	return plan
}

func (p Plan) Delta() float64 {
	return math.Abs(p.TotalNewWatts - p.TotalOldWatts)
}

func (p Plan) IsDecrease() bool {
	return p.TotalNewWatts < p.TotalOldWatts
}

func (p Plan) OldLimits() map[string]float64 {
	limits := make(map[string]float64, len(p.PerInverter))
	for _, e := range p.PerInverter {
		limits[e.InverterId] = e.OldWatts
	}
	return limits
}

func (p Plan) NewLimits() map[string]float64 {
	limits := make(map[string]float64, len(p.PerInverter))
	for _, e := range p.PerInverter {
		limits[e.InverterId] = e.NewWatts
	}
	return limits
}

type ControlConfig struct {
	// Desired grid exchange while exporting. Negative means export.
	TargetFeedInWatts          float64
	SignificanceThresholdWatts float64
	EvaluationPeriod           time.Duration
	// When set, the import branch also corrects towards TargetFeedInWatts.
	ImportIncludesTarget bool
}

// CheckFeedInTarget accepts finite targets inside the bounds offered to
// Home Assistant.
func CheckFeedInTarget(watts float64) error {
	if math.IsNaN(watts) || math.IsInf(watts, 0) {
		return fmt.Errorf("feed-in target %v: %w", watts, ErrInvalidValue)
	}
	if watts < FEEDIN_TARGET_MIN_WATTS || watts > FEEDIN_TARGET_MAX_WATTS {
		return fmt.Errorf("feed-in target %.0f out of range [%d, %d]: %w", watts,
			FEEDIN_TARGET_MIN_WATTS, FEEDIN_TARGET_MAX_WATTS, ErrInvalidValue)
	}
	return nil
}

func (c ControlConfig) DecreaseCooldown() time.Duration {
	return 3 * c.EvaluationPeriod
}

type Outcome string

const (
	OutcomeApplied              Outcome = "applied"
	OutcomeBelowThreshold       Outcome = "below_threshold"
	OutcomeDecreaseCooldown     Outcome = "decrease_cooldown"
	OutcomeNoSnapshots          Outcome = "no_snapshots"
	OutcomeTelemetryUnavailable Outcome = "telemetry_unavailable"
	OutcomePlanningFailed       Outcome = "planning_failed"
	// the evaluation panicked or did not finish within its period
	OutcomeEvaluationFailed Outcome = "evaluation_failed"
)

func (o Outcome) Aborted() bool {
	switch o {
	case OutcomeNoSnapshots, OutcomeTelemetryUnavailable, OutcomePlanningFailed, OutcomeEvaluationFailed:
		return true
	}
	return false
}

type ControlStatus struct {
	AggregateLimitWatts   float64            `json:"aggregate_limit_watts"`
	ControlActive         bool               `json:"control_active"`
	PerDeviceAppliedWatts map[string]float64 `json:"per_device_applied_watts"`
}

type TickResult struct {
	Outcome        Outcome   `json:"outcome"`
	At             time.Time `json:"at"`
	GridPowerWatts float64   `json:"grid_power_watts"`
	HasGridPower   bool      `json:"has_grid_power"`
	Plan           *Plan     `json:"plan,omitempty"`
	// nil when the tick was aborted before a plan existed
	Status            *ControlStatus    `json:"status,omitempty"`
	CooldownRemaining time.Duration     `json:"cooldown_remaining"`
	ExcludedInverters []string          `json:"excluded_inverters,omitempty"`
	FailedWrites      map[string]string `json:"failed_writes,omitempty"`
}
