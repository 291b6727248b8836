package sunspec

import (
	"context"
	"fmt"
	"math"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/internal/core/port"
	"github.com/berfenger/zeropv2mqtt/pkg/sunspec_modbus"
)

type LimitTarget struct {
	Reader            sunspec_modbus.InverterModbusReader
	MaxPowerWatts     float64
	RevertTimeSeconds uint32
}

// LimitRouter translates watt limits into SunSpec WMaxLimPct commands and
// routes them to the reader of each inverter.
type LimitRouter struct {
	targets map[string]LimitTarget
}

func NewLimitRouter(targets map[string]LimitTarget) *LimitRouter {
	return &LimitRouter{
		targets: targets,
	}
}

func (r *LimitRouter) target(id string) (LimitTarget, error) {
	t, ok := r.targets[id]
	if !ok {
		return LimitTarget{}, fmt.Errorf("sunspec: unknown inverter %q", id)
	}
	if t.MaxPowerWatts <= 0 {
		return LimitTarget{}, fmt.Errorf("sunspec: inverter %q has no max power", id)
	}
	return t, nil
}

// ReadLimit returns the active limit in whole watts. A disabled limit means
// the inverter may produce up to its max power.
func (r *LimitRouter) ReadLimit(ctx context.Context, id string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t, err := r.target(id)
	if err != nil {
		return 0, err
	}
	limit, err := t.Reader.GetPowerLimit()
	if err != nil {
		return 0, err
	}
	if !limit.Enabled {
		return t.MaxPowerWatts, nil
	}
	if math.IsNaN(limit.Percent) || limit.Percent < 0 {
		return 0, fmt.Errorf("%w: limit percent %f", domain.ErrInvalidValue, limit.Percent)
	}
	return math.Round(limit.Percent / 100 * t.MaxPowerWatts), nil
}

func (r *LimitRouter) WriteLimit(ctx context.Context, id string, watts float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := r.target(id)
	if err != nil {
		return err
	}
	if math.IsNaN(watts) || math.IsInf(watts, 0) {
		return fmt.Errorf("%w: limit %f", domain.ErrInvalidValue, watts)
	}
	pct := math.Min(math.Max(watts/t.MaxPowerWatts*100, 0), 100)
	return t.Reader.SetPowerLimit(sunspec_modbus.InverterPowerLimit{
		Enabled:           true,
		Percent:           pct,
		RevertTimeSeconds: t.RevertTimeSeconds,
	})
}

// ensure interface compliance
var _ port.InverterLimitPort = (*LimitRouter)(nil)
