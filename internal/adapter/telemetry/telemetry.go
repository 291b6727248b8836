package telemetry

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/internal/core/port"
	"github.com/berfenger/zeropv2mqtt/pkg/sunspec_modbus"
)

// MeterTelemetry samples the grid power straight from a SunSpec smart meter.
type MeterTelemetry struct {
	meter sunspec_modbus.ACMeterModbusReader
}

func NewMeterTelemetry(meter sunspec_modbus.ACMeterModbusReader) *MeterTelemetry {
	return &MeterTelemetry{
		meter: meter,
	}
}

func (m *MeterTelemetry) ReadGridPower(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	power, err := m.meter.GetCurrentPowerFlowWatt()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	return power, nil
}

// GridPowerCache holds the last grid sample pushed by a subscriber. A sample
// older than maxAge is reported as unavailable.
type GridPowerCache struct {
	mu        sync.RWMutex
	power     float64
	updatedAt time.Time
	maxAge    time.Duration
	clock     port.Clock
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func NewGridPowerCache(maxAge time.Duration, clock port.Clock) *GridPowerCache {
	if clock == nil {
		clock = systemClock{}
	}
	return &GridPowerCache{
		maxAge: maxAge,
		clock:  clock,
	}
}

func (c *GridPowerCache) Update(power float64) {
	if math.IsNaN(power) || math.IsInf(power, 0) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.power = power
	c.updatedAt = c.clock.Now()
}

func (c *GridPowerCache) ReadGridPower(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.updatedAt.IsZero() {
		return 0, fmt.Errorf("%w: no grid power received yet", domain.ErrUnavailable)
	}
	if age := c.clock.Now().Sub(c.updatedAt); c.maxAge > 0 && age > c.maxAge {
		return 0, fmt.Errorf("%w: grid power is %s old", domain.ErrUnavailable, age.Truncate(time.Millisecond))
	}
	return c.power, nil
}

// ensure interface compliance
var (
	_ port.TelemetryPort = (*MeterTelemetry)(nil)
	_ port.TelemetryPort = (*GridPowerCache)(nil)
)
