package telemetry

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/pkg/sunspec_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	return c.now
}

func TestMeterTelemetry(t *testing.T) {
	meter := &sunspec_modbus.TestACMeterModbusReader{PowerFlowWatt: 420}
	tel := NewMeterTelemetry(meter)

	power, err := tel.ReadGridPower(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 420.0, power)

	meter.Err = errors.New("connection reset")
	_, err = tel.ReadGridPower(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestGridPowerCache(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewGridPowerCache(10*time.Second, clock)

	_, err := cache.ReadGridPower(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	cache.Update(-350)
	clock.now = clock.now.Add(5 * time.Second)
	power, err := cache.ReadGridPower(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -350.0, power)

	// invalid samples are ignored
	cache.Update(math.NaN())
	power, err = cache.ReadGridPower(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -350.0, power)

	clock.now = clock.now.Add(6 * time.Second)
	_, err = cache.ReadGridPower(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
