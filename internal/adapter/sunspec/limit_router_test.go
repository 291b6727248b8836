package sunspec

import (
	"context"
	"errors"
	"testing"

	"github.com/berfenger/zeropv2mqtt/pkg/sunspec_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLimit(t *testing.T) {
	limited := sunspec_modbus.NewTestInverterModbusReader(40)
	unlimited := sunspec_modbus.NewTestInverterModbusReader(100)
	router := NewLimitRouter(map[string]LimitTarget{
		"a": {Reader: limited, MaxPowerWatts: 2250},
		"b": {Reader: unlimited, MaxPowerWatts: 1500},
	})

	w, err := router.ReadLimit(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 900.0, w)

	w, err = router.ReadLimit(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, w)

	_, err = router.ReadLimit(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestWriteLimitRoundTrip(t *testing.T) {
	reader := sunspec_modbus.NewTestInverterModbusReader(100)
	router := NewLimitRouter(map[string]LimitTarget{
		"a": {Reader: reader, MaxPowerWatts: 2250, RevertTimeSeconds: 120},
	})

	require.NoError(t, router.WriteLimit(context.Background(), "a", 1250))

	limit, err := reader.GetPowerLimit()
	require.NoError(t, err)
	assert.True(t, limit.Enabled)
	assert.InDelta(t, 55.555, limit.Percent, 0.01)
	assert.Equal(t, uint32(120), limit.RevertTimeSeconds)

	w, err := router.ReadLimit(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1250.0, w)
}

func TestWriteLimitClamps(t *testing.T) {
	reader := sunspec_modbus.NewTestInverterModbusReader(100)
	router := NewLimitRouter(map[string]LimitTarget{
		"a": {Reader: reader, MaxPowerWatts: 1000},
	})

	require.NoError(t, router.WriteLimit(context.Background(), "a", 5000))
	limit, _ := reader.GetPowerLimit()
	assert.Equal(t, 100.0, limit.Percent)

	require.NoError(t, router.WriteLimit(context.Background(), "a", -10))
	limit, _ = reader.GetPowerLimit()
	assert.Equal(t, 0.0, limit.Percent)
}

func TestRouterErrors(t *testing.T) {
	reader := sunspec_modbus.NewTestInverterModbusReader(100)
	reader.ReadErr = errors.New("timeout")
	router := NewLimitRouter(map[string]LimitTarget{
		"a": {Reader: reader, MaxPowerWatts: 1000},
	})

	_, err := router.ReadLimit(context.Background(), "a")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, router.WriteLimit(ctx, "a", 100), context.Canceled)
	assert.Zero(t, reader.Writes())
}
