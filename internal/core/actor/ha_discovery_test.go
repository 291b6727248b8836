package actor

import (
	"testing"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/pkg/sunspec_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDiscoveryRequest(t *testing.T) {
	specs := []domain.InverterSpec{
		{Id: "inv1", Name: "Roof east", MaxPowerWatts: 2250},
		{Id: "inv2", MaxPowerWatts: 800},
	}
	act := NewHADiscoveryActor("zeropv", specs, -800, nil, nil, zap.NewNop())

	req := act.discoveryRequest(domain.GetDevicesInfoResponse{
		Inverters: map[string]*sunspec_modbus.InverterInfo{
			"inv1": {Manufacturer: "Fronius", Model: "Primo 3.0-1", Serial: "PR30000456"},
		},
		ACMeter: &sunspec_modbus.ACMeterInfo{Manufacturer: "Fronius", Model: "TS 65A-3", Serial: "TS65A3000123"},
	})

	ids := map[string]domain.GenericSensor{}
	for _, s := range req.Sensors {
		ids[s.Id] = s
	}
	assert.Contains(t, ids, domain.SENSOR_ID_BRIDGE_STATE)
	assert.Contains(t, ids, domain.SENSOR_ID_FEEDIN_AGGREGATE_LIMIT)
	assert.Contains(t, ids, domain.SENSOR_ID_ACMETER_POWER_FLOW)
	require.Contains(t, ids, domain.InverterLimitSensorId("inv1"))
	require.Contains(t, ids, domain.InverterLimitSensorId("inv2"))

	// inverter without info falls back to the configured id
	assert.Equal(t, "inv2", ids[domain.InverterLimitSensorId("inv2")].Device.Name)
	assert.Equal(t, "Fronius", ids[domain.InverterLimitSensorId("inv1")].Device.Manufacturer)

	require.Len(t, req.Switches, 1)
	assert.Equal(t, domain.SWITCH_ID_FEEDIN_CONTROL, req.Switches[0].Id)
	require.Len(t, req.InputNumbers, 1)
	assert.Equal(t, -800.0, req.InputNumbers[0].InitialValue)
}

func TestDiscoveryRequestWithoutMeter(t *testing.T) {
	act := NewHADiscoveryActor("zeropv", []domain.InverterSpec{{Id: "inv1", MaxPowerWatts: 600}}, 0, nil, nil, zap.NewNop())
	req := act.discoveryRequest(domain.GetDevicesInfoResponse{})

	for _, s := range req.Sensors {
		assert.NotEqual(t, domain.SENSOR_ID_ACMETER_POWER_FLOW, s.Id)
	}
}
