package events

import (
	"sort"

	. "github.com/berfenger/zeropv2mqtt/internal/core/domain"
	"github.com/berfenger/zeropv2mqtt/pkg/sunspec_modbus"
)

// TickResultToUpdateEvents maps one feed-in evaluation to sensor updates.
// Aborted ticks carry no status, so only the outcome and the grid sample
// (when there was one) are published.
func TickResultToUpdateEvents(r TickResult) []any {
	events := []any{NewTextSensorUpdate(SENSOR_ID_FEEDIN_LAST_OUTCOME, string(r.Outcome))}
	if r.HasGridPower {
		events = append(events, NewFloatSensorUpdate(SENSOR_ID_FEEDIN_GRID_POWER, r.GridPowerWatts, 1))
	}
	events = append(events, NewFloatSensorUpdate(SENSOR_ID_FEEDIN_DECREASE_COOLDOWN, r.CooldownRemaining.Seconds(), 0))
	if r.Status == nil {
		return events
	}

	events = append(events,
		NewFloatSensorUpdate(SENSOR_ID_FEEDIN_AGGREGATE_LIMIT, r.Status.AggregateLimitWatts, 0),
		NewBinarySensorUpdate(SENSOR_ID_FEEDIN_CONTROL_ACTIVE, r.Status.ControlActive),
	)

	ids := make([]string, 0, len(r.Status.PerDeviceAppliedWatts))
	for id := range r.Status.PerDeviceAppliedWatts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		events = append(events, NewFloatSensorUpdate(InverterLimitSensorId(id), r.Status.PerDeviceAppliedWatts[id], 0))
	}
	return events
}

func InverterPowerFlowToUpdateEvents(inverterId string, pf *sunspec_modbus.InverterPowerFlow) []any {
	events := []any{NewFloatSensorUpdate(InverterACPowerSensorId(inverterId), pf.ACPowerWatt, 1)}
	if pf.State != nil {
		events = append(events, NewTextSensorUpdate(InverterStateSensorId(inverterId), pf.State.Status.String()))
	}
	return events
}

func ACMeterPowerFlowToUpdateEvents(pf *sunspec_modbus.ACMeterPowerFlow) []any {
	return []any{
		NewFloatSensorUpdate(SENSOR_ID_ACMETER_POWER_FLOW, pf.CurrentPowerFlowWatt, 2),
		NewFloatSensorUpdate(SENSOR_ID_ACMETER_IMPORT_POWER, pf.CurrentImportPowerWatt, 2),
		NewFloatSensorUpdate(SENSOR_ID_ACMETER_EXPORT_POWER, pf.CurrentExportPowerWatt, 2),
		NewFloatSensorUpdate(SENSOR_ID_ACMETER_TOTAL_ENERGY_IMPORTED, pf.TotalEnergyImportedKWh, 3),
		NewFloatSensorUpdate(SENSOR_ID_ACMETER_TOTAL_ENERGY_EXPORTED, pf.TotalEnergyExportedKWh, 3),
		NewFloatSensorUpdate(SENSOR_ID_ACMETER_GRID_FREQUENCY, pf.Frequency, 1),
		NewFloatSensorUpdate(SENSOR_ID_ACMETER_GRID_VOLTAGE, pf.PhaseAVoltage, 2),
	}
}

func FeedInControlSwitchUpdateEvent(enabled bool) any {
	return NewSwitchUpdate(SWITCH_ID_FEEDIN_CONTROL, enabled)
}

func FeedInTargetUpdateEvent(watts float64) any {
	return NewInputNumberUpdate(INPUT_NUMBER_ID_FEEDIN_TARGET, watts, 0)
}

// FeedInControlStateUpdateEvents is published on startup and whenever the
// switch or the target changes.
func FeedInControlStateUpdateEvents(enabled bool, targetWatts float64) []any {
	return []any{
		FeedInControlSwitchUpdateEvent(enabled),
		FeedInTargetUpdateEvent(targetWatts),
	}
}
