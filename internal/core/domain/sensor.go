package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/zeropv2mqtt/pkg/sunspec_modbus"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE                  = "bridge"
	SENSOR_ID_FEEDIN_GRID_POWER             = "feedin_grid_power"
	SENSOR_ID_FEEDIN_AGGREGATE_LIMIT        = "feedin_aggregate_limit"
	SENSOR_ID_FEEDIN_CONTROL_ACTIVE         = "feedin_control_active"
	SENSOR_ID_FEEDIN_DECREASE_COOLDOWN      = "feedin_decrease_cooldown"
	SENSOR_ID_FEEDIN_LAST_OUTCOME           = "feedin_last_outcome"
	SENSOR_ID_ACMETER_POWER_FLOW            = "acmeter_power_flow"
	SENSOR_ID_ACMETER_IMPORT_POWER          = "acmeter_import_power"
	SENSOR_ID_ACMETER_EXPORT_POWER          = "acmeter_export_power"
	SENSOR_ID_ACMETER_TOTAL_ENERGY_IMPORTED = "acmeter_total_energy_imported"
	SENSOR_ID_ACMETER_TOTAL_ENERGY_EXPORTED = "acmeter_total_energy_exported"
	SENSOR_ID_ACMETER_GRID_FREQUENCY        = "acmeter_grid_frequency"
	SENSOR_ID_ACMETER_GRID_VOLTAGE          = "acmeter_grid_voltage"
	SWITCH_ID_FEEDIN_CONTROL                = "feedin_control"
	INPUT_NUMBER_ID_FEEDIN_TARGET           = "feedin_target"
	STATE_CLASS_DURATION                    = "duration"
	STATE_CLASS_MEASUREMENT                 = "measurement"
	STATE_CLASS_TOTAL_INCREASING            = "total_increasing"
	DEVICE_CLASS_DURATION                   = "duration"
	DEVICE_CLASS_ENERGY                     = "energy"
	DEVICE_CLASS_FREQUENCY                  = "frequency"
	DEVICE_CLASS_POWER                      = "power"
	DEVICE_CLASS_VOLTAGE                    = "voltage"
	DEVICE_CLASS_CONNECTIVITY               = "connectivity"
	DEVICE_CLASS_RUNNING                    = "running"
	ENTITY_CLASS_DIAGNOSTIC                 = "diagnostic"
	ENTITY_CLASS_CONFIG                     = "config"
	SENSOR_TYPE_SENSOR                      = "sensor"
	SENSOR_TYPE_BINARY                      = "binary_sensor"
	INPUT_NUMBER_MODE_BOX                   = "box"
	INPUT_NUMBER_MODE_SLIDER                = "slider"

	FEEDIN_TARGET_MIN_WATTS = -10000
	FEEDIN_TARGET_MAX_WATTS = 10000
)

// Per inverter sensors share the state topic namespace, so the inverter id
// is part of the sensor id.

func InverterLimitSensorId(inverterId string) string {
	return fmt.Sprintf("inverter_%s_limit", inverterId)
}

func InverterACPowerSensorId(inverterId string) string {
	return fmt.Sprintf("inverter_%s_ac_power", inverterId)
}

func InverterStateSensorId(inverterId string) string {
	return fmt.Sprintf("inverter_%s_state", inverterId)
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("zeropv_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "ZeroPV",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("ZeroPV %s", md5HashShort(baseTopic)),
	}
}

func FeedInControllerDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("zeropv_controller_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Feed-in controller",
		Version:      versioninfo.Short(),
		Name:         "Feed-in control",
	}
}

// InverterDevice uses the SunSpec nameplate when available and falls back to
// the configured spec otherwise.
func InverterDevice(spec InverterSpec, info *sunspec_modbus.InverterInfo) Device {
	name := spec.Name
	if name == "" {
		name = spec.Id
	}
	dev := Device{
		Id:   fmt.Sprintf("zpv_inverter_%s", md5HashShort(spec.Id)),
		Name: name,
	}
	if info != nil {
		dev.Version = info.Version
		dev.Manufacturer = info.Manufacturer
		dev.Model = info.Model
		if info.Serial != "" {
			dev.Id = fmt.Sprintf("zpv_inverter_%s", md5HashShort(info.Serial))
		}
	}
	return dev
}

func ACMeterDevice(info *sunspec_modbus.ACMeterInfo) Device {
	return Device{
		Id:           fmt.Sprintf("zpv_acmeter_%s", md5HashShort(info.Serial)),
		Version:      info.Version,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		Name:         fmt.Sprintf("%s %s %s", info.Manufacturer, info.Model, md5HashShort(info.Serial)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func FeedInControlSensors(controllerDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Grid power sample used by the last evaluation
	sensors = append(sensors, GenericSensor{
		Device:            controllerDevice,
		Id:                SENSOR_ID_FEEDIN_GRID_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              "mdi:transmission-tower",
		UniqueId:          uniqueId(controllerDevice.Id, SENSOR_ID_FEEDIN_GRID_POWER),
	})

	// Aggregate limit
	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(controllerDevice),
		Id:                SENSOR_ID_FEEDIN_AGGREGATE_LIMIT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Aggregate power limit",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              "mdi:solar-power",
		UniqueId:          uniqueId(controllerDevice.Id, SENSOR_ID_FEEDIN_AGGREGATE_LIMIT),
	})

	sensors = append(sensors, GenericSensor{
		Device:      IdDevice(controllerDevice),
		Id:          SENSOR_ID_FEEDIN_CONTROL_ACTIVE,
		SensorType:  SENSOR_TYPE_BINARY,
		Name:        "Control active",
		DeviceClass: DEVICE_CLASS_RUNNING,
		UniqueId:    uniqueId(controllerDevice.Id, SENSOR_ID_FEEDIN_CONTROL_ACTIVE),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(controllerDevice),
		Id:                SENSOR_ID_FEEDIN_DECREASE_COOLDOWN,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Decrease cooldown",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_DURATION,
		UnitOfMeasurement: "s",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(controllerDevice.Id, SENSOR_ID_FEEDIN_DECREASE_COOLDOWN),
	})

	sensors = append(sensors, GenericSensor{
		Device:         IdDevice(controllerDevice),
		Id:             SENSOR_ID_FEEDIN_LAST_OUTCOME,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Last evaluation",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(controllerDevice.Id, SENSOR_ID_FEEDIN_LAST_OUTCOME),
	})

	return sensors
}

func InverterSensors(inverterDevice Device, spec InverterSpec) []GenericSensor {

	var sensors []GenericSensor

	limitId := InverterLimitSensorId(spec.Id)
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                limitId,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Power limit",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(inverterDevice.Id, limitId),
	})

	acPowerId := InverterACPowerSensorId(spec.Id)
	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(inverterDevice),
		Id:                acPowerId,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "AC power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(inverterDevice.Id, acPowerId),
	})

	// "throttled" while a limit below the available power is active
	stateId := InverterStateSensorId(spec.Id)
	sensors = append(sensors, GenericSensor{
		Device:         IdDevice(inverterDevice),
		Id:             stateId,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Operating state",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:solar-power-variant",
		UniqueId:       uniqueId(inverterDevice.Id, stateId),
	})

	return sensors
}

func ACMeterBaseSensors(acmeterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// ACMeter Power Flow
	sensors = append(sensors, GenericSensor{
		Device:            acmeterDevice,
		Id:                SENSOR_ID_ACMETER_POWER_FLOW,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Power flow",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(acmeterDevice.Id, SENSOR_ID_ACMETER_POWER_FLOW),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(acmeterDevice),
		Id:                SENSOR_ID_ACMETER_IMPORT_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Import power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(acmeterDevice.Id, SENSOR_ID_ACMETER_IMPORT_POWER),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(acmeterDevice),
		Id:                SENSOR_ID_ACMETER_EXPORT_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Export power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(acmeterDevice.Id, SENSOR_ID_ACMETER_EXPORT_POWER),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(acmeterDevice),
		Id:                SENSOR_ID_ACMETER_TOTAL_ENERGY_IMPORTED,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Total energy imported",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		UniqueId:          uniqueId(acmeterDevice.Id, SENSOR_ID_ACMETER_TOTAL_ENERGY_IMPORTED),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(acmeterDevice),
		Id:                SENSOR_ID_ACMETER_TOTAL_ENERGY_EXPORTED,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Total energy exported",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		UniqueId:          uniqueId(acmeterDevice.Id, SENSOR_ID_ACMETER_TOTAL_ENERGY_EXPORTED),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(acmeterDevice),
		Id:                SENSOR_ID_ACMETER_GRID_FREQUENCY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid frequency",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_FREQUENCY,
		UnitOfMeasurement: "Hz",
		Icon:              "mdi:sine-wave",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(acmeterDevice.Id, SENSOR_ID_ACMETER_GRID_FREQUENCY),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(acmeterDevice),
		Id:                SENSOR_ID_ACMETER_GRID_VOLTAGE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid voltage",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_VOLTAGE,
		UnitOfMeasurement: "V",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(acmeterDevice.Id, SENSOR_ID_ACMETER_GRID_VOLTAGE),
	})

	return sensors
}

func FeedInControlSwitches(controllerDevice Device) []GenericSwitch {
	return []GenericSwitch{
		{
			Device:   IdDevice(controllerDevice),
			Id:       SWITCH_ID_FEEDIN_CONTROL,
			Name:     "Feed-in control",
			UniqueId: uniqueId(controllerDevice.Id, SWITCH_ID_FEEDIN_CONTROL),
			Icon:     "mdi:transmission-tower-export",
		},
	}
}

func FeedInControlInputNumbers(controllerDevice Device, initialTarget float64) []GenericInputNumber {
	return []GenericInputNumber{
		{
			Device:            IdDevice(controllerDevice),
			Id:                INPUT_NUMBER_ID_FEEDIN_TARGET,
			Name:              "Target feed-in power",
			UniqueId:          uniqueId(controllerDevice.Id, INPUT_NUMBER_ID_FEEDIN_TARGET),
			Icon:              "mdi:target",
			UnitOfMeasurement: "W",
			DeviceClass:       DEVICE_CLASS_POWER,
			Max:               FEEDIN_TARGET_MAX_WATTS,
			Min:               FEEDIN_TARGET_MIN_WATTS,
			Step:              50,
			Mode:              INPUT_NUMBER_MODE_BOX,
			InitialValue:      initialTarget,
		},
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
