package mqtt

import (
	"fmt"

	. "github.com/berfenger/zeropv2mqtt/internal/core/domain"
)

// HADiscoveryConfig is the payload of a Home Assistant MQTT discovery topic.
// One struct serves every platform, unused fields are omitted.
type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	StateTopic        string            `json:"state_topic"`
	CommandTopic      string            `json:"command_topic,omitempty"`
	Icon              string            `json:"icon,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`

	// number platform, min and max are always sent since zero is a valid bound
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Step         float64  `json:"step,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	InitialValue float64  `json:"initial,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Name         string   `json:"name,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

func (c *MQTTClient) HADiscoverySensorTopic(sensor GenericSensor) string {
	return c.haDiscoveryTopic(sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func (c *MQTTClient) HADiscoverySwitchTopic(_switch GenericSwitch) string {
	return c.haDiscoveryTopic("switch", _switch.Device.Id, _switch.Id)
}

func (c *MQTTClient) HADiscoveryInputNumberTopic(inputNumber GenericInputNumber) string {
	return c.haDiscoveryTopic("number", inputNumber.Device.Id, inputNumber.Id)
}

func (c *MQTTClient) haDiscoveryTopic(platform, deviceId, entityId string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", c.cfg.HADiscoveryTopic, platform, deviceId, entityId)
}

// entity fills the fields shared by every platform. All entities go
// unavailable with the bridge.
func entity(client *MQTTClient, d Device, name, uniqueId, icon string) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device:   device(d),
		Name:     name,
		UniqueId: uniqueId,
		Icon:     icon,
		AvTopic:  client.BridgeStateTopic(),
		Platform: "mqtt",
	}
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor GenericSensor) HADiscoveryConfig {
	disConfig := entity(client, sensor.Device, sensor.Name, sensor.UniqueId, sensor.Icon)
	disConfig.EntityCategory = sensor.EntityCategory
	disConfig.EnabledByDefault = sensor.EnabledByDefault
	disConfig.UnitOfMeasurement = sensor.UnitOfMeasurement
	disConfig.StateClass = sensor.StateClass
	disConfig.DeviceClass = sensor.DeviceClass

	switch {
	case sensor.Id == SENSOR_ID_BRIDGE_STATE:
		disConfig.StateTopic = client.BridgeStateTopic()
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
	case sensor.SensorType == SENSOR_TYPE_BINARY:
		disConfig.StateTopic = client.BinarySensorStateTopic(sensor.Id)
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	default:
		disConfig.StateTopic = client.SensorStateTopic(sensor.Id)
	}
	return disConfig
}

func GenericSwitchToHADiscoveryMessage(client *MQTTClient, _switch GenericSwitch) HADiscoveryConfig {
	disConfig := entity(client, _switch.Device, _switch.Name, _switch.UniqueId, _switch.Icon)
	disConfig.StateTopic = client.SwitchStateTopic(_switch.Id)
	disConfig.CommandTopic = client.SwitchCommandTopic(_switch.Id)
	disConfig.PayloadOn = MQTT_PAYLOAD_ON
	disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	return disConfig
}

func GenericInputNumberToHADiscoveryMessage(client *MQTTClient, inputNumber GenericInputNumber) HADiscoveryConfig {
	disConfig := entity(client, inputNumber.Device, inputNumber.Name, inputNumber.UniqueId, inputNumber.Icon)
	disConfig.StateTopic = client.InputNumberStateTopic(inputNumber.Id)
	disConfig.CommandTopic = client.InputNumberCommandTopic(inputNumber.Id)
	disConfig.UnitOfMeasurement = inputNumber.UnitOfMeasurement
	disConfig.DeviceClass = inputNumber.DeviceClass
	disConfig.Min = &inputNumber.Min
	disConfig.Max = &inputNumber.Max
	disConfig.Step = inputNumber.Step
	disConfig.Mode = inputNumber.Mode
	disConfig.InitialValue = inputNumber.InitialValue
	return disConfig
}

func device(d Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Name:         d.Name,
		Manufacturer: d.Manufacturer,
		Model:        d.Model,
		Version:      d.Version,
		ViaDevice:    d.ViaDevice,
	}
}
