package domain

import "github.com/berfenger/zeropv2mqtt/pkg/sunspec_modbus"

const (
	ACTOR_ID_MASTER         = "master"
	ACTOR_ID_MODBUS         = "modbus"
	ACTOR_ID_POWERFLOW      = "powerflow"
	ACTOR_ID_MQTT           = "mqtt"
	ACTOR_ID_FEEDIN_CONTROL = "feedin_control"
	ACTOR_ID_HA_DISCOVERY   = "hadiscovery"
)

type GetDevicesInfoRequest struct {
	ActorRequestMixIn
}

type GetDevicesInfoResponse struct {
	ActorResponseMixIn
	// keyed by inverter id, devices that could not be read are missing
	Inverters map[string]*sunspec_modbus.InverterInfo
	ACMeter   *sunspec_modbus.ACMeterInfo
}

type GetPowerFlowRequest struct {
	ActorRequestMixIn
}

type GetPowerFlowResponse struct {
	ActorResponseMixIn
	Inverters map[string]*sunspec_modbus.InverterPowerFlow
	ACMeter   *sunspec_modbus.ACMeterPowerFlow
}

type GetFeedInStatusRequest struct {
	ActorRequestMixIn
}

type GetFeedInStatusResponse struct {
	ActorResponseMixIn
	Enabled           bool        `json:"enabled"`
	State             string      `json:"state"`
	TargetFeedInWatts float64     `json:"target_feed_in_watts"`
	LastResult        *TickResult `json:"last_result,omitempty"`
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
