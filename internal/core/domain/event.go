package domain

import "strconv"

// SensorUpdateEvent is a new state for one Home Assistant entity, published
// on the event stream and forwarded to MQTT.
type SensorUpdateEvent interface {
	SensorId() string
}

type SensorUpdateEventMixIn struct {
	Id string
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

func NewFloatSensorUpdate(id string, value float64, decimals uint) FloatSensorUpdateEvent {
	return FloatSensorUpdateEvent{SensorUpdateEventMixIn{id}, value, decimals}
}

func (e FloatSensorUpdateEvent) FormattedValue() string {
	return strconv.FormatFloat(e.Value, 'f', int(e.Decimals), 64)
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

func NewBinarySensorUpdate(id string, value bool) BinarySensorUpdateEvent {
	return BinarySensorUpdateEvent{SensorUpdateEventMixIn{id}, value}
}

// SwitchSensorUpdateEvent reports the state of a switch, it is retained so
// Home Assistant picks it up after a restart.
type SwitchSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

func NewSwitchUpdate(id string, on bool) SwitchSensorUpdateEvent {
	return SwitchSensorUpdateEvent{SensorUpdateEventMixIn{id}, on}
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

func NewTextSensorUpdate(id, value string) TextSensorUpdateEvent {
	return TextSensorUpdateEvent{SensorUpdateEventMixIn{id}, value}
}

// InputNumberSensorUpdateEvent echoes the value of a number entity, retained
// like switches.
type InputNumberSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

func NewInputNumberUpdate(id string, value float64, decimals uint) InputNumberSensorUpdateEvent {
	return InputNumberSensorUpdateEvent{SensorUpdateEventMixIn{id}, value, decimals}
}

func (e InputNumberSensorUpdateEvent) FormattedValue() string {
	return strconv.FormatFloat(e.Value, 'f', int(e.Decimals), 64)
}
