package domain

// Device groups entities in Home Assistant. ViaDevice links an inverter or
// meter to the bridge it is reached through.
type Device struct {
	Id           string
	Name         string
	Manufacturer string
	Model        string
	Version      string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string // SENSOR_TYPE_SENSOR or SENSOR_TYPE_BINARY
	Name              string
	UniqueId          string
	Icon              string
	EntityCategory    string // diagnostic, config or empty
	EnabledByDefault  *bool
	UnitOfMeasurement string
	StateClass        string // measurement
	DeviceClass       string // power, duration, connectivity
}

type GenericSwitch struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Icon     string
}

type GenericInputNumber struct {
	Device            Device
	Id                string
	Name              string
	UniqueId          string
	Icon              string
	UnitOfMeasurement string
	DeviceClass       string
	Min               float64
	Max               float64
	Step              float64
	Mode              string
	InitialValue      float64
}
