package sunspec_modbus

import (
	"fmt"
)

// InverterStatus is the St operating state of the SunSpec inverter model.
type InverterStatus uint16

const (
	InverterStatusOff InverterStatus = iota + 1
	InverterStatusSleeping
	InverterStatusStarting
	InverterStatusMPPT
	InverterStatusThrottled
	InverterStatusShuttingDown
	InverterStatusFault
	InverterStatusStandby
)

var inverterStatusNames = map[InverterStatus]string{
	InverterStatusOff:          "off",
	InverterStatusSleeping:     "sleeping",
	InverterStatusStarting:     "starting",
	InverterStatusMPPT:         "mppt_tracking",
	InverterStatusThrottled:    "throttled",
	InverterStatusShuttingDown: "shutting_down",
	InverterStatusFault:        "fault",
	InverterStatusStandby:      "standby",
}

func (s InverterStatus) String() string {
	if name, ok := inverterStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint16(s))
}

// Producing reports whether the inverter is feeding power, limited or not.
func (s InverterStatus) Producing() bool {
	return s == InverterStatusMPPT || s == InverterStatusThrottled
}

type InverterInfo struct {
	Manufacturer      string
	Model             string
	Version           string
	Serial            string
	MaxRatedPowerWatt uint32
}

type InverterState struct {
	Status             InverterStatus
	CabinetTemperature float64
}

type InverterPowerFlow struct {
	ACPowerWatt float64
	// zero when the device exposes no MPPT block
	PVPowerWatt float64
	// nil when the operating state could not be read
	State *InverterState
}

// InverterPowerLimit mirrors the WMaxLimPct group of the SunSpec controls
// block. Percent is relative to the inverter nameplate power.
type InverterPowerLimit struct {
	Enabled           bool
	Percent           float64
	RevertTimeSeconds uint32
}

type InverterModbusReader interface {
	Open() error
	Close() error
	Validate() error
	GetInfo() (*InverterInfo, error)
	GetState() (*InverterState, error)
	GetPowerFlow() (*InverterPowerFlow, error)

	SetPowerLimit(powerLimit InverterPowerLimit) error
	GetPowerLimit() (*InverterPowerLimit, error)
	SupportsPowerControl() (bool, error)
}
