package sunspec_modbus

import "math"

type ACMeterInfo struct {
	Manufacturer string
	Model        string
	Version      string
	Serial       string
}

// ACMeterPowerFlow is one reading of a SunSpec meter (models 201 to 204) at
// the grid connection point.
type ACMeterPowerFlow struct {
	// Positive = import, negative = export
	CurrentPowerFlowWatt float64
	// Both are zero or positive, at most one is non-zero
	CurrentImportPowerWatt float64
	CurrentExportPowerWatt float64

	TotalEnergyExportedKWh float64
	TotalEnergyImportedKWh float64
	Frequency              float64
	PhaseAVoltage          float64
}

// NewACMeterPowerFlow splits a signed grid reading into its import and
// export sides.
func NewACMeterPowerFlow(flowWatt float64) *ACMeterPowerFlow {
	pf := &ACMeterPowerFlow{CurrentPowerFlowWatt: flowWatt}
	if flowWatt < 0 {
		pf.CurrentExportPowerWatt = math.Abs(flowWatt)
	} else {
		pf.CurrentImportPowerWatt = flowWatt
	}
	return pf
}

// ACMeterModbusReader reads the grid meter. GetCurrentPowerFlowWatt is the
// single register read the feed-in control needs, GetPowerFlow is the full
// reading for monitoring.
type ACMeterModbusReader interface {
	Open() error
	Close() error
	Validate() error
	GetInfo() (*ACMeterInfo, error)
	GetCurrentPowerFlowWatt() (float64, error)
	GetPowerFlow() (*ACMeterPowerFlow, error)
}
