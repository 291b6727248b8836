package sunspec_modbus

import (
	"errors"
	"sync"
)

func CreateTestACMeterModbusReader() (ACMeterModbusReader, error) {
	return &TestACMeterModbusReader{PowerFlowWatt: -1250}, nil
}

// ACMeter

type TestACMeterModbusReader struct {
	mu            sync.Mutex
	PowerFlowWatt float64
	Err           error
}

func (reader *TestACMeterModbusReader) Open() error {
	return nil
}

func (reader *TestACMeterModbusReader) Close() error {
	return nil
}

func (reader *TestACMeterModbusReader) Validate() error {
	return nil
}

func (reader *TestACMeterModbusReader) GetInfo() (*ACMeterInfo, error) {
	return &ACMeterInfo{
		Manufacturer: "Fronius",
		Model:        "Smart Meter TS 65A-3",
		Version:      "1.3",
		Serial:       "TS65A3000123",
	}, nil
}

func (reader *TestACMeterModbusReader) SetPowerFlowWatt(watts float64) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.PowerFlowWatt = watts
}

func (reader *TestACMeterModbusReader) GetCurrentPowerFlowWatt() (float64, error) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	if reader.Err != nil {
		return 0, reader.Err
	}
	return reader.PowerFlowWatt, nil
}

func (reader *TestACMeterModbusReader) GetPowerFlow() (*ACMeterPowerFlow, error) {
	power, err := reader.GetCurrentPowerFlowWatt()
	if err != nil {
		return nil, err
	}
	pf := NewACMeterPowerFlow(power)
	pf.TotalEnergyExportedKWh = 2770.34
	pf.TotalEnergyImportedKWh = 550.22
	pf.Frequency = 50
	pf.PhaseAVoltage = 234.24
	return pf, nil
}

// Inverter

// TestInverterModbusReader keeps the last written limit so reads observe writes.
type TestInverterModbusReader struct {
	mu       sync.Mutex
	limit    InverterPowerLimit
	writes   int
	ReadErr  error
	WriteErr error
}

func NewTestInverterModbusReader(percent float64) *TestInverterModbusReader {
	return &TestInverterModbusReader{
		limit: InverterPowerLimit{
			Enabled: percent < 100,
			Percent: percent,
		},
	}
}

func (inv *TestInverterModbusReader) Open() error {
	return nil
}

func (inv *TestInverterModbusReader) Close() error {
	return nil
}

func (inv *TestInverterModbusReader) Validate() error {
	return nil
}

func (inv *TestInverterModbusReader) GetInfo() (*InverterInfo, error) {
	if err := inv.readErr(); err != nil {
		return nil, err
	}
	return &InverterInfo{
		Manufacturer:      "Fronius",
		Model:             "Primo 3.0-1",
		Version:           "1.30.7-1",
		Serial:            "PR30000456",
		MaxRatedPowerWatt: 3000,
	}, nil
}

func (inv *TestInverterModbusReader) GetState() (*InverterState, error) {
	if err := inv.readErr(); err != nil {
		return nil, err
	}
	return &InverterState{
		Status:             InverterStatusMPPT,
		CabinetTemperature: 41.7,
	}, nil
}

func (inv *TestInverterModbusReader) SetPowerLimit(powerLimit InverterPowerLimit) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.WriteErr != nil {
		return inv.WriteErr
	}
	if powerLimit.Enabled && (powerLimit.Percent < 0 || powerLimit.Percent > 100) {
		return errors.New("power limit percent out of range")
	}
	inv.limit = powerLimit
	inv.writes++
	return nil
}

func (inv *TestInverterModbusReader) GetPowerLimit() (*InverterPowerLimit, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.ReadErr != nil {
		return nil, inv.ReadErr
	}
	limit := inv.limit
	return &limit, nil
}

func (inv *TestInverterModbusReader) readErr() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.ReadErr
}

func (inv *TestInverterModbusReader) Writes() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.writes
}

func (inv *TestInverterModbusReader) GetPowerFlow() (*InverterPowerFlow, error) {
	if err := inv.readErr(); err != nil {
		return nil, err
	}
	return &InverterPowerFlow{
		ACPowerWatt: 320.2,
		PVPowerWatt: 335.8,
	}, nil
}

func (inv *TestInverterModbusReader) SupportsPowerControl() (bool, error) {
	return true, nil
}

// ensure interface compliance
var (
	_ InverterModbusReader = (*TestInverterModbusReader)(nil)
	_ ACMeterModbusReader  = (*TestACMeterModbusReader)(nil)
	_ InverterModbusReader = (*InverterIntSFModbusReader)(nil)
	_ ACMeterModbusReader  = (*ACMeterIntSFModbusReader)(nil)
)
