package sunspec_modbus

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

var ErrNotSurveyed = errors.New("sunspec: device not surveyed, call Open first")

type InverterIntSFModbusReader struct {
	ModbusClient

	logger        *zap.Logger
	blocks        atomic.Pointer[inverterIntSFModbusBlocks]
	ignoreFronius bool
}

func (inv *InverterIntSFModbusReader) Open() error {
	if err := inv.client.Open(); err != nil {
		return err
	}
	blocks, err := inv.survey()
	if err != nil {
		_ = inv.client.Close()
		return err
	}
	inv.blocks.Store(blocks)
	inv.logger.Debug("sunspec inverter surveyed",
		zap.Uint16("common", blocks.common), zap.Uint16("inverter", blocks.inverter),
		zap.Uint16("controls", blocks.controls), zap.Uint16("mppt", blocks.mppt))
	return nil
}

func (inv *InverterIntSFModbusReader) Close() error {
	return inv.client.Close()
}

func (inv *InverterIntSFModbusReader) layout() (*inverterIntSFModbusBlocks, error) {
	blocks := inv.blocks.Load()
	if blocks == nil {
		return nil, ErrNotSurveyed
	}
	return blocks, nil
}

func (inv *InverterIntSFModbusReader) Validate() error {
	if inv.ignoreFronius {
		return nil
	}
	blocks, err := inv.layout()
	if err != nil {
		return err
	}
	str, err := inv.readString(blocks.common+2, 32)
	if err != nil {
		return err
	}
	if str != "Fronius" {
		return errors.New("could not find a Fronius inverter")
	}
	return nil
}

func (inv *InverterIntSFModbusReader) GetInfo() (*InverterInfo, error) {
	blocks, err := inv.layout()
	if err != nil {
		return nil, err
	}
	manufacturer, err := inv.readString(blocks.common+2, 32)
	if err != nil {
		return nil, err
	}
	model, err := inv.readString(blocks.common+18, 32)
	if err != nil {
		return nil, err
	}
	version, err := inv.readString(blocks.common+42, 16)
	if err != nil {
		return nil, err
	}
	serial, err := inv.readString(blocks.common+50, 32)
	if err != nil {
		return nil, err
	}

	info := &InverterInfo{
		Manufacturer: manufacturer,
		Model:        model,
		Version:      version,
		Serial:       serial,
	}
	// WRtg lives in the nameplate block, which micro-inverters do not always expose
	if blocks.nameplate > 0 {
		pow, err := inv.readRegister(blocks.nameplate+3, modbus.HOLDING_REGISTER)
		if err != nil {
			return nil, err
		}
		powSF, err := inv.readRegister(blocks.nameplate+4, modbus.HOLDING_REGISTER)
		if err != nil {
			return nil, err
		}
		info.MaxRatedPowerWatt = uint32(inv.applySF(pow, powSF))
	}
	return info, nil
}

func (inv *InverterIntSFModbusReader) GetState() (*InverterState, error) {
	blocks, err := inv.layout()
	if err != nil {
		return nil, err
	}
	temp, err := inv.readRegister(blocks.inverter+33, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	tempSF, err := inv.readRegister(blocks.inverter+37, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	state, err := inv.readRegister(blocks.inverter+38, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}

	return &InverterState{
		Status:             InverterStatus(state),
		CabinetTemperature: inv.applySFint16(int16(temp), tempSF),
	}, nil
}

func (inv *InverterIntSFModbusReader) SetPowerLimit(powerLimit InverterPowerLimit) error {
	blocks, err := inv.layout()
	if err != nil {
		return err
	}
	if blocks.controls == 0 {
		return errors.New("sunspec: controls block not supported")
	}
	// WMaxLim_Ena must drop to 0 before a new percentage is accepted
	if err := inv.writeRegister(blocks.controls+9, 0); err != nil {
		return err
	}
	if !powerLimit.Enabled {
		return nil
	}
	sf, err := inv.readRegister(blocks.controls+23, modbus.HOLDING_REGISTER)
	if err != nil {
		return err
	}
	pct := math.Min(math.Max(powerLimit.Percent, 0), 100)
	// [WMaxLimPct, WMaxLimPct_WinTms, WMaxLimPct_RvrtTms, WMaxLimPct_RmpTms, WMaxLim_Ena]
	data := []uint16{
		uint16(math.Round(inv.applySFfloat64Inv(pct, sf))),
		0,
		uint16(min(powerLimit.RevertTimeSeconds, math.MaxUint16)),
		0,
		1,
	}
	return inv.writeRegisters(blocks.controls+5, data)
}

func (inv *InverterIntSFModbusReader) GetPowerLimit() (*InverterPowerLimit, error) {
	blocks, err := inv.layout()
	if err != nil {
		return nil, err
	}
	if blocks.controls == 0 {
		return nil, errors.New("sunspec: controls block not supported")
	}
	regs, err := inv.readRegisters(blocks.controls+5, 5, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	sf, err := inv.readRegister(blocks.controls+23, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}

	return &InverterPowerLimit{
		Enabled:           regs[4] == 1,
		Percent:           inv.applySF(regs[0], sf),
		RevertTimeSeconds: uint32(regs[2]),
	}, nil
}

func (inv *InverterIntSFModbusReader) GetPowerFlow() (*InverterPowerFlow, error) {
	blocks, err := inv.layout()
	if err != nil {
		return nil, err
	}
	acpower, err := inv.readRegisters(blocks.inverter+14, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	pf := &InverterPowerFlow{
		ACPowerWatt: inv.applySFint16(int16(acpower[0]), acpower[1]),
	}
	if blocks.mppt == 0 {
		return pf, nil
	}

	dcPowerSF, err := inv.readRegister(blocks.mppt+4, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	nMods, err := inv.readRegister(blocks.mppt+8, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	for i := uint16(0); i < nMods && i < maxMPPTModules; i++ {
		mpptPower, err := inv.readMPPTPower(blocks, i)
		if err != nil {
			return nil, err
		}
		pf.PVPowerWatt += inv.applySF(mpptPower, dcPowerSF)
	}
	return pf, nil
}

const maxMPPTModules = 4

func (inv *InverterIntSFModbusReader) readMPPTPower(blocks *inverterIntSFModbusBlocks, index uint16) (uint16, error) {
	baseAddr := blocks.mppt + 10 + 20*index
	dcpower, err := inv.readRegister(baseAddr+11, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	// not implemented
	if dcpower == 0xFFFF {
		dcpower = 0
	}
	return dcpower, nil
}

func (inv *InverterIntSFModbusReader) SupportsPowerControl() (bool, error) {
	blocks, err := inv.layout()
	if err != nil {
		return false, err
	}
	return blocks.controls > 0, nil
}

func traceLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus call", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}

func CreateInverterIntSFModbusReader(ip string, port uint, inverterAddress uint8, timeout time.Duration,
	ignoreFronius bool, logger *zap.Logger, instrumentation *ModbusInstrument) (InverterModbusReader, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", ip, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("target", "inverter"), zap.String("host", ip), zap.Uint8("unit", inverterAddress))
	inst := []ModbusInstrument{*traceLoggerInstrumentation(logger)}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	if inverterAddress > 0 {
		if err = client.SetUnitId(inverterAddress); err != nil {
			return nil, err
		}
	}

	return &InverterIntSFModbusReader{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: inst,
		},
		logger:        logger,
		ignoreFronius: ignoreFronius,
	}, nil
}
