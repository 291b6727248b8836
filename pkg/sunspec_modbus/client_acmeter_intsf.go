package sunspec_modbus

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type acMeterIntSFModbusBlocks struct {
	common  uint16
	acMeter uint16
}

func (blk *acMeterIntSFModbusBlocks) allBlocksDefined() bool {
	return blk.common > 0 && blk.acMeter > 0
}

type ACMeterIntSFModbusReader struct {
	ModbusClient
	blocks        atomic.Pointer[acMeterIntSFModbusBlocks]
	ignoreFronius bool
}

func CreateACMeterIntSFModbusReader(ip string, port uint, acMeterAddress uint8, timeout time.Duration,
	ignoreFronius bool, logger *zap.Logger, instrumentation *ModbusInstrument) (ACMeterModbusReader, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", ip, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	inst := []ModbusInstrument{
		*traceLoggerInstrumentation(logger.With(zap.String("target", "acMeter"), zap.Uint8("acMeter", acMeterAddress))),
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	if err = client.SetUnitId(acMeterAddress); err != nil {
		return nil, err
	}
	return &ACMeterIntSFModbusReader{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: inst,
		},
		ignoreFronius: ignoreFronius,
	}, nil
}

func (reader *ACMeterIntSFModbusReader) Open() error {
	if err := reader.client.Open(); err != nil {
		return err
	}
	blocks, err := reader.survey()
	if err != nil {
		_ = reader.client.Close()
		return err
	}
	reader.blocks.Store(blocks)
	return nil
}

func (reader *ACMeterIntSFModbusReader) Close() error {
	return reader.client.Close()
}

func (reader *ACMeterIntSFModbusReader) layout() (*acMeterIntSFModbusBlocks, error) {
	blocks := reader.blocks.Load()
	if blocks == nil {
		return nil, ErrNotSurveyed
	}
	return blocks, nil
}

func (reader *ACMeterIntSFModbusReader) Validate() error {
	if reader.ignoreFronius {
		return nil
	}
	blocks, err := reader.layout()
	if err != nil {
		return err
	}
	str, err := reader.readString(blocks.common+2, 32)
	if err != nil {
		return err
	}
	if str != "Fronius" {
		return errors.New("could not find a Fronius smart meter")
	}
	return nil
}

func (reader *ACMeterIntSFModbusReader) GetInfo() (*ACMeterInfo, error) {
	blocks, err := reader.layout()
	if err != nil {
		return nil, err
	}
	manufacturer, err := reader.readString(blocks.common+2, 32)
	if err != nil {
		return nil, err
	}
	model, err := reader.readString(blocks.common+18, 32)
	if err != nil {
		return nil, err
	}
	version, err := reader.readString(blocks.common+42, 16)
	if err != nil {
		return nil, err
	}
	serial, err := reader.readString(blocks.common+50, 32)
	if err != nil {
		return nil, err
	}

	return &ACMeterInfo{
		Manufacturer: manufacturer,
		Model:        model,
		Version:      version,
		Serial:       serial,
	}, nil
}

// GetCurrentPowerFlowWatt reads the total real power. Positive = import.
func (reader *ACMeterIntSFModbusReader) GetCurrentPowerFlowWatt() (float64, error) {
	blocks, err := reader.layout()
	if err != nil {
		return 0, err
	}
	regs, err := reader.readRegisters(blocks.acMeter+18, 5, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	// regs: W, WphA, WphB, WphC, W_SF
	return reader.applySFint16(int16(regs[0]), regs[4]), nil
}

func (reader *ACMeterIntSFModbusReader) GetPowerFlow() (*ACMeterPowerFlow, error) {
	blocks, err := reader.layout()
	if err != nil {
		return nil, err
	}
	totalRealPower, err := reader.GetCurrentPowerFlowWatt()
	if err != nil {
		return nil, err
	}
	totalEnergyExported, err := reader.readUint32(blocks.acMeter+38, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	totalEnergyImported, err := reader.readUint32(blocks.acMeter+46, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	totWhSF, err := reader.readRegister(blocks.acMeter+54, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	freq, err := reader.readRegisters(blocks.acMeter+16, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	phaseAVoltage, err := reader.readRegister(blocks.acMeter+8, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	phaseAVoltageSF, err := reader.readRegister(blocks.acMeter+15, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}

	pf := NewACMeterPowerFlow(totalRealPower)
	pf.TotalEnergyExportedKWh = reader.applySFuint32(totalEnergyExported, totWhSF) / 1000
	pf.TotalEnergyImportedKWh = reader.applySFuint32(totalEnergyImported, totWhSF) / 1000
	pf.Frequency = reader.applySF(freq[0], freq[1])
	pf.PhaseAVoltage = reader.applySF(phaseAVoltage, phaseAVoltageSF)
	return pf, nil
}

func (reader *ACMeterIntSFModbusReader) survey() (*acMeterIntSFModbusBlocks, error) {
	if err := checkSunSpecMarker(reader.ModbusClient); err != nil {
		return nil, err
	}

	blocks := &acMeterIntSFModbusBlocks{}
	err := walkModbusBlocks(reader.client, func(block *modbusBlock) bool {
		switch {
		case block.id == SUNSPEC_WK_COMMON:
			blocks.common = block.baseAddr
		case block.id >= SUNSPEC_WK_METERS_MIN && block.id <= SUNSPEC_WK_METERS_MAX:
			blocks.acMeter = block.baseAddr
		}
		return !blocks.allBlocksDefined()
	})
	if err != nil {
		return nil, err
	}
	if blocks.allBlocksDefined() {
		return blocks, nil
	}
	return nil, errors.New("could not find all required sunspec blocks (common, ac_meter)")
}
