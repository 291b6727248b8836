package sunspec_modbus

import (
	"errors"

	"github.com/simonvetter/modbus"
)

const (
	SUNSPEC_BASE_ADDRESS     = 40000
	SUNSPEC_WK_COMMON        = 1
	SUNSPEC_WK_INVERTERS_MIN = 101
	SUNSPEC_WK_INVERTERS_MAX = 103
	SUNSPEC_WK_NAMEPLATE     = 120
	SUNSPEC_WK_STATUS        = 122
	SUNSPEC_WK_CONTROLS      = 123
	SUNSPEC_WK_MPPT          = 160
	SUNSPEC_WK_METERS_MIN    = 201
	SUNSPEC_WK_METERS_MAX    = 204
	SUNSPEC_END_BLOCK        = 0xFFFF

	maxSurveyBlocks = 32
)

type inverterIntSFModbusBlocks struct {
	common    uint16
	inverter  uint16
	nameplate uint16
	status    uint16
	controls  uint16
	mppt      uint16
}

func (blk *inverterIntSFModbusBlocks) allBlocksDefined() bool {
	return blk.common > 0 && blk.inverter > 0 && blk.nameplate > 0 &&
		blk.status > 0 && blk.controls > 0 && blk.mppt > 0
}

// survey walks the SunSpec block chain. Feed-in control needs the controls
// block, so an inverter without it is rejected.
func (inv *InverterIntSFModbusReader) survey() (*inverterIntSFModbusBlocks, error) {
	if err := checkSunSpecMarker(inv.ModbusClient); err != nil {
		return nil, err
	}

	blocks := &inverterIntSFModbusBlocks{}
	err := walkModbusBlocks(inv.client, func(block *modbusBlock) bool {
		switch {
		case block.id >= SUNSPEC_WK_INVERTERS_MIN && block.id <= SUNSPEC_WK_INVERTERS_MAX:
			blocks.inverter = block.baseAddr
		case block.id == SUNSPEC_WK_COMMON:
			blocks.common = block.baseAddr
		case block.id == SUNSPEC_WK_NAMEPLATE:
			blocks.nameplate = block.baseAddr
		case block.id == SUNSPEC_WK_STATUS:
			blocks.status = block.baseAddr
		case block.id == SUNSPEC_WK_CONTROLS:
			blocks.controls = block.baseAddr
		case block.id == SUNSPEC_WK_MPPT:
			blocks.mppt = block.baseAddr
		}
		return !blocks.allBlocksDefined()
	})
	if err != nil {
		return nil, err
	}
	if blocks.common > 0 && blocks.inverter > 0 && blocks.controls > 0 {
		return blocks, nil
	}
	return nil, errors.New("could not find all required sunspec blocks (common, inverter, controls)")
}

type modbusBlock struct {
	id       uint16
	baseAddr uint16
	length   uint16
}

func (block *modbusBlock) isEndBlock() bool {
	return block.id == SUNSPEC_END_BLOCK
}

func checkSunSpecMarker(client ModbusClient) error {
	str, err := client.readString(SUNSPEC_BASE_ADDRESS, 4)
	if err != nil {
		return err
	}
	if str != "SunS" {
		return errors.New("could not find a SunSpec device")
	}
	return nil
}

// walkModbusBlocks calls visit for every block header after the SunSpec
// marker until the end block, or until visit returns false.
func walkModbusBlocks(client *modbus.ModbusClient, visit func(block *modbusBlock) bool) error {
	var baseAddr uint16 = SUNSPEC_BASE_ADDRESS + 2
	for n := 0; n < maxSurveyBlocks; n++ {
		block, err := surveyModbusBlock(client, baseAddr)
		if err != nil {
			return err
		}
		if block.isEndBlock() || !visit(block) {
			return nil
		}
		next := uint32(baseAddr) + uint32(block.length) + 2
		if next > maxRegisterAddress {
			return errors.New("sunspec block chain overflows the register space")
		}
		baseAddr = uint16(next)
	}
	return nil
}

const maxRegisterAddress = 0xFFFF

func surveyModbusBlock(client *modbus.ModbusClient, baseAddr uint16) (*modbusBlock, error) {
	header, err := client.ReadRegisters(baseAddr, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &modbusBlock{
		id:       header[0],
		length:   header[1],
		baseAddr: baseAddr,
	}, nil
}
