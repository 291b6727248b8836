package sunspec_modbus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbrandon/mbserver"
	"go.uber.org/zap"
)

const (
	testInverterPort = 35502
	testMeterPort    = 35503
	testNoCtrlPort   = 35504

	commonAddr    = 40002
	inverterAddr  = 40070
	nameplateAddr = 40122
	controlsAddr  = 40150
	mpptAddr      = 40176
	endAddr       = 40226

	meterCommonAddr = 40002
	meterAddr       = 40070
	meterEndAddr    = 40177
)

func putString(regs []uint16, addr int, s string, nRegs int) {
	b := make([]byte, nRegs*2)
	copy(b, s)
	for i := 0; i < nRegs; i++ {
		regs[addr+i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
}

func putBlockHeader(regs []uint16, addr int, id, length uint16) {
	regs[addr] = id
	regs[addr+1] = length
}

func putCommon(regs []uint16, addr int, manufacturer, model, version, serial string) {
	putBlockHeader(regs, addr, SUNSPEC_WK_COMMON, 66)
	putString(regs, addr+2, manufacturer, 16)
	putString(regs, addr+18, model, 16)
	putString(regs, addr+42, version, 8)
	putString(regs, addr+50, serial, 16)
}

func startServer(t *testing.T, port int, fill func(regs []uint16)) *mbserver.Server {
	t.Helper()
	server := mbserver.NewServer()
	putString(server.HoldingRegisters, SUNSPEC_BASE_ADDRESS, "SunS", 2)
	fill(server.HoldingRegisters)
	require.NoError(t, server.ListenTCP(fmt.Sprintf("127.0.0.1:%d", port)))
	t.Cleanup(server.Close)
	return server
}

func fillInverter(regs []uint16) {
	putCommon(regs, commonAddr, "Fronius", "Primo 3.0-1", "1.30.7-1", "PR30000456")

	putBlockHeader(regs, inverterAddr, 103, 50)
	regs[inverterAddr+14] = 1500                       // W
	regs[inverterAddr+15] = 0                          // W_SF
	regs[inverterAddr+33] = 417                        // TmpCab
	regs[inverterAddr+37] = 0xFFFF                     // Tmp_SF = -1
	regs[inverterAddr+38] = uint16(InverterStatusMPPT) // St

	putBlockHeader(regs, nameplateAddr, SUNSPEC_WK_NAMEPLATE, 26)
	regs[nameplateAddr+3] = 300 // WRtg
	regs[nameplateAddr+4] = 1   // WRtg_SF

	putBlockHeader(regs, controlsAddr, SUNSPEC_WK_CONTROLS, 24)
	regs[controlsAddr+5] = 10000   // WMaxLimPct
	regs[controlsAddr+7] = 0       // WMaxLimPct_RvrtTms
	regs[controlsAddr+9] = 0       // WMaxLim_Ena
	regs[controlsAddr+23] = 0xFFFE // WMaxLimPct_SF = -2

	putBlockHeader(regs, mpptAddr, SUNSPEC_WK_MPPT, 48)
	regs[mpptAddr+4] = 0 // DCW_SF
	regs[mpptAddr+8] = 2 // N
	regs[mpptAddr+10+11] = 800
	regs[mpptAddr+30+11] = 750

	putBlockHeader(regs, endAddr, SUNSPEC_END_BLOCK, 0)
}

func fillMeter(regs []uint16) {
	putCommon(regs, meterCommonAddr, "Fronius", "Smart Meter TS 65A-3", "1.3", "TS65A3000123")

	putBlockHeader(regs, meterAddr, 203, 105)
	regs[meterAddr+8] = 23424                      // PhVphA
	regs[meterAddr+15] = 0xFFFE                    // V_SF
	regs[meterAddr+16] = 5000                      // Hz
	regs[meterAddr+17] = 0xFFFE                    // Hz_SF
	regs[meterAddr+18] = uint16(0xFFFF - 1250 + 1) // W = -1250
	regs[meterAddr+22] = 0                         // W_SF
	regs[meterAddr+38+1] = 2770                    // TotWhExp low word
	regs[meterAddr+46+1] = 550                     // TotWhImp low word
	regs[meterAddr+54] = 3                         // TotWh_SF

	putBlockHeader(regs, meterEndAddr, SUNSPEC_END_BLOCK, 0)
}

func openInverter(t *testing.T, port int) InverterModbusReader {
	t.Helper()
	reader, err := CreateInverterIntSFModbusReader("127.0.0.1", uint(port), 0, time.Second, false, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, reader.Open())
	t.Cleanup(func() { _ = reader.Close() })
	return reader
}

func TestInverterSurveyAndInfo(t *testing.T) {
	startServer(t, testInverterPort, fillInverter)
	reader := openInverter(t, testInverterPort)

	require.NoError(t, reader.Validate())

	info, err := reader.GetInfo()
	require.NoError(t, err)
	assert.Equal(t, "Fronius", info.Manufacturer)
	assert.Equal(t, "Primo 3.0-1", info.Model)
	assert.Equal(t, "1.30.7-1", info.Version)
	assert.Equal(t, "PR30000456", info.Serial)
	assert.Equal(t, uint32(3000), info.MaxRatedPowerWatt)

	state, err := reader.GetState()
	require.NoError(t, err)
	assert.InDelta(t, 41.7, state.CabinetTemperature, 0.001)
	assert.Equal(t, InverterStatusMPPT, state.Status)
	assert.Equal(t, "mppt_tracking", state.Status.String())

	pc, err := reader.SupportsPowerControl()
	require.NoError(t, err)
	assert.True(t, pc)

	pf, err := reader.GetPowerFlow()
	require.NoError(t, err)
	assert.Equal(t, 1500.0, pf.ACPowerWatt)
	assert.Equal(t, 1550.0, pf.PVPowerWatt)
}

func TestInverterPowerLimit(t *testing.T) {
	server := startServer(t, testInverterPort, fillInverter)
	reader := openInverter(t, testInverterPort)

	limit, err := reader.GetPowerLimit()
	require.NoError(t, err)
	assert.False(t, limit.Enabled)
	assert.InDelta(t, 100.0, limit.Percent, 0.001)

	err = reader.SetPowerLimit(InverterPowerLimit{Enabled: true, Percent: 42.57, RevertTimeSeconds: 60})
	require.NoError(t, err)

	assert.Equal(t, uint16(4257), server.HoldingRegisters[controlsAddr+5])
	assert.Equal(t, uint16(60), server.HoldingRegisters[controlsAddr+7])
	assert.Equal(t, uint16(1), server.HoldingRegisters[controlsAddr+9])

	limit, err = reader.GetPowerLimit()
	require.NoError(t, err)
	assert.True(t, limit.Enabled)
	assert.InDelta(t, 42.57, limit.Percent, 0.001)
	assert.Equal(t, uint32(60), limit.RevertTimeSeconds)

	// disabling only clears the enable flag
	require.NoError(t, reader.SetPowerLimit(InverterPowerLimit{Enabled: false}))
	assert.Equal(t, uint16(0), server.HoldingRegisters[controlsAddr+9])
	assert.Equal(t, uint16(4257), server.HoldingRegisters[controlsAddr+5])
}

func TestInverterPercentIsClamped(t *testing.T) {
	server := startServer(t, testInverterPort, fillInverter)
	reader := openInverter(t, testInverterPort)

	require.NoError(t, reader.SetPowerLimit(InverterPowerLimit{Enabled: true, Percent: 180}))
	assert.Equal(t, uint16(10000), server.HoldingRegisters[controlsAddr+5])
}

func TestInverterWithoutControlsIsRejected(t *testing.T) {
	startServer(t, testNoCtrlPort, func(regs []uint16) {
		fillInverter(regs)
		// storage block in place of controls
		regs[controlsAddr] = 124
	})

	reader, err := CreateInverterIntSFModbusReader("127.0.0.1", testNoCtrlPort, 0, time.Second, false, zap.NewNop(), nil)
	require.NoError(t, err)
	assert.Error(t, reader.Open())
}

func TestInverterNotSurveyed(t *testing.T) {
	reader, err := CreateInverterIntSFModbusReader("127.0.0.1", testInverterPort, 0, time.Second, false, zap.NewNop(), nil)
	require.NoError(t, err)

	_, err = reader.GetPowerLimit()
	assert.ErrorIs(t, err, ErrNotSurveyed)
	err = reader.SetPowerLimit(InverterPowerLimit{Enabled: true, Percent: 10})
	assert.ErrorIs(t, err, ErrNotSurveyed)
}

func TestMeter(t *testing.T) {
	startServer(t, testMeterPort, fillMeter)

	reader, err := CreateACMeterIntSFModbusReader("127.0.0.1", testMeterPort, 240, time.Second, false, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, reader.Open())
	t.Cleanup(func() { _ = reader.Close() })
	require.NoError(t, reader.Validate())

	info, err := reader.GetInfo()
	require.NoError(t, err)
	assert.Equal(t, "Smart Meter TS 65A-3", info.Model)
	assert.Equal(t, "TS65A3000123", info.Serial)

	power, err := reader.GetCurrentPowerFlowWatt()
	require.NoError(t, err)
	assert.Equal(t, -1250.0, power)

	pf, err := reader.GetPowerFlow()
	require.NoError(t, err)
	assert.Equal(t, 1250.0, pf.CurrentExportPowerWatt)
	assert.Zero(t, pf.CurrentImportPowerWatt)
	assert.InDelta(t, 50.0, pf.Frequency, 0.001)
	assert.InDelta(t, 234.24, pf.PhaseAVoltage, 0.001)
	assert.InDelta(t, 2770.0, pf.TotalEnergyExportedKWh, 0.001)
	assert.InDelta(t, 550.0, pf.TotalEnergyImportedKWh, 0.001)
}

func TestACMeterPowerFlowSides(t *testing.T) {
	pf := NewACMeterPowerFlow(-420)
	assert.Equal(t, 420.0, pf.CurrentExportPowerWatt)
	assert.Zero(t, pf.CurrentImportPowerWatt)

	pf = NewACMeterPowerFlow(75)
	assert.Equal(t, 75.0, pf.CurrentImportPowerWatt)
	assert.Zero(t, pf.CurrentExportPowerWatt)

	pf = NewACMeterPowerFlow(0)
	assert.Zero(t, pf.CurrentImportPowerWatt)
	assert.Zero(t, pf.CurrentExportPowerWatt)
}

func TestMockedReaders(t *testing.T) {
	inv := NewTestInverterModbusReader(50)
	require.NoError(t, inv.SetPowerLimit(InverterPowerLimit{Enabled: true, Percent: 25}))
	limit, err := inv.GetPowerLimit()
	require.NoError(t, err)
	assert.Equal(t, 25.0, limit.Percent)
	assert.Equal(t, 1, inv.Writes())
	assert.Error(t, inv.SetPowerLimit(InverterPowerLimit{Enabled: true, Percent: 120}))

	meter := &TestACMeterModbusReader{}
	meter.SetPowerFlowWatt(300)
	pf, err := meter.GetPowerFlow()
	require.NoError(t, err)
	assert.Equal(t, 300.0, pf.CurrentImportPowerWatt)
}
