package tof

import "github.com/banshee-data/range.report/internal/regbus"

// Register map (16-bit addresses).
const (
	RegSoftReset        uint16 = 0x0000
	RegPadI2CConfig     uint16 = 0x0008
	RegGPIOMux          uint16 = 0x0030
	RegGPIOStatus       uint16 = 0x0031
	RegDSSTargetRate    uint16 = 0x0044
	RegTimeoutA         uint16 = 0x005E
	RegVCSELPeriodA     uint16 = 0x0060
	RegTimeoutB         uint16 = 0x0061
	RegVCSELPeriodB     uint16 = 0x0063
	RegSigmaThreshold   uint16 = 0x0064
	RegMinCountRate     uint16 = 0x0066
	RegInterMeasurement uint16 = 0x006C
	RegInterruptClear   uint16 = 0x0086
	RegModeStart        uint16 = 0x0087
	RegRangeStatus      uint16 = 0x0089
	RegSignalRate       uint16 = 0x008E
	RegRangeMM          uint16 = 0x0096
	RegFirmwareStatus   uint16 = 0x00E5
	RegModelID          uint16 = 0x010F
)

// SensorID is the value of RegModelID on a VL53L4CX.
const SensorID uint16 = 0xEBAA

const (
	modeContinuous uint32 = 0x40
	modeIdle       uint32 = 0x00

	interruptClear uint32 = 0x01
	dataReadyBit   uint32 = 0x01
	firmwareReady  uint32 = 0x01

	rangeStatusMask = 0x1F
	signalRateScale = 128.0
)

type regWrite struct {
	reg   uint16
	value uint32
	width regbus.Width
}

// staticConfig is written in order after the identity check. Later writes
// assume the earlier ones have taken effect; do not reorder.
var staticConfig = []regWrite{
	{RegPadI2CConfig, 0x09, regbus.Width8},
	{RegGPIOMux, 0x10, regbus.Width8},
	{RegVCSELPeriodA, 0x0B, regbus.Width8},
	{RegVCSELPeriodB, 0x09, regbus.Width8},
	{RegDSSTargetRate, 0x0A00, regbus.Width16},
	{RegTimeoutA, 0x00B1, regbus.Width16},
	{RegTimeoutB, 0x0099, regbus.Width16},
	{RegSigmaThreshold, 0x00C0, regbus.Width16},
	{RegMinCountRate, 0x0040, regbus.Width16},
	{RegInterMeasurement, 0x00000BB8, regbus.Width32},
}
