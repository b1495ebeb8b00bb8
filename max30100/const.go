package max30100

import "periph.io/x/periph/conn/physic"

// Register addresses
const (
	IntStatus = 0x00
	IntEnable = 0x01
	FIFOWrPtr = 0x02
	OvfCount  = 0x03
	FIFORdPtr = 0x04
	FIFOData  = 0x05
	ModeCfg   = 0x06
	SpO2Cfg   = 0x07
	LedCfg    = 0x09
	TempInt   = 0x16
	TempFrac  = 0x17
	RegRevID  = 0xFE
	RegPartID = 0xFF
)

// Interrupt flags, shared by IntStatus and IntEnable.
const (
	AlmostFull byte = (1 << 7)
	TempReady  byte = (1 << 6)
	HRReady    byte = (1 << 5)
	SpO2Ready  byte = (1 << 4)
	PowerReady byte = (1 << 0)
)

// Device constants
const (
	Addr   = 0x57
	PartID = 0x11

	// FIFODepth is the number of samples the device FIFO holds.
	FIFODepth = 32
	// MaxBurst is the largest number of samples drained in one transaction.
	MaxBurst = FIFODepth / 2

	bytesPerSample = 4
)

// Mode configuration
const (
	ModeNone byte = 0b000
	ModeHR   byte = 0b010
	ModeSpO2 byte = 0b011

	TempEna      byte = 0b0000_1000
	ResetControl byte = 0b0100_0000
	Shutdown     byte = 0b1000_0000

	modeMask byte = 0b1111_1000
)

// SpO2 Sample Rate Control
const (
	SR50 byte = (iota << 2)
	SR100
	SR167
	SR200
	SR400
	SR600
	SR800
	SR1000

	srMask byte = 0b1_1_1_000_11
)

var sampleRates = [...]physic.Frequency{
	50 * physic.Hertz,
	100 * physic.Hertz,
	167 * physic.Hertz,
	200 * physic.Hertz,
	400 * physic.Hertz,
	600 * physic.Hertz,
	800 * physic.Hertz,
	1000 * physic.Hertz,
}

// SampleRateFrequency converts a sample rate control value (SR50 to SR1000)
// to its frequency.
func SampleRateFrequency(sr byte) physic.Frequency {
	return sampleRates[(sr>>2)&0b111]
}

// LED Pulse Width Control. The width also sets the ADC resolution, from
// 13-bit at 200us to 16-bit at 1600us.
const (
	PW200 byte = iota
	PW400
	PW800
	PW1600

	pwMask byte = 0b1_1_1_111_00
)

// HiResEna enables the 16-bit SpO2 ADC resolution.
const HiResEna byte = 0b0100_0000

// LED current codes. Red current lives in the upper nibble of LedCfg, IR in
// the lower one.
const (
	LED0mA byte = iota
	LED4_4mA
	LED7_6mA
	LED11mA
	LED14_2mA
	LED17_4mA
	LED20_8mA
	LED24mA
	LED27_1mA
	LED30_6mA
	LED33_8mA
	LED37mA
	LED40_2mA
	LED43_6mA
	LED46_8mA
	LED50mA
)
