package max30100

import "fmt"

// Option defines a functional option for the device.
type Option func(d *Device) (Option, error)

// Options set different configuration options and returns the previous value
// of the last option passed. Options are applied while holding the
// configuration lock, so they never interleave with the interrupt handler or
// a temperature reading.
func (d *Device) Options(options ...Option) (Option, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.options(options...)
}

func (d *Device) options(options ...Option) (Option, error) {
	var old Option
	var err error
	for _, opt := range options {
		old, err = opt(d)
		if err != nil {
			return nil, err
		}
	}

	return old, nil
}

// config does a read-modify-write of reg. Bits set in mask are preserved,
// the rest are replaced by flag. It returns the replaced bits.
func (d *Device) config(reg, mask, flag byte) (byte, error) {
	cfg, err := d.Read(reg)
	if err != nil {
		return 0, fmt.Errorf("could not get %#b from %#x: %w", ^mask, reg, err)
	}
	old := cfg &^ mask
	cfg &= mask
	cfg |= flag &^ mask
	if err := d.Write(reg, cfg); err != nil {
		return 0, fmt.Errorf("could not set %#b in %#x: %w", flag, reg, err)
	}

	return old, nil
}

// Mode sets the operation mode of the device (ModeNone, ModeHR or ModeSpO2).
func Mode(mode byte) Option {
	return func(d *Device) (Option, error) {
		old, err := d.config(ModeCfg, modeMask, mode)
		if err != nil {
			return nil, fmt.Errorf("max30100: could not configure mode: %w", err)
		}
		d.cfg.Mode = mode &^ modeMask

		return Mode(old), nil
	}
}

// SampleRate sets the SpO2 sample rate control of the device.
func SampleRate(sr byte) Option {
	return func(d *Device) (Option, error) {
		old, err := d.config(SpO2Cfg, srMask, sr)
		if err != nil {
			return nil, fmt.Errorf("max30100: could not configure sample rate: %w", err)
		}
		d.cfg.SampleRate = sr &^ srMask

		return SampleRate(old), nil
	}
}

// PulseWidth sets the LED pulse width of the device.
func PulseWidth(pw byte) Option {
	return func(d *Device) (Option, error) {
		old, err := d.config(SpO2Cfg, pwMask, pw)
		if err != nil {
			return nil, fmt.Errorf("max30100: could not configure pulse width: %w", err)
		}
		d.cfg.PulseWidth = pw &^ pwMask

		return PulseWidth(old), nil
	}
}

// HighResolution enables or disables the 16-bit SpO2 ADC.
func HighResolution(on bool) Option {
	return func(d *Device) (Option, error) {
		var flag byte
		if on {
			flag = HiResEna
		}
		old, err := d.config(SpO2Cfg, ^HiResEna, flag)
		if err != nil {
			return nil, fmt.Errorf("max30100: could not configure resolution: %w", err)
		}
		d.cfg.HighRes = on

		return HighResolution(old != 0), nil
	}
}

// LEDCurrents sets the current of the red and IR LEDs. Both take a current
// code from LED0mA to LED50mA.
func LEDCurrents(red, ir byte) Option {
	return func(d *Device) (Option, error) {
		red &= 0x0F
		ir &= 0x0F
		old, err := d.config(LedCfg, 0, red<<4|ir)
		if err != nil {
			return nil, fmt.Errorf("max30100: could not configure LED currents: %w", err)
		}
		d.cfg.RedCurrent = red
		d.cfg.IRCurrent = ir

		return LEDCurrents(old>>4, old&0x0F), nil
	}
}

// Interrupts sets the enabled interrupts. Flags not in i are disabled.
func Interrupts(i byte) Option {
	return func(d *Device) (Option, error) {
		old, err := d.config(IntEnable, 0, i)
		if err != nil {
			return nil, fmt.Errorf("max30100: could not configure interrupt flags: %w", err)
		}
		d.cfg.Interrupts = i

		return Interrupts(old), nil
	}
}

// BurstSize sets how many samples the interrupt handler drains when the
// FIFO is almost full. It accepts values from 1 to MaxBurst.
func BurstSize(n int) Option {
	return func(d *Device) (Option, error) {
		if n <= 0 || n > MaxBurst {
			return nil, fmt.Errorf("max30100: burst of %d samples: %w", n, ErrConfig)
		}
		old := d.burst
		d.burst = n

		return BurstSize(old), nil
	}
}
