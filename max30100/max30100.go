package max30100

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/periph/conn"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"
)

const (
	resetRetries = 10
	resetBackoff = 10 * time.Millisecond

	tempRetries = 50
	tempBackoff = 10 * time.Millisecond
)

// Sample is one PPG reading pair.
type Sample struct {
	IR  uint16
	Red uint16
}

// Burst is a block of samples drained from the FIFO on an almost full
// interrupt. It is passed by value.
type Burst struct {
	Samples [MaxBurst]Sample
	N       int
}

// Slice returns the valid samples of the burst.
func (b *Burst) Slice() []Sample {
	return b.Samples[:b.N]
}

// Config is the driver copy of the device configuration.
type Config struct {
	Mode       byte
	SampleRate byte
	PulseWidth byte
	RedCurrent byte
	IRCurrent  byte
	Interrupts byte
	HighRes    bool
}

// Rate returns the configured sample rate.
func (c Config) Rate() physic.Frequency {
	return SampleRateFrequency(c.SampleRate)
}

// Device defines a MAX30100 device.
type Device struct {
	conn  conn.Conn
	bus   i2c.BusCloser
	log   *zap.Logger
	sleep func(time.Duration)

	// mu serializes configuration changes, the interrupt handler and the
	// temperature sequence. They share the interrupt enable register.
	mu    sync.Mutex
	cfg   Config
	burst int

	bursts  chan Burst
	dropped atomic.Uint64
	temp    atomic.Uint64
	hasTemp atomic.Bool

	// PartID and RevID are set by the manufacturer. PartID should be 0x11.
	PartID byte
	RevID  byte
}

// Open returns a new MAX30100 device on an I2C bus.
//
// Argument "busName" can be used to specify the exact bus to use ("/dev/i2c-2", "I2C2", "2").
// Argument "addr" can be used to specify alternative address if default (0x57) is unavailable and changed.
// If "busName" argument is specified as an empty string "" the first available bus will be used.
func Open(busName string, addr uint16, log *zap.Logger, opts ...Option) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("max30100: could not initialize host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("max30100: could not open I2C bus: %w", err)
	}

	if addr == 0 {
		addr = Addr
	}

	d, err := New(&i2c.Dev{Addr: addr, Bus: bus}, log, opts...)
	if err != nil {
		bus.Close()
		return nil, err
	}
	d.bus = bus

	return d, nil
}

// New initializes a MAX30100 device reachable through c. By default, this
// sets SpO2 mode, a LED current of 20.8mA, a pulse width of 1600us, a sample
// rate of 100 samples/s and enables the FIFO almost full interrupt. opts are
// applied on top of the defaults, before the interrupt is enabled.
func New(c conn.Conn, log *zap.Logger, opts ...Option) (*Device, error) {
	if log == nil {
		log = zap.NewNop()
	}

	d := &Device{
		conn:   c,
		log:    log.Named("max30100"),
		sleep:  time.Sleep,
		burst:  MaxBurst,
		bursts: make(chan Burst, 1),
	}

	if err := d.init(opts...); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Device) init(opts ...Option) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.reset(); err != nil {
		return fmt.Errorf("max30100: could not reset device: %w", err)
	}

	part, err := d.Read(RegPartID)
	if err != nil {
		return fmt.Errorf("max30100: could not get part ID: %w", err)
	}
	d.PartID = part
	if part != PartID {
		d.log.Warn("unexpected part ID, continuing",
			zap.Uint8("want", PartID),
			zap.Uint8("got", part),
			zap.Error(ErrNotDevice),
		)
	}

	if d.RevID, err = d.Read(RegRevID); err != nil {
		return fmt.Errorf("max30100: could not get revision ID: %w", err)
	}

	if _, err := d.options(Interrupts(0)); err != nil {
		return fmt.Errorf("max30100: could not initialize device: %w", err)
	}
	if err := d.clearFIFO(); err != nil {
		return fmt.Errorf("max30100: could not initialize device: %w", err)
	}
	if _, err := d.options(
		PulseWidth(PW1600),
		SampleRate(SR100),
		LEDCurrents(LED20_8mA, LED20_8mA),
		HighResolution(true),
		Mode(ModeSpO2),
	); err != nil {
		return fmt.Errorf("max30100: could not initialize device: %w", err)
	}
	if _, err := d.options(opts...); err != nil {
		return fmt.Errorf("max30100: could not initialize device: %w", err)
	}
	if _, err := d.options(Interrupts(AlmostFull)); err != nil {
		return fmt.Errorf("max30100: could not initialize device: %w", err)
	}

	d.log.Info("device initialized",
		zap.Uint8("part", d.PartID),
		zap.Uint8("rev", d.RevID),
		zap.Stringer("rate", d.cfg.Rate()),
	)

	return nil
}

// Close shuts the device down and releases the bus if Open created it.
func (d *Device) Close() error {
	err := d.Shutdown()
	if d.bus != nil {
		err = multierr.Append(err, d.bus.Close())
	}
	return err
}

// Config returns the current device configuration.
func (d *Device) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Read reads a single byte from a register.
func (d *Device) Read(reg byte) (byte, error) {
	var b [1]byte
	if err := d.conn.Tx([]byte{reg}, b[:]); err != nil {
		return 0, &BusError{Op: "read", Reg: reg, Err: err}
	}

	return b[0], nil
}

// Write writes a byte to a register.
func (d *Device) Write(reg, data byte) error {
	if err := d.conn.Tx([]byte{reg, data}, nil); err != nil {
		return &BusError{Op: "write", Reg: reg, Err: err}
	}

	return nil
}

// Reset resets the device. All configurations, thresholds, and data registers
// are reset to their power-on state.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset()
}

func (d *Device) reset() error {
	if _, err := d.config(ModeCfg, ^ResetControl, ResetControl); err != nil {
		return err
	}

	for i := 0; i < resetRetries; i++ {
		d.sleep(resetBackoff)
		mode, err := d.Read(ModeCfg)
		if err != nil {
			return err
		}
		if mode&ResetControl == 0 {
			d.cfg = Config{}
			return nil
		}
	}

	return ErrResetTimeout
}

// ClearFIFO resets the FIFO read and write pointers and the overflow counter.
func (d *Device) ClearFIFO() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clearFIFO()
}

func (d *Device) clearFIFO() error {
	for _, reg := range []byte{FIFOWrPtr, FIFORdPtr, OvfCount} {
		if err := d.Write(reg, 0); err != nil {
			return err
		}
	}
	return nil
}

// DrainFIFO reads len(dst) samples from the FIFO in a single transaction.
// dst must hold between 1 and MaxBurst samples. On failure dst is left
// untouched.
func (d *Device) DrainFIFO(dst []Sample) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drainFIFO(dst)
}

func (d *Device) drainFIFO(dst []Sample) (int, error) {
	n := len(dst)
	if n == 0 || n > MaxBurst {
		return 0, fmt.Errorf("max30100: drain of %d samples: %w", n, ErrConfig)
	}

	var raw [MaxBurst * bytesPerSample]byte
	buf := raw[:n*bytesPerSample]
	if err := d.conn.Tx([]byte{FIFOData}, buf); err != nil {
		return 0, &BusError{Op: "drain", Reg: FIFOData, Err: err}
	}

	for i := range dst {
		o := i * bytesPerSample
		dst[i] = Sample{
			IR:  binary.BigEndian.Uint16(buf[o:]),
			Red: binary.BigEndian.Uint16(buf[o+2:]),
		}
	}

	return n, nil
}

// Bursts returns the channel on which the interrupt handler delivers drained
// sample blocks. It holds at most one pending burst.
func (d *Device) Bursts() <-chan Burst {
	return d.bursts
}

// Dropped returns how many bursts were discarded because the previous one
// had not been consumed yet.
func (d *Device) Dropped() uint64 {
	return d.dropped.Load()
}

// LastTemperature returns the last die temperature decoded by the device,
// either by the interrupt handler or by ReadTemperatureOnce.
func (d *Device) LastTemperature() (float64, bool) {
	return math.Float64frombits(d.temp.Load()), d.hasTemp.Load()
}

func (d *Device) storeTemperature(t float64) {
	d.temp.Store(math.Float64bits(t))
	d.hasTemp.Store(true)
}

// HandleInterrupt services the sensor interrupt. It reads the interrupt
// status once, drains a burst when the FIFO is almost full and decodes the
// die temperature when it is ready. Only bounded bus transactions are made.
func (d *Device) HandleInterrupt() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	status, err := d.Read(IntStatus)
	if err != nil {
		return fmt.Errorf("max30100: could not read interrupt status: %w", err)
	}

	if status&AlmostFull != 0 {
		var b Burst
		n, err := d.drainFIFO(b.Samples[:d.burst])
		if err != nil {
			return fmt.Errorf("max30100: could not drain FIFO: %w", err)
		}
		b.N = n

		select {
		case d.bursts <- b:
		default:
			d.dropped.Add(1)
			d.log.Debug("burst dropped, previous one not consumed", zap.Uint64("dropped", d.dropped.Load()))
		}
	}

	if status&TempReady != 0 {
		t, err := d.readTemp()
		if err != nil {
			return err
		}
		d.storeTemperature(t)
	}

	return nil
}

func (d *Device) readTemp() (float64, error) {
	i, err := d.Read(TempInt)
	if err != nil {
		return 0, fmt.Errorf("max30100: could not read integer part of temperature: %w", err)
	}

	f, err := d.Read(TempFrac)
	if err != nil {
		return 0, fmt.Errorf("max30100: could not read fractional part of temperature: %w", err)
	}

	return float64(int8(i)) + float64(f&0x0F)*0.0625, nil
}

// ReadTemperatureOnce runs a one-shot die temperature conversion. The mode
// and interrupt enable registers are saved, the conversion is started with
// only the temperature ready interrupt enabled, and the saved values are
// written back whatever the outcome. It returns ErrTempTimeout if the
// conversion does not complete in about 500ms. A restore failure is joined
// to the result as ErrRestore and never replaces the first error.
func (d *Device) ReadTemperatureOnce() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mode, err := d.Read(ModeCfg)
	if err != nil {
		return 0, fmt.Errorf("max30100: could not save mode: %w", err)
	}
	ints, err := d.Read(IntEnable)
	if err != nil {
		return 0, fmt.Errorf("max30100: could not save interrupt flags: %w", err)
	}

	t, err := d.convertTemp(mode)

	if rerr := d.restore(mode, ints); rerr != nil {
		d.log.Error("configuration not restored after temperature reading", zap.Error(rerr))
		err = multierr.Append(err, rerr)
	}
	if err != nil {
		return 0, err
	}

	d.storeTemperature(t)
	return t, nil
}

func (d *Device) convertTemp(mode byte) (float64, error) {
	if err := d.Write(ModeCfg, mode&^(Shutdown|ResetControl)|TempEna); err != nil {
		return 0, fmt.Errorf("max30100: could not enable temperature: %w", err)
	}
	if err := d.Write(IntEnable, TempReady); err != nil {
		return 0, fmt.Errorf("max30100: could not enable temperature interrupt: %w", err)
	}

	for i := 0; i < tempRetries; i++ {
		d.sleep(tempBackoff)
		status, err := d.Read(IntStatus)
		if err != nil {
			return 0, fmt.Errorf("max30100: could not read temperature state: %w", err)
		}
		if status&TempReady != 0 {
			return d.readTemp()
		}
	}

	return 0, ErrTempTimeout
}

// restore writes back the saved mode and interrupt flags. When the almost
// full interrupt was enabled the FIFO is cleared too: its status flag may
// have been consumed while polling, and an already full FIFO would not raise
// it again.
func (d *Device) restore(mode, ints byte) error {
	var errs error
	errs = multierr.Append(errs, d.Write(ModeCfg, mode))
	errs = multierr.Append(errs, d.Write(IntEnable, ints))
	if errs == nil && ints&AlmostFull != 0 {
		errs = d.clearFIFO()
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", ErrRestore, errs)
	}
	return nil
}

// Shutdown sets the device into power-save mode.
func (d *Device) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.config(ModeCfg, ^Shutdown, Shutdown)

	return err
}

// Startup wakes the device from power-save mode.
func (d *Device) Startup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.config(ModeCfg, ^Shutdown, 0)

	return err
}
