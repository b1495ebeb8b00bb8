package pulsenode

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/cgxeiji/pulsenode/companion"
	"github.com/cgxeiji/pulsenode/max30100"
	"github.com/cgxeiji/pulsenode/telemetry"
	"github.com/cgxeiji/pulsenode/vitals"
)

// ErrConfig is returned for invalid configuration values.
var ErrConfig = errors.New("pulsenode: invalid config")

// Config holds the node parameters.
type Config struct {
	Sensor SensorConfig `yaml:"sensor"`

	WindowSize            int                `yaml:"window_size"`
	Calibration           vitals.Calibration `yaml:"calibration"`
	PeakThresholdFraction float64            `yaml:"peak_threshold_fraction"`
	MaxHeartRate          float64            `yaml:"max_heart_rate"`
	TemperatureInterval   time.Duration      `yaml:"temperature_interval"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
	Mailbox   MailboxConfig   `yaml:"mailbox"`
	Companion CompanionConfig `yaml:"companion"`
	Log       LogConfig       `yaml:"log"`
}

// SensorConfig locates the sensor.
type SensorConfig struct {
	// Bus is the I²C bus name ("/dev/i2c-1", "I2C1", "1"). Empty selects the
	// first available bus.
	Bus          string `yaml:"bus"`
	Addr         uint16 `yaml:"addr"`
	InterruptPin string `yaml:"interrupt_pin"`
	// Burst is the number of samples drained per interrupt.
	Burst int `yaml:"burst"`
}

// TelemetryConfig configures framing and the outbound links.
type TelemetryConfig struct {
	// SharedKey is the hex-encoded AES key.
	SharedKey string `yaml:"shared_key"`
	// FrameHeader is the hex-encoded frame header.
	FrameHeader string               `yaml:"frame_header"`
	MaxPayload  int                  `yaml:"max_payload"`
	Serial      string               `yaml:"serial"`
	MQTT        telemetry.MQTTConfig `yaml:"mqtt"`
}

// MailboxConfig locates the shared record. An empty path keeps it in
// process memory.
type MailboxConfig struct {
	Path string `yaml:"path"`
}

// CompanionConfig configures the reader side.
type CompanionConfig struct {
	Poll  time.Duration    `yaml:"poll"`
	Model companion.Linear `yaml:"model"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used for values a file leaves out.
func DefaultConfig() Config {
	return Config{
		Sensor: SensorConfig{
			Addr:         max30100.Addr,
			InterruptPin: "GPIO17",
			Burst:        max30100.MaxBurst,
		},
		WindowSize:            DefaultWindowSize,
		Calibration:           vitals.DefaultCalibration,
		PeakThresholdFraction: 0.3,
		MaxHeartRate:          240,
		TemperatureInterval:   DefaultTemperatureInterval,
		Telemetry: TelemetryConfig{
			FrameHeader: hex.EncodeToString(telemetry.DefaultHeader),
			MaxPayload:  telemetry.DefaultMaxPayload,
			MQTT: telemetry.MQTTConfig{
				Topic:   "pulsenode/telemetry",
				Timeout: 2 * time.Second,
			},
		},
		Companion: CompanionConfig{
			Poll: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig. ${VAR} and
// ${VAR:-default} are expanded from the environment first.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("pulsenode: could not read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, fmt.Errorf("pulsenode: invalid YAML in %s: %w", path, err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} with the environment value.
// Unset variables without a default expand to the empty string.
func ExpandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(groups[1]); ok && v != "" {
			return v
		}
		return groups[2]
	})
}

// Validate reports every invalid value, each wrapped with ErrConfig.
func (c Config) Validate() error {
	var errs error
	fail := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrConfig}, args...)...))
	}

	if c.Sensor.Burst < 1 || c.Sensor.Burst > max30100.MaxBurst {
		fail("sensor.burst %d outside 1..%d", c.Sensor.Burst, max30100.MaxBurst)
	}
	if c.WindowSize < 1 {
		fail("window_size %d must be positive", c.WindowSize)
	}
	if c.PeakThresholdFraction < 0 || c.PeakThresholdFraction > 1 {
		fail("peak_threshold_fraction %g outside 0..1", c.PeakThresholdFraction)
	}
	if c.MaxHeartRate <= 0 {
		fail("max_heart_rate %g must be positive", c.MaxHeartRate)
	}
	if c.TemperatureInterval < 0 {
		fail("temperature_interval %s must not be negative", c.TemperatureInterval)
	}
	if _, err := c.Key(); err != nil {
		fail("telemetry.shared_key: %v", err)
	}
	if h, err := c.Header(); err != nil {
		fail("telemetry.frame_header: %v", err)
	} else if len(h) == 0 {
		fail("telemetry.frame_header must not be empty")
	}
	if c.Telemetry.MaxPayload < 1 || c.Telemetry.MaxPayload > math.MaxUint16 {
		fail("telemetry.max_payload %d outside 1..%d", c.Telemetry.MaxPayload, math.MaxUint16)
	}
	if c.Telemetry.MQTT.Broker != "" && c.Telemetry.MQTT.QoS > 2 {
		fail("telemetry.mqtt.qos %d outside 0..2", c.Telemetry.MQTT.QoS)
	}

	return errs
}

// Key decodes the shared key.
func (c Config) Key() ([]byte, error) {
	key, err := hex.DecodeString(c.Telemetry.SharedKey)
	if err != nil {
		return nil, err
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, fmt.Errorf("%d-byte key, need 16, 24 or 32", len(key))
}

// Header decodes the frame header.
func (c Config) Header() ([]byte, error) {
	return hex.DecodeString(c.Telemetry.FrameHeader)
}

// Estimator returns the vitals estimator for a stream sampled at rate Hz.
func (c Config) Estimator(rate float64) vitals.Estimator {
	return vitals.Estimator{
		Calibration:           c.Calibration,
		SampleRate:            rate,
		PeakThresholdFraction: c.PeakThresholdFraction,
		MaxHeartRate:          c.MaxHeartRate,
	}
}

// Framer returns the telemetry framer for the configured key and header.
func (c Config) Framer() (*telemetry.Framer, error) {
	key, err := c.Key()
	if err != nil {
		return nil, fmt.Errorf("%w: telemetry.shared_key: %v", ErrConfig, err)
	}
	header, err := c.Header()
	if err != nil {
		return nil, fmt.Errorf("%w: telemetry.frame_header: %v", ErrConfig, err)
	}
	return telemetry.NewFramer(key,
		telemetry.WithHeader(header),
		telemetry.WithMaxPayload(c.Telemetry.MaxPayload),
	)
}
