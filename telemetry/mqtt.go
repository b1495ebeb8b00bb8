package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/denisbrodbeck/machineid"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const defaultMQTTTimeout = 2 * time.Second

// ErrMQTTTimeout is returned when the broker does not acknowledge in time.
var ErrMQTTTimeout = errors.New("telemetry: mqtt operation timed out")

// MQTTConfig configures the MQTT link.
type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Topic    string        `yaml:"topic"`
	QoS      byte          `yaml:"qos"`
	Timeout  time.Duration `yaml:"timeout"`
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTWriter publishes every Write as one message. It lets frames reach a
// broker instead of, or next to, the serial link; payloads stay encrypted.
type MQTTWriter struct {
	client  publisher
	topic   string
	qos     byte
	timeout time.Duration
}

// DialMQTT connects to the broker. Without a client ID, one is derived from
// the machine ID.
func DialMQTT(cfg MQTTConfig) (*MQTTWriter, error) {
	if cfg.ClientID == "" {
		id, err := machineid.ProtectedID("pulsenode")
		if err != nil {
			return nil, fmt.Errorf("telemetry: could not derive mqtt client id: %w", err)
		}
		cfg.ClientID = "pulsenode-" + id[:12]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultMQTTTimeout
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if err := wait(client.Connect(), cfg.Timeout); err != nil {
		return nil, fmt.Errorf("telemetry: could not connect to %s: %w", cfg.Broker, err)
	}

	return newMQTTWriter(client, cfg), nil
}

func newMQTTWriter(client publisher, cfg MQTTConfig) *MQTTWriter {
	return &MQTTWriter{
		client:  client,
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
	}
}

// Write implements io.Writer.
func (w *MQTTWriter) Write(p []byte) (int, error) {
	msg := append([]byte(nil), p...)
	if err := wait(w.client.Publish(w.topic, w.qos, false, msg), w.timeout); err != nil {
		return 0, fmt.Errorf("telemetry: could not publish to %s: %w", w.topic, err)
	}
	return len(p), nil
}

// Close disconnects from the broker.
func (w *MQTTWriter) Close() error {
	w.client.Disconnect(250)
	return nil
}

func wait(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return ErrMQTTTimeout
	}
	return token.Error()
}
