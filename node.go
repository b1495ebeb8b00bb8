package pulsenode

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cgxeiji/pulsenode/mailbox"
	"github.com/cgxeiji/pulsenode/max30100"
	"github.com/cgxeiji/pulsenode/telemetry"
	"github.com/cgxeiji/pulsenode/vitals"
)

// Sensor delivers sample bursts and die temperature readings.
// *max30100.Device implements it.
type Sensor interface {
	Bursts() <-chan max30100.Burst
	ReadTemperatureOnce() (float64, error)
	Dropped() uint64
}

// Sender sends one report line. *telemetry.Link implements it.
type Sender interface {
	Send(payload []byte) error
}

// Publisher hands vitals to the companion side. *mailbox.Writer implements
// it.
type Publisher interface {
	Publish(p mailbox.Payload) uint32
}

// DefaultTemperatureInterval is how often the die temperature is read.
const DefaultTemperatureInterval = 10 * time.Second

// Node is the acquisition loop. It fills the analysis window from sensor
// bursts, estimates vitals once per full window, reports them over the link
// and publishes them to the mailbox.
type Node struct {
	sensor Sensor
	link   Sender
	mbox   Publisher
	log    *zap.Logger

	window       *Window
	estimator    vitals.Estimator
	tempInterval time.Duration
	onSnapshot   func(vitals.Snapshot)

	seq     uint32
	temp    float64
	dropped uint64
}

// NewNode returns a Node reading from s and reporting over link.
func NewNode(s Sensor, link Sender, opts ...Option) *Node {
	n := &Node{
		sensor:       s,
		link:         link,
		log:          zap.NewNop(),
		window:       NewWindow(DefaultWindowSize),
		estimator:    vitals.DefaultEstimator(),
		tempInterval: DefaultTemperatureInterval,
	}
	n.Options(opts...)
	return n
}

// Run processes bursts until ctx is done and returns ctx.Err(). Failures to
// report or to read the temperature are logged and do not stop the loop.
func (n *Node) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if n.tempInterval > 0 {
		t := time.NewTicker(n.tempInterval)
		defer t.Stop()
		tick = t.C
	}

	n.log.Info("acquisition started",
		zap.Int("window", n.window.Cap()),
		zap.Float64("sample_rate", n.estimator.SampleRate),
		zap.Duration("temperature_interval", n.tempInterval),
	)

	bursts := n.sensor.Bursts()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-bursts:
			n.addBurst(b)
		case <-tick:
			n.readTemperature()
		}
	}
}

// Seq returns the sequence number of the last snapshot.
func (n *Node) Seq() uint32 {
	return n.seq
}

func (n *Node) addBurst(b max30100.Burst) {
	samples := b.Slice()
	for len(samples) > 0 {
		taken := n.window.Add(samples)
		samples = samples[taken:]
		if n.window.Full() {
			n.process()
			n.window.Reset()
		}
	}

	// A drop only happens while a burst waits in the channel, so the gap
	// follows either b or the burst still pending.
	if n.sensor.Dropped() != n.dropped {
		n.restartWindow()
	}
}

// restartWindow discards the partial window and any pending burst so the next
// window holds only samples taken after a gap in the sample stream.
func (n *Node) restartWindow() {
	if d := n.sensor.Dropped(); d != n.dropped {
		n.log.Warn("bursts dropped", zap.Uint64("total", d), zap.Uint64("new", d-n.dropped))
		n.dropped = d
	}
	if l := n.window.Len(); l > 0 {
		n.log.Debug("window restarted", zap.Int("discarded", l))
	}
	n.window.Reset()

	select {
	case <-n.sensor.Bursts():
	default:
	}
}

func (n *Node) process() {
	s := n.estimator.Estimate(n.window.IR(), n.window.Red())
	n.seq++
	s.Sequence = n.seq

	n.log.Debug("window estimated",
		zap.Uint32("seq", s.Sequence),
		zap.Float64("heart_rate", s.HeartRateBpm),
		zap.Stringer("rate", s.Rate),
		zap.Float64("spo2", s.SpO2Pct),
		zap.Float64("ratio", s.Ratio),
		zap.Int("peaks", s.PeakCount),
	)

	if n.onSnapshot != nil {
		n.onSnapshot(s)
	}

	if err := n.link.Send(telemetry.FormatVitals(s)); err != nil {
		n.log.Warn("could not report vitals", zap.Uint32("seq", s.Sequence), zap.Error(err))
	}

	if n.mbox != nil {
		n.mbox.Publish(mailbox.Payload{
			TemperatureC: float32(n.temp),
			SpO2Pct:      float32(s.SpO2Pct),
			HeartRateBpm: float32(s.HeartRateBpm),
		})
	}
}

// readTemperature runs a one-shot conversion. The sensor clears its FIFO when
// it goes back to sampling, so the window restarts whatever the outcome.
func (n *Node) readTemperature() {
	t, err := n.sensor.ReadTemperatureOnce()
	n.restartWindow()
	if errors.Is(err, max30100.ErrTempTimeout) {
		n.log.Warn("no new temperature", zap.Error(err))
		return
	} else if err != nil {
		n.log.Warn("could not read temperature", zap.Error(err))
		return
	}
	n.temp = t

	if err := n.link.Send(telemetry.FormatDieTemperature(t)); err != nil {
		n.log.Warn("could not report temperature", zap.Error(err))
	}
}
