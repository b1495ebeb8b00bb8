package pulsenode

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cgxeiji/pulsenode/mailbox"
	"github.com/cgxeiji/pulsenode/max30100"
	"github.com/cgxeiji/pulsenode/vitals"
)

type fakeSensor struct {
	bursts  chan max30100.Burst
	temps   []float64
	tempErr error
	dropped uint64
}

func newFakeSensor() *fakeSensor {
	return &fakeSensor{bursts: make(chan max30100.Burst, 1)}
}

func (s *fakeSensor) Bursts() <-chan max30100.Burst { return s.bursts }
func (s *fakeSensor) Dropped() uint64                { return s.dropped }

func (s *fakeSensor) ReadTemperatureOnce() (float64, error) {
	if s.tempErr != nil {
		return 0, s.tempErr
	}
	t := s.temps[0]
	if len(s.temps) > 1 {
		s.temps = s.temps[1:]
	}
	return t, nil
}

type fakeSender struct {
	lines []string
	err   error
}

func (s *fakeSender) Send(payload []byte) error {
	s.lines = append(s.lines, string(payload))
	return s.err
}

func burst(n int, f func(i int) max30100.Sample) max30100.Burst {
	var b max30100.Burst
	for i := 0; i < n; i++ {
		b.Samples[i] = f(i)
	}
	b.N = n
	return b
}

func constant(v uint16) func(int) max30100.Sample {
	return func(int) max30100.Sample { return max30100.Sample{IR: v, Red: v} }
}

func TestNodeFlatWindow(t *testing.T) {
	sensor := newFakeSensor()
	link := &fakeSender{}
	var snaps []vitals.Snapshot
	n := NewNode(sensor, link, OnSnapshot(func(s vitals.Snapshot) { snaps = append(snaps, s) }))

	for i := 0; i < DefaultWindowSize/max30100.MaxBurst; i++ {
		n.addBurst(burst(max30100.MaxBurst, constant(5000)))
	}

	require.Len(t, snaps, 1)
	assert.Zero(t, snaps[0].SpO2Pct)
	assert.Zero(t, snaps[0].HeartRateBpm)
	assert.Equal(t, vitals.RateNoSignal, snaps[0].Rate)
	assert.EqualValues(t, 1, snaps[0].Sequence)
	assert.Equal(t, []string{"HR:0.0bpm SpO2:0.0% IR(DC:5000 AC:0) RED(DC:5000 AC:0) R:0.000 Pks:0\r\n"}, link.lines)
	assert.Zero(t, n.window.Len())
}

func TestNodeCarriesSamplesIntoNextWindow(t *testing.T) {
	sensor := newFakeSensor()
	link := &fakeSender{}
	var snaps []vitals.Snapshot
	n := NewNode(sensor, link,
		WithWindowSize(20),
		OnSnapshot(func(s vitals.Snapshot) { snaps = append(snaps, s) }),
	)

	next := uint16(0)
	seq := func(int) max30100.Sample {
		next++
		return max30100.Sample{IR: next, Red: next}
	}

	n.addBurst(burst(16, seq))
	assert.Empty(t, snaps)
	n.addBurst(burst(16, seq))
	require.Len(t, snaps, 1)
	assert.Equal(t, 12, n.window.Len())
	assert.Equal(t, []uint16{21, 22, 23}, n.window.IR()[:3])

	// Samples 1..20 form the first window.
	assert.InDelta(t, 10.5, snaps[0].DCIr, 1e-9)
	assert.InDelta(t, 19, snaps[0].ACIr, 1e-9)

	n.addBurst(burst(16, seq))
	require.Len(t, snaps, 2)
	assert.InDelta(t, 30.5, snaps[1].DCIr, 1e-9)
	assert.Equal(t, 8, n.window.Len())
	assert.EqualValues(t, 2, n.Seq())
}

func TestNodePublishesToMailbox(t *testing.T) {
	region := mailbox.NewRegion()
	w, err := mailbox.NewWriter(region, nil)
	require.NoError(t, err)
	rd, err := mailbox.NewReader(region)
	require.NoError(t, err)

	sensor := newFakeSensor()
	sensor.temps = []float64{31.5}
	link := &fakeSender{}
	n := NewNode(sensor, link, WithMailbox(w), WithWindowSize(16))

	n.readTemperature()
	assert.Equal(t, []string{"MAX30100 Die Temp: 31.50 C\r\n"}, link.lines)

	pulse := func(i int) max30100.Sample {
		v := uint16(40000 + 2000*math.Sin(2*math.Pi*float64(i)/16))
		return max30100.Sample{IR: v, Red: v}
	}
	n.addBurst(burst(16, pulse))

	rec, ok := rd.TryConsume()
	require.True(t, ok)
	assert.EqualValues(t, 1, rec.Seq)
	assert.Equal(t, float32(31.5), rec.TemperatureC)
	assert.Zero(t, rec.FatigueScore)
	assert.Len(t, link.lines, 2)
}

func TestNodeKeepsGoingWhenSendFails(t *testing.T) {
	sensor := newFakeSensor()
	link := &fakeSender{err: errors.New("uart busy")}
	n := NewNode(sensor, link, WithWindowSize(16), WithLogger(zaptest.NewLogger(t)))

	n.addBurst(burst(16, constant(5000)))
	n.addBurst(burst(16, constant(5000)))
	assert.Len(t, link.lines, 2)
	assert.EqualValues(t, 2, n.Seq())
}

func TestNodeTemperatureFailure(t *testing.T) {
	for _, err := range []error{
		fmt.Errorf("wrapped: %w", max30100.ErrTempTimeout),
		&max30100.BusError{Op: "read", Reg: max30100.IntStatus, Err: errors.New("nack")},
	} {
		sensor := newFakeSensor()
		sensor.tempErr = err
		sensor.dropped = 3
		link := &fakeSender{}
		n := NewNode(sensor, link, WithLogger(zaptest.NewLogger(t)))

		n.readTemperature()
		assert.Empty(t, link.lines)
		assert.Zero(t, n.temp)
		assert.EqualValues(t, 3, n.dropped)
	}
}

func TestNodeRestartsWindowAfterTemperatureRead(t *testing.T) {
	for _, tempErr := range []error{nil, max30100.ErrTempTimeout} {
		sensor := newFakeSensor()
		sensor.temps = []float64{30}
		sensor.tempErr = tempErr
		link := &fakeSender{}
		var snaps []vitals.Snapshot
		n := NewNode(sensor, link,
			WithWindowSize(32),
			WithLogger(zaptest.NewLogger(t)),
			OnSnapshot(func(s vitals.Snapshot) { snaps = append(snaps, s) }),
		)

		n.addBurst(burst(16, constant(1000)))
		// Drained before the conversion cleared the FIFO.
		sensor.bursts <- burst(16, constant(1000))
		n.readTemperature()
		assert.Zero(t, n.window.Len())
		assert.Empty(t, sensor.bursts, "pending burst predates the gap")

		n.addBurst(burst(16, constant(4000)))
		n.addBurst(burst(16, constant(4000)))

		require.Len(t, snaps, 1, "temperature error: %v", tempErr)
		assert.InDelta(t, 4000, snaps[0].DCIr, 1e-9, "window mixed samples across the gap")
		assert.Zero(t, snaps[0].ACIr)
	}
}

func TestNodeRestartsWindowAfterDroppedBurst(t *testing.T) {
	sensor := newFakeSensor()
	link := &fakeSender{}
	var snaps []vitals.Snapshot
	n := NewNode(sensor, link,
		WithWindowSize(48),
		WithLogger(zaptest.NewLogger(t)),
		OnSnapshot(func(s vitals.Snapshot) { snaps = append(snaps, s) }),
	)

	n.addBurst(burst(16, constant(1000)))
	sensor.bursts <- burst(16, constant(1000))
	sensor.dropped = 1
	n.addBurst(burst(16, constant(1000)))
	assert.Empty(t, snaps, "window spanning the dropped burst was estimated")
	assert.Zero(t, n.window.Len())
	assert.Empty(t, sensor.bursts)
	assert.EqualValues(t, 1, n.dropped)

	for i := 0; i < 3; i++ {
		n.addBurst(burst(16, constant(4000)))
	}
	require.Len(t, snaps, 1)
	assert.InDelta(t, 4000, snaps[0].DCIr, 1e-9)
}

func TestNodeRun(t *testing.T) {
	sensor := newFakeSensor()
	sensor.temps = []float64{30}
	link := &fakeSender{}
	got := make(chan vitals.Snapshot, 4)
	n := NewNode(sensor, link,
		WithWindowSize(32),
		WithTemperatureInterval(0),
		WithLogger(zaptest.NewLogger(t)),
		OnSnapshot(func(s vitals.Snapshot) { got <- s }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	sensor.bursts <- burst(16, constant(3000))
	sensor.bursts <- burst(16, constant(3000))

	select {
	case s := <-got:
		assert.EqualValues(t, 1, s.Sequence)
		assert.InDelta(t, 3000, s.DCIr, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("no snapshot")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Len(t, link.lines, 1)
}

func TestOptionsRestorePrevious(t *testing.T) {
	n := NewNode(newFakeSensor(), &fakeSender{})

	restore := n.Options(WithWindowSize(64))
	assert.Equal(t, 64, n.window.Cap())
	n.Options(restore)
	assert.Equal(t, DefaultWindowSize, n.window.Cap())

	restore = n.Options(WithTemperatureInterval(time.Second))
	assert.Equal(t, time.Second, n.tempInterval)
	n.Options(restore)
	assert.Equal(t, DefaultTemperatureInterval, n.tempInterval)

	n.Options(WithWindowSize(0))
	assert.Equal(t, DefaultWindowSize, n.window.Cap())
}
