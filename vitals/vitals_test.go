package vitals

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(n int, v uint16) []uint16 {
	s := make([]uint16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func sine(n int, dc, amp, period float64) []uint16 {
	s := make([]uint16, n)
	for i := range s {
		s[i] = uint16(math.Round(dc + amp*math.Sin(2*math.Pi*float64(i)/period)))
	}
	return s
}

func TestDCACConstant(t *testing.T) {
	for _, v := range []uint16{0, 1, 5000, math.MaxUint16} {
		w := constant(128, v)
		assert.Equal(t, 0.0, AC(w))
		assert.Equal(t, float64(v), DC(w))
	}
}

func TestDCWithinRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		w := make([]uint16, 1+rng.Intn(256))
		lo, hi := uint16(math.MaxUint16), uint16(0)
		for j := range w {
			w[j] = uint16(rng.Intn(math.MaxUint16 + 1))
			if w[j] < lo {
				lo = w[j]
			}
			if w[j] > hi {
				hi = w[j]
			}
		}
		dc := DC(w)
		assert.GreaterOrEqual(t, dc, float64(lo))
		assert.LessOrEqual(t, dc, float64(hi))
		assert.Equal(t, float64(hi-lo), AC(w))
	}
}

func TestDCACEmpty(t *testing.T) {
	assert.Equal(t, 0.0, DC(nil))
	assert.Equal(t, 0.0, AC(nil))
	assert.Equal(t, 0.0, AC([]uint16{42}))
}

func TestSpO2Gate(t *testing.T) {
	tests := []struct {
		name                     string
		dcIR, dcRed, acIR, acRed float64
		gated                    bool
	}{
		{"at minimums", MinDC, MinDC, MinAC, MinAC, true},
		{"dc ir below", MinDC - 0.001, MinDC, MinAC, MinAC, false},
		{"dc red below", MinDC, MinDC - 0.001, MinAC, MinAC, false},
		{"ac ir below", MinDC, MinDC, MinAC - 0.001, MinAC, false},
		{"ac red below", MinDC, MinDC, MinAC, MinAC - 0.001, false},
		{"all zero", 0, 0, 0, 0, false},
		{"typical", 5000, 4000, 100, 60, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spo2, ratio := SpO2(DefaultCalibration, tt.dcIR, tt.dcRed, tt.acIR, tt.acRed)
			if !tt.gated {
				assert.Equal(t, 0.0, spo2)
				assert.Equal(t, 0.0, ratio)
				return
			}
			assert.GreaterOrEqual(t, spo2, float64(MinSpO2))
			assert.LessOrEqual(t, spo2, float64(MaxSpO2))
			assert.Greater(t, ratio, 0.0)
		})
	}
}

func TestSpO2Clamp(t *testing.T) {
	// ratio close to 0
	spo2, ratio := SpO2(DefaultCalibration, 1000, 1e9, 1000, 20)
	assert.InDelta(t, 0, ratio, 1e-6)
	assert.Equal(t, 100.0, spo2)

	// ratio of 100
	spo2, ratio = SpO2(DefaultCalibration, 1000, 1000, 1000, 100000)
	assert.InDelta(t, 100, ratio, 1e-9)
	assert.Equal(t, 70.0, spo2)
}

func TestSpO2Formula(t *testing.T) {
	cal := Calibration{Coeff: -20, Offset: 110}
	spo2, ratio := SpO2(cal, 1000, 1000, 100, 50)
	assert.InDelta(t, 0.5, ratio, 1e-9)
	assert.InDelta(t, 100, spo2, 1e-9)

	spo2, _ = SpO2(cal, 1000, 1000, 100, 100)
	assert.InDelta(t, 90, spo2, 1e-9)
}

func TestCountPeaksSinusoid(t *testing.T) {
	const fs = 100.0
	for _, period := range []float64{40, 60, 80, 100, 150} {
		w := sine(1000, 5000, 400, period)
		e := DefaultEstimator()
		threshold := DC(w) + AC(w)*e.PeakThresholdFraction
		got := CountPeaks(w, threshold, e.MinPeakDistance())
		want := float64(len(w)) / fs / (period / fs)
		assert.InDelta(t, want, got, 1, "period %v", period)
	}
}

func TestCountPeaksRefractory(t *testing.T) {
	w := []uint16{0, 10, 5, 11, 0}
	assert.Equal(t, 2, CountPeaks(w, 1, 2))
	assert.Equal(t, 1, CountPeaks(w, 1, 3))
	assert.Equal(t, 2, CountPeaks(w, 1, 0))
}

func TestCountPeaksPlateau(t *testing.T) {
	assert.Equal(t, 1, CountPeaks([]uint16{0, 5, 5, 5, 0}, 1, 0))
	assert.Equal(t, 0, CountPeaks([]uint16{0, 5, 5, 5, 0}, 5, 0))
	assert.Equal(t, 0, CountPeaks([]uint16{5, 5}, 0, 0))
	assert.Equal(t, 0, CountPeaks([]uint16{1, 2, 3, 4}, 0, 0))
}

func TestHeartRate(t *testing.T) {
	bpm, rate := HeartRate(0, 1.28)
	assert.Equal(t, 0.0, bpm)
	assert.Equal(t, RateNoSignal, rate)

	bpm, rate = HeartRate(2, 1.28)
	assert.InDelta(t, 93.75, bpm, 1e-9)
	assert.Equal(t, RateValid, rate)

	bpm, rate = HeartRate(10, 1.28)
	assert.InDelta(t, 468.75, bpm, 1e-9)
	assert.Equal(t, RateHigh, rate)

	bpm, rate = HeartRate(1, 10)
	assert.InDelta(t, 6, bpm, 1e-9)
	assert.Equal(t, RateLow, rate)

	_, rate = HeartRate(3, 0)
	assert.Equal(t, RateNoSignal, rate)
}

func TestEstimateFlatWindow(t *testing.T) {
	s := DefaultEstimator().Estimate(constant(128, 5000), constant(128, 5000))
	assert.Equal(t, 0.0, s.SpO2Pct)
	assert.Equal(t, 0.0, s.HeartRateBpm)
	assert.Equal(t, 0, s.PeakCount)
	assert.Equal(t, RateNoSignal, s.Rate)
	assert.Equal(t, 5000.0, s.DCIr)
	assert.Equal(t, 0.0, s.ACRed)
}

func TestEstimatePulse(t *testing.T) {
	// 75 bpm at 100Hz over 8 seconds.
	ir := sine(800, 50000, 800, 80)
	red := sine(800, 40000, 400, 80)
	s := DefaultEstimator().Estimate(ir, red)

	require.Equal(t, RateValid, s.Rate)
	assert.InDelta(t, 75, s.HeartRateBpm, 7.5)
	assert.GreaterOrEqual(t, s.SpO2Pct, float64(MinSpO2))
	assert.LessOrEqual(t, s.SpO2Pct, float64(MaxSpO2))
	assert.InDelta(t, (s.ACRed/s.DCRed)/(s.ACIr/s.DCIr), s.Ratio, 1e-12)
}

func TestEstimateInvalidInput(t *testing.T) {
	e := DefaultEstimator()
	assert.Equal(t, Snapshot{}, e.Estimate(nil, nil))
	assert.Equal(t, Snapshot{}, e.Estimate(constant(4, 1), constant(3, 1)))
	e.SampleRate = 0
	assert.Equal(t, Snapshot{}, e.Estimate(constant(4, 1), constant(4, 1)))
}

func TestMinPeakDistance(t *testing.T) {
	e := DefaultEstimator()
	assert.Equal(t, 25.0, e.MinPeakDistance())
	e.MaxHeartRate = 0
	assert.Equal(t, 0.0, e.MinPeakDistance())
}
