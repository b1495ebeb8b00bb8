// Package vitals estimates heart rate and SpO2 from a window of raw PPG
// samples. It does no I/O.
package vitals

// Snapshot holds the vitals computed from one full window.
type Snapshot struct {
	HeartRateBpm float64
	Rate         Rate
	SpO2Pct      float64
	DCIr         float64
	DCRed        float64
	ACIr         float64
	ACRed        float64
	Ratio        float64
	PeakCount    int
	Sequence     uint32
}

// Estimator computes a Snapshot from IR and red windows.
type Estimator struct {
	Calibration Calibration
	// SampleRate of the windows in Hz.
	SampleRate float64
	// PeakThresholdFraction places the peak threshold at DC + fraction*AC
	// of the IR channel.
	PeakThresholdFraction float64
	// MaxHeartRate bounds the refractory period between two peaks.
	MaxHeartRate float64
}

// DefaultEstimator returns the estimator for a 100Hz stream.
func DefaultEstimator() Estimator {
	return Estimator{
		Calibration:           DefaultCalibration,
		SampleRate:            100,
		PeakThresholdFraction: 0.3,
		MaxHeartRate:          240,
	}
}

// MinPeakDistance returns the refractory period in samples.
func (e Estimator) MinPeakDistance() float64 {
	if e.MaxHeartRate <= 0 {
		return 0
	}
	return e.SampleRate * 60 / e.MaxHeartRate
}

// Estimate computes the vitals of a window. ir and red must have the same
// length; otherwise, or when empty, the zero Snapshot is returned.
func (e Estimator) Estimate(ir, red []uint16) Snapshot {
	if len(ir) == 0 || len(ir) != len(red) || e.SampleRate <= 0 {
		return Snapshot{}
	}

	s := Snapshot{
		DCIr:  DC(ir),
		DCRed: DC(red),
		ACIr:  AC(ir),
		ACRed: AC(red),
	}
	s.SpO2Pct, s.Ratio = SpO2(e.Calibration, s.DCIr, s.DCRed, s.ACIr, s.ACRed)

	threshold := s.DCIr + s.ACIr*e.PeakThresholdFraction
	s.PeakCount = CountPeaks(ir, threshold, e.MinPeakDistance())
	s.HeartRateBpm, s.Rate = HeartRate(s.PeakCount, float64(len(ir))/e.SampleRate)

	return s
}

// DC returns the mean of samples, or 0 when empty.
func DC(samples []uint16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum uint64
	for _, v := range samples {
		sum += uint64(v)
	}

	return float64(sum) / float64(len(samples))
}

// AC returns the peak-to-peak amplitude of samples, or 0 for fewer than two
// samples.
func AC(samples []uint16) float64 {
	if len(samples) < 2 {
		return 0
	}

	lo, hi := samples[0], samples[0]
	for _, v := range samples[1:] {
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}

	return float64(hi - lo)
}
