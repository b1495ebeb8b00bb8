package vitals

// Heart rate plausibility band, in beats per minute.
const (
	MinPlausibleBPM = 40
	MaxPlausibleBPM = 220
)

// Rate classifies a heart rate estimate.
type Rate int

// Rate values.
const (
	RateNoSignal Rate = iota
	RateValid
	RateLow
	RateHigh
)

func (r Rate) String() string {
	switch r {
	case RateNoSignal:
		return "no signal"
	case RateValid:
		return "valid"
	case RateLow:
		return "too low"
	case RateHigh:
		return "too high"
	}
	return "unknown"
}

// CountPeaks counts the local maxima of samples above threshold. Index i is
// a peak when samples[i] > threshold, samples[i] > samples[i-1] and
// samples[i] >= samples[i+1], so a plateau counts once, at its first sample.
// A peak closer than minDistance samples to the previous accepted one is
// ignored. Fewer than 3 samples yield 0.
func CountPeaks(samples []uint16, threshold, minDistance float64) int {
	if len(samples) < 3 {
		return 0
	}

	peaks := 0
	last := -1
	for i := 1; i < len(samples)-1; i++ {
		v := samples[i]
		if float64(v) <= threshold || v <= samples[i-1] || v < samples[i+1] {
			continue
		}
		if last >= 0 && float64(i-last) < minDistance {
			continue
		}
		peaks++
		last = i
	}

	return peaks
}

// HeartRate converts a peak count over a window of seconds to beats per
// minute. Values outside [MinPlausibleBPM, MaxPlausibleBPM] are returned
// unchanged and flagged RateLow or RateHigh; no peaks or a non positive
// window give 0 and RateNoSignal.
func HeartRate(peaks int, seconds float64) (float64, Rate) {
	if peaks <= 0 || seconds <= 0 {
		return 0, RateNoSignal
	}

	bpm := float64(peaks) * 60 / seconds
	switch {
	case bpm < MinPlausibleBPM:
		return bpm, RateLow
	case bpm > MaxPlausibleBPM:
		return bpm, RateHigh
	}

	return bpm, RateValid
}
