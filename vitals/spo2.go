package vitals

// Signal quality gate. Both channels must reach these levels, in raw ADC
// units, before a ratio is computed.
const (
	MinDC = 1000
	MinAC = 20
)

// SpO2 bounds of a gated reading.
const (
	MinSpO2 = 70
	MaxSpO2 = 100
)

// Calibration maps the ratio of ratios to a SpO2 percentage with
// Coeff*R + Offset.
type Calibration struct {
	Coeff  float64 `yaml:"coeff"`
	Offset float64 `yaml:"offset"`
}

// DefaultCalibration is the linear curve the node has always shipped with.
// It has not been calibrated against a reference oximeter.
var DefaultCalibration = Calibration{
	Coeff:  -45.060,
	Offset: 110.4,
}

// SpO2 returns the SpO2 value in percent and the ratio of ratios
// (acRed/dcRed)/(acIR/dcIR). When either channel is below MinDC or MinAC
// both are 0, which means no reading rather than an error. A gated value is
// clamped to [MinSpO2, MaxSpO2].
func SpO2(cal Calibration, dcIR, dcRed, acIR, acRed float64) (spo2, ratio float64) {
	if dcIR < MinDC || dcRed < MinDC || acIR < MinAC || acRed < MinAC {
		return 0, 0
	}

	ratio = (acRed / dcRed) / (acIR / dcIR)
	spo2 = cal.Coeff*ratio + cal.Offset

	return clamp(spo2, MinSpO2, MaxSpO2), ratio
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
