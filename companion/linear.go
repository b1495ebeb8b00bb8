package companion

import "math"

// Linear is a logistic model used when no trained network is available.
type Linear struct {
	Weights Vector  `yaml:"weights"`
	Bias    float32 `yaml:"bias"`
}

// Infer implements InferenceFunc.
func (m Linear) Infer(v Vector) (float32, error) {
	z := float64(m.Bias)
	for i, w := range m.Weights {
		z += float64(w) * float64(v[i])
	}
	return float32(1 / (1 + math.Exp(-z))), nil
}
