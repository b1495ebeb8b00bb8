package telemetry

import (
	"fmt"

	"github.com/cgxeiji/pulsenode/vitals"
)

// FormatVitals returns the plaintext line reporting a vitals snapshot.
func FormatVitals(s vitals.Snapshot) []byte {
	return []byte(fmt.Sprintf("HR:%.1fbpm SpO2:%.1f%% IR(DC:%.0f AC:%.0f) RED(DC:%.0f AC:%.0f) R:%.3f Pks:%d\r\n",
		s.HeartRateBpm, s.SpO2Pct, s.DCIr, s.ACIr, s.DCRed, s.ACRed, s.Ratio, s.PeakCount))
}

// FormatDieTemperature returns the plaintext line reporting the sensor die
// temperature in Celsius.
func FormatDieTemperature(c float64) []byte {
	return []byte(fmt.Sprintf("MAX30100 Die Temp: %.2f C\r\n", c))
}
