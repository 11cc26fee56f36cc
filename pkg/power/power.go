// Package power reads battery state from an INA219 power monitor.
//
// The UPS HAT exposes the INA219 on an I2C bus as a small set of 16-bit
// big-endian registers. Monitor programs the chip once at startup and then
// decodes bus voltage, current and power on every ReadStatus call. Nothing is
// cached between calls.
package power

import "math"

// Status is one decoded battery reading.
type Status struct {
	// Voltage is the bus voltage in volts.
	Voltage float64

	// Current is the magnitude of the battery current in mA.
	Current float64

	// Power is the load power in mW.
	Power float64

	// Charging is true when current flows into the battery.
	Charging bool

	// Percentage is the linear state-of-charge estimate in [0,100].
	Percentage float64
}

// Percentage maps voltage linearly between empty and full, clamped to
// [0,100]. For a 2S 18650 pack 6.4 V is 0% and 8.4 V is 100%.
func Percentage(voltage, empty, full float64) float64 {
	if full <= empty {
		return 0
	}
	p := (voltage - empty) / (full - empty) * 100
	return math.Max(0, math.Min(100, p))
}
