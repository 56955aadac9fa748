// Package analog provides the optional threshold-voltage (Vth) input of the
// sensor. The driver only holds it; nothing in the read path converts it.
package analog

// Input is a readable analog line, in volts.
type Input interface {
	Read() (float64, error)
}

// Fixed is an Input that always reads the same voltage. Used in simulation.
type Fixed float64

func (f Fixed) Read() (float64, error) { return float64(f), nil }
