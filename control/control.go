// Package control holds the controllers closing the loop on the estimates of
// the reconstructors.
package control

import (
	"errors"
	"fmt"

	"github.com/rodrigo-romano/gmt-ns-im/signal"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrGain is returned for a gain outside of the stability range ]0, 2[.
	ErrGain = errors.New("integrator gain out of ]0, 2[")
	// ErrOutput is returned when the output channel isn't a command.
	ErrOutput = errors.New("integrator output must be a command channel")
)

// Integrator is the discrete integral controller
//
//	u[k] = u[k-1] - g y[k]
//
// Its output is the command update u[k] - u[k-1], to be fed to a component
// that accumulates commands such as the pseudo open-loop.
type Integrator struct {
	gain   float64
	output signal.UID
	y      []float64
	delta  []float64
	u      []float64
}

// NewIntegrator returns the integrator of n entries writing to output.
func NewIntegrator(gain float64, n int, output signal.UID) (*Integrator, error) {
	if gain <= 0 || gain >= 2 {
		return nil, fmt.Errorf("%w: %g", ErrGain, gain)
	}
	if output.Kind() != signal.Command {
		return nil, fmt.Errorf("%w: %v", ErrOutput, output)
	}
	return &Integrator{
		gain:   gain,
		output: output,
		u:      make([]float64, n),
	}, nil
}

// Gain returns the integral gain.
func (c *Integrator) Gain() float64 { return c.gain }

// Output returns the output channel.
func (c *Integrator) Output() signal.UID { return c.output }

// Len returns the number of entries of the input and the output.
func (c *Integrator) Len() int { return len(c.u) }

// Command returns the integrated command u[k]. It must not be modified.
func (c *Integrator) Command() []float64 { return c.u }

// Reset zeroes the integrated command.
func (c *Integrator) Reset() {
	for index := range c.u {
		c.u[index] = 0
	}
	c.y, c.delta = nil, nil
}

// Read stores a copy of an estimate.
func (c *Integrator) Read(data signal.Data) {
	if data.UID.Kind() != signal.Estimate && data.UID.Kind() != signal.Coefficients {
		signal.Unsupported("Integrator", data.UID)
	}
	if data.Len() != len(c.u) {
		panic(fmt.Sprintf("Integrator: %v has %d entries, expected %d", data.UID, data.Len(), len(c.u)))
	}
	c.y = append(c.y[:0], data.Values...)
}

// Update integrates the latest estimate.
func (c *Integrator) Update() {
	if c.y == nil {
		panic("Integrator: no estimate has been read")
	}
	delta := make([]float64, len(c.y))
	floats.ScaleTo(delta, -c.gain, c.y)
	floats.Add(c.u, delta)
	c.delta = delta
}

// Write returns the latest command update. It panics before the first Update.
func (c *Integrator) Write(uid signal.UID) signal.Data {
	if uid != c.output {
		signal.Unsupported("Integrator", uid)
	}
	if c.delta == nil {
		panic("Integrator: no command update has been computed")
	}
	return signal.New(uid, c.delta)
}
