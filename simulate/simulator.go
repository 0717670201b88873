// Package simulate synthesizes wavefront sensor data from mirror commands so
// that reconstructors can be exercised without an optical model.
//
// The PseudoOpenLoop multiplies each segment command by the segment poke
// matrix and adds the result to a slopes accumulator at the valid channels.
package simulate

import (
	"errors"
	"fmt"

	"github.com/rodrigo-romano/gmt-ns-im/reconstruct"
	"github.com/rodrigo-romano/gmt-ns-im/signal"
	"go.uber.org/zap"
)

// ErrStride is returned when a segment has more degrees of freedom than a
// command chunk holds.
var ErrStride = errors.New("command stride too small")

// DefaultStride is the number of command entries per segment, one per
// rigid-body axis (calib.AllAxes).
const DefaultStride = 6

// PseudoOpenLoop is a sensor stand-in driven by the calibration poke matrices.
//
// The accumulator is never cleared by Update: successive updates add up until
// sensor data is read.
type PseudoOpenLoop struct {
	recon  *reconstruct.Reconstructor
	stride int
	cmd    []float64
	slopes []float64
	log    *zap.Logger
}

// Option configures a PseudoOpenLoop.
type Option func(*PseudoOpenLoop)

// WithStride sets the number of command entries per segment. Only the first
// poke matrix column count entries of each chunk are used. A stride of 0 reads
// chunks of exactly each segment's column count.
func WithStride(stride int) Option {
	return func(p *PseudoOpenLoop) { p.stride = stride }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *PseudoOpenLoop) {
		if log != nil {
			p.log = log
		}
	}
}

// New returns a PseudoOpenLoop over the calibrations of recon. recon doesn't
// need to be inverted.
func New(recon *reconstruct.Reconstructor, opts ...Option) (*PseudoOpenLoop, error) {
	p := &PseudoOpenLoop{
		recon:  recon,
		stride: DefaultStride,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.stride < 0 {
		return nil, fmt.Errorf("%w: negative stride %d", ErrStride, p.stride)
	}
	if p.stride > 0 {
		for index, c := range recon.Calibs() {
			if c.NCols() > p.stride {
				return nil, fmt.Errorf("segment #%d: %w: %d columns, stride %d", index, ErrStride, c.NCols(), p.stride)
			}
		}
	}
	p.slopes = make([]float64, recon.MaskLen())
	p.log.Debug("pseudo open loop built",
		zap.Int("segments", recon.Len()),
		zap.Int("stride", p.stride),
		zap.Int("channels", len(p.slopes)))
	return p, nil
}

// CommandLen returns the expected length of a command vector.
func (p *PseudoOpenLoop) CommandLen() int {
	if p.stride == 0 {
		return p.recon.NCols()
	}
	return p.stride * p.recon.Len()
}

// Read stores a copy of a command vector, or overwrites the accumulator with
// measurement data.
func (p *PseudoOpenLoop) Read(data signal.Data) {
	switch data.UID.Kind() {
	case signal.Command:
		if n := p.CommandLen(); data.Len() != n {
			panic(fmt.Sprintf("PseudoOpenLoop: %v has %d entries, expected %d", data.UID, data.Len(), n))
		}
		p.cmd = append(p.cmd[:0], data.Values...)
	case signal.Measurement:
		if data.Len() != len(p.slopes) {
			panic(fmt.Sprintf("PseudoOpenLoop: %v has %d entries, expected %d", data.UID, data.Len(), len(p.slopes)))
		}
		copy(p.slopes, data.Values)
	default:
		signal.Unsupported("PseudoOpenLoop", data.UID)
	}
}

// Update adds the synthetic measurements of the latest command to the
// accumulator.
func (p *PseudoOpenLoop) Update() {
	if p.cmd == nil {
		panic("PseudoOpenLoop: no command has been read")
	}
	offset := 0
	for _, c := range p.recon.Calibs() {
		chunk := p.stride
		if chunk == 0 {
			chunk = c.NCols()
		}
		c.Scatter(p.slopes, c.Forward(p.cmd[offset:offset+c.NCols()]))
		offset += chunk
	}
}

// Slopes returns the accumulator. It changes on the next Update or Read.
func (p *PseudoOpenLoop) Slopes() []float64 { return p.slopes }

// Write returns a copy of the accumulator as PseudoSensorData.
func (p *PseudoOpenLoop) Write(uid signal.UID) signal.Data {
	if uid != signal.PseudoSensorData {
		signal.Unsupported("PseudoOpenLoop", uid)
	}
	return signal.New(uid, append([]float64(nil), p.slopes...))
}
