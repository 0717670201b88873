// Package modal projects sampled mirror surfaces onto per-segment orthonormal
// mode bases.
package modal

import (
	"errors"
	"fmt"

	"github.com/rodrigo-romano/gmt-ns-im/gonumExtensions"
	"github.com/rodrigo-romano/gmt-ns-im/signal"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrModeCount is returned when a segment has more modes than the output width.
	ErrModeCount = errors.New("more modes than output width")
	// ErrBasis is returned for a missing, empty or non-finite basis.
	ErrBasis = errors.New("invalid mode basis")
	// ErrNotOrthonormal is returned when the orthonormality check of a basis fails.
	ErrNotOrthonormal = errors.New("mode basis is not orthonormal")
)

// Projector maps surface samples to modal coefficients.
//
// Each segment output is padded with zeros to the same width, the largest
// number of modes by default.
type Projector struct {
	// (samples by modes)
	bases    []*mat.Dense
	width    int
	nSamples int

	tol float64
	log *zap.Logger

	surfaces []float64
	coefs    []float64
}

// Option configures a Projector.
type Option func(*Projector)

// WithWidth sets the number of coefficients per segment.
func WithWidth(width int) Option {
	return func(p *Projector) { p.width = width }
}

// WithOrthonormalityCheck makes New verify that B^T B = I within tol for every basis.
func WithOrthonormalityCheck(tol float64) Option {
	return func(p *Projector) { p.tol = tol }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Projector) {
		if log != nil {
			p.log = log
		}
	}
}

// New returns the projector over bases, one per segment. Bases are copied.
func New(bases []mat.Matrix, opts ...Option) (*Projector, error) {
	if len(bases) == 0 {
		return nil, fmt.Errorf("%w: no segment", ErrBasis)
	}
	p := &Projector{log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	maxModes := 0
	p.bases = make([]*mat.Dense, len(bases))
	for index, b := range bases {
		if b == nil {
			return nil, fmt.Errorf("segment #%d: %w: nil", index, ErrBasis)
		}
		ns, na := b.Dims()
		if ns == 0 || na == 0 {
			return nil, fmt.Errorf("segment #%d: %w: empty", index, ErrBasis)
		}
		if gonumExtensions.HasNaNOrInf(b) {
			return nil, fmt.Errorf("segment #%d: %w: NaN or Inf", index, ErrBasis)
		}
		if p.tol > 0 {
			var gram mat.Dense
			gram.Mul(b.T(), b)
			if !mat.EqualApprox(&gram, gonumExtensions.Eye(na), p.tol) {
				return nil, fmt.Errorf("segment #%d: %w", index, ErrNotOrthonormal)
			}
		}
		p.bases[index] = mat.DenseCopyOf(b)
		p.nSamples += ns
		maxModes = max(maxModes, na)
	}
	if p.width == 0 {
		p.width = maxModes
	}
	if p.width < maxModes {
		return nil, fmt.Errorf("%w: %d modes, width %d", ErrModeCount, maxModes, p.width)
	}
	p.log.Debug("modal projector built",
		zap.Int("segments", len(p.bases)),
		zap.Int("samples", p.nSamples),
		zap.Int("width", p.width))
	return p, nil
}

// Width returns the number of coefficients per segment.
func (p *Projector) Width() int { return p.width }

// SampleLen returns the expected length of a surface vector.
func (p *Projector) SampleLen() int { return p.nSamples }

// Modes returns the number of modes of segment i.
func (p *Projector) Modes(i int) int {
	_, na := p.bases[i].Dims()
	return na
}

// Read stores a copy of the concatenated surface samples.
func (p *Projector) Read(data signal.Data) {
	if data.UID.Kind() != signal.Surface {
		signal.Unsupported("modal.Projector", data.UID)
	}
	if data.Len() != p.nSamples {
		panic(fmt.Sprintf("modal.Projector: %v has %d entries, expected %d", data.UID, data.Len(), p.nSamples))
	}
	p.surfaces = append(p.surfaces[:0], data.Values...)
}

// Update projects the latest surfaces:
//
//	coefs_i = B_i^T s_i
//
// followed by width - modes_i zeros.
func (p *Projector) Update() {
	if p.surfaces == nil {
		panic("modal.Projector: no surface has been read")
	}
	coefs := make([]float64, len(p.bases)*p.width)
	offset := 0
	for index, b := range p.bases {
		ns, na := b.Dims()
		s := mat.NewVecDense(ns, p.surfaces[offset:offset+ns])
		offset += ns
		dst := mat.NewVecDense(na, coefs[index*p.width:index*p.width+na])
		dst.MulVec(b.T(), s)
	}
	p.coefs = coefs
}

// Coefficients returns the latest modal coefficients. They must not be modified.
func (p *Projector) Coefficients() []float64 { return p.coefs }

// Write returns the modal coefficients.
func (p *Projector) Write(uid signal.UID) signal.Data {
	if uid.Kind() != signal.Coefficients {
		signal.Unsupported("modal.Projector", uid)
	}
	return signal.New(uid, p.coefs)
}
