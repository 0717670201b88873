// Package merge builds one joint reconstructor out of two reconstructors
// calibrated over different command spaces of the same sensor, and splits the
// joint estimates back into the two spaces.
package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rodrigo-romano/gmt-ns-im/calib"
	"github.com/rodrigo-romano/gmt-ns-im/reconstruct"
	"github.com/rodrigo-romano/gmt-ns-im/signal"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSegmentCount is returned when the two reconstructors have a different number of segments.
	ErrSegmentCount = errors.New("reconstructors have different segment counts")
	// ErrDimensionMismatch is returned when two segment calibrations have a different number of rows.
	ErrDimensionMismatch = errors.New("poke matrices row count mismatch")
	// ErrMaskMismatch is returned when two segment calibrations select different channels.
	ErrMaskMismatch = errors.New("calibration masks differ")
)

// split records how many entries of a segment estimate belong to each space.
type split struct {
	na, nb int
}

// MergeReconstructor estimates commands of two spaces, A and B, from a single
// measurement vector.
type MergeReconstructor struct {
	recon *reconstruct.Reconstructor
	sizes []split
	// normalization factors of A and B per segment
	norms [][2]float64

	data      []float64
	estimates [2][]float64

	log *zap.Logger
}

type options struct {
	ranks []int
	rcond float64
	log   *zap.Logger
}

// Option configures the construction of a MergeReconstructor.
type Option func(*options)

// WithRanks truncates the joint pseudo-inverse of segment i to ranks[i]
// singular values.
func WithRanks(ranks []int) Option {
	return func(o *options) { o.ranks = ranks }
}

// WithRcond sets the relative singular value tolerance of the pseudo-inverse.
func WithRcond(rcond float64) Option {
	return func(o *options) { o.rcond = rcond }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// New returns the merged reconstructor of a and b. a and b are not modified.
//
// For each segment the poke matrices A and B are scaled to unit norm and
// concatenated column-wise, C = [A/|A| B/|B|]. The joint pseudo-inverse is then
// mapped back to physical units:
//
//	C+ <- diag(1/|A|,...,1/|B|,...) C+
func New(a, b *reconstruct.Reconstructor, opts ...Option) (*MergeReconstructor, error) {
	o := newOptions(opts)
	if a.Len() != b.Len() {
		return nil, fmt.Errorf("%w: %d and %d", ErrSegmentCount, a.Len(), b.Len())
	}

	n := a.Len()
	calibs := make([]*calib.Calib, n)
	sizes := make([]split, n)
	norms := make([][2]float64, n)
	for index := 0; index < n; index++ {
		ca, cb := a.Calib(index).Clone(), b.Calib(index).Clone()
		if ca.NRows() != cb.NRows() {
			return nil, fmt.Errorf("segment #%d: %w: %d and %d", index, ErrDimensionMismatch, ca.NRows(), cb.NRows())
		}
		if !ca.SameMask(cb) {
			return nil, fmt.Errorf("segment #%d: %w", index, ErrMaskMismatch)
		}

		norms[index] = [2]float64{ca.Normalize(), cb.Normalize()}
		sizes[index] = split{ca.NCols(), cb.NCols()}

		// C = [A B]
		var joint mat.Dense
		joint.Augment(ca.Poke(), cb.Poke())
		c, err := calib.New(&joint, ca.Mask(), calib.Pair{A: ca.Mode(), B: cb.Mode()})
		if err != nil {
			return nil, fmt.Errorf("segment #%d: %w", index, err)
		}
		calibs[index] = c
	}

	m, err := build(calibs, sizes, norms, o)
	if err != nil {
		return nil, err
	}
	o.log.Info("merged reconstructor built",
		zap.Int("segments", n),
		zap.Int("a", a.NCols()),
		zap.Int("b", b.NCols()),
		zap.Int("channels", m.recon.MaskLen()))
	return m, nil
}

// Single returns a reconstructor over a alone, built with the same
// normalization as New. Its B estimate is empty.
func Single(a *reconstruct.Reconstructor, opts ...Option) (*MergeReconstructor, error) {
	o := newOptions(opts)
	n := a.Len()
	calibs := make([]*calib.Calib, n)
	sizes := make([]split, n)
	norms := make([][2]float64, n)
	for index := 0; index < n; index++ {
		c := a.Calib(index).Clone()
		norms[index] = [2]float64{c.Normalize(), 1}
		sizes[index] = split{c.NCols(), 0}
		calibs[index] = c
	}
	m, err := build(calibs, sizes, norms, o)
	if err != nil {
		return nil, err
	}
	o.log.Info("single reconstructor built",
		zap.Int("segments", n),
		zap.Int("a", a.NCols()),
		zap.Int("channels", m.recon.MaskLen()))
	return m, nil
}

// Load builds the merged reconstructor of the artifacts nameA and nameB from
// src, or the single reconstructor of nameA when nameB is empty.
func Load(ctx context.Context, src reconstruct.Source, nameA, nameB string, opts ...Option) (*MergeReconstructor, error) {
	a, err := src.Load(ctx, nameA)
	if err != nil {
		return nil, err
	}
	if nameB == "" {
		return Single(a, opts...)
	}
	b, err := src.Load(ctx, nameB)
	if err != nil {
		return nil, err
	}
	return New(a, b, opts...)
}

// build inverts the normalized calibrations and rescales the pseudo-inverses.
func build(calibs []*calib.Calib, sizes []split, norms [][2]float64, o *options) (*MergeReconstructor, error) {
	recon, err := reconstruct.New(calibs, reconstruct.WithRcond(o.rcond), reconstruct.WithLogger(o.log))
	if err != nil {
		return nil, err
	}
	if o.ranks != nil {
		err = recon.TruncatedPseudoInverse(o.ranks)
	} else {
		err = recon.PseudoInverse()
	}
	if err != nil {
		return nil, err
	}
	for index, s := range sizes {
		factors := make([]float64, 0, s.na+s.nb)
		for i := 0; i < s.na; i++ {
			factors = append(factors, norms[index][0])
		}
		for i := 0; i < s.nb; i++ {
			factors = append(factors, norms[index][1])
		}
		if err := recon.Rescale(index, factors); err != nil {
			return nil, err
		}
	}
	return &MergeReconstructor{
		recon: recon,
		sizes: sizes,
		norms: norms,
		log:   o.log,
	}, nil
}

// Reconstructor returns the joint reconstructor. It must not be modified.
func (m *MergeReconstructor) Reconstructor() *reconstruct.Reconstructor { return m.recon }

// Sizes returns the number of A and B entries of the estimate of segment i.
func (m *MergeReconstructor) Sizes(i int) (na, nb int) {
	return m.sizes[i].na, m.sizes[i].nb
}

// Norms returns the normalization factors of A and B for segment i.
func (m *MergeReconstructor) Norms(i int) (float64, float64) {
	return m.norms[i][0], m.norms[i][1]
}

// Read stores a copy of a measurement vector.
func (m *MergeReconstructor) Read(data signal.Data) {
	if data.UID.Kind() != signal.Measurement {
		signal.Unsupported("MergeReconstructor", data.UID)
	}
	if n := m.recon.MaskLen(); data.Len() != n {
		panic(fmt.Sprintf("MergeReconstructor: %v has %d entries, expected %d", data.UID, data.Len(), n))
	}
	m.data = append(m.data[:0], data.Values...)
}

// Update computes the split estimates from the latest measurement vector.
func (m *MergeReconstructor) Update() {
	if m.data == nil {
		panic("MergeReconstructor: no measurement has been read")
	}
	var ya, yb []float64
	buf := make([]float64, 0)
	for index, s := range m.sizes {
		buf = m.recon.EstimateSegment(buf[:0], index, m.data)
		ya = append(ya, buf[:s.na]...)
		yb = append(yb, buf[s.na:]...)
	}
	m.estimates = [2][]float64{ya, yb}
}

// Estimate returns the A (i = 0) or B (i = 1) estimate, concatenated over
// segments. It must not be modified.
func (m *MergeReconstructor) Estimate(i int) []float64 {
	if i != 0 && i != 1 {
		panic(fmt.Sprintf("found SplitEstimate #%d, expected 0 or 1", i))
	}
	return m.estimates[i]
}

// Write returns the split estimate of channel uid.
func (m *MergeReconstructor) Write(uid signal.UID) signal.Data {
	i, ok := uid.SplitIndex()
	if !ok {
		signal.Unsupported("MergeReconstructor", uid)
	}
	return signal.New(uid, m.Estimate(i))
}

func (m *MergeReconstructor) String() string {
	return "Merge Reconstructor:\n" + m.recon.String()
}
