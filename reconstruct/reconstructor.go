package reconstruct

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rodrigo-romano/gmt-ns-im/calib"
	"github.com/rodrigo-romano/gmt-ns-im/gonumExtensions"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoSegment is returned when a reconstructor is built without calibrations.
	ErrNoSegment = errors.New("reconstructor needs at least one segment")
	// ErrRankLength is returned when the truncation ranks don't match the segments.
	ErrRankLength = errors.New("number of ranks doesn't match the number of segments")
	// ErrNotInverted is returned when a pseudo-inverse is needed before one was computed.
	ErrNotInverted = errors.New("reconstructor has not been inverted")
)

// segment is the record of one segment: its calibration and, once inverted,
// the pseudo-inverse of its poke matrix.
type segment struct {
	calib *calib.Calib
	// pinv is (columns by rows) of the poke matrix
	pinv *mat.Dense
	// singular values of the poke matrix, decreasing
	values []float64
	// number of singular values used by pinv
	kept int
}

// Reconstructor is the ordered set of segment calibrations and their
// pseudo-inverses. Segment order never changes.
type Reconstructor struct {
	segments []segment
	rcond    float64
	log      *zap.Logger
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithRcond sets the relative singular value tolerance; values <= 0 select
// gonumExtensions.DefaultRcond.
func WithRcond(rcond float64) Option {
	return func(r *Reconstructor) { r.rcond = rcond }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Reconstructor) {
		if log != nil {
			r.log = log
		}
	}
}

// New returns a reconstructor over calibs, one per segment, in order. All
// masks must span the same number of channels.
func New(calibs []*calib.Calib, opts ...Option) (*Reconstructor, error) {
	if len(calibs) == 0 {
		return nil, ErrNoSegment
	}
	r := &Reconstructor{
		segments: make([]segment, len(calibs)),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	n := calibs[0].MaskLen()
	for index, c := range calibs {
		if c.MaskLen() != n {
			return nil, fmt.Errorf("segment #%d: %w: mask spans %d channels, expected %d", index, calib.ErrMaskLength, c.MaskLen(), n)
		}
		r.segments[index].calib = c
	}
	return r, nil
}

// Len returns the number of segments.
func (r *Reconstructor) Len() int { return len(r.segments) }

// Calib returns the calibration of segment i.
func (r *Reconstructor) Calib(i int) *calib.Calib { return r.segments[i].calib }

// Calibs returns the calibrations in segment order.
func (r *Reconstructor) Calibs() []*calib.Calib {
	res := make([]*calib.Calib, len(r.segments))
	for index := range r.segments {
		res[index] = r.segments[index].calib
	}
	return res
}

// Pinv returns the pseudo-inverse of segment i, nil before inversion. It must
// not be modified.
func (r *Reconstructor) Pinv(i int) *mat.Dense { return r.segments[i].pinv }

// SingularValues returns the singular values of the poke matrix of segment i,
// nil before inversion.
func (r *Reconstructor) SingularValues(i int) []float64 { return r.segments[i].values }

// Rank returns the number of singular values used by the pseudo-inverse of
// segment i.
func (r *Reconstructor) Rank(i int) int { return r.segments[i].kept }

// Inverted reports whether the pseudo-inverses have been computed.
func (r *Reconstructor) Inverted() bool { return r.segments[0].pinv != nil }

// MaskLen returns the number of raw channels of the measurement vector.
func (r *Reconstructor) MaskLen() int { return r.segments[0].calib.MaskLen() }

// NRows returns the total number of valid channels over all segments.
func (r *Reconstructor) NRows() int {
	n := 0
	for _, s := range r.segments {
		n += s.calib.NRows()
	}
	return n
}

// NCols returns the total number of command degrees of freedom.
func (r *Reconstructor) NCols() int {
	n := 0
	for _, s := range r.segments {
		n += s.calib.NCols()
	}
	return n
}

// PseudoInverse computes the full Moore-Penrose pseudo-inverse of every segment.
func (r *Reconstructor) PseudoInverse() error {
	return r.invert(nil)
}

// TruncatedPseudoInverse computes the pseudo-inverse of every segment keeping
// at most ranks[i] singular values for segment i.
func (r *Reconstructor) TruncatedPseudoInverse(ranks []int) error {
	if len(ranks) != len(r.segments) {
		return fmt.Errorf("%w: %d ranks for %d segments", ErrRankLength, len(ranks), len(r.segments))
	}
	for index, k := range ranks {
		if k < 0 {
			return fmt.Errorf("%w: negative rank %d for segment #%d", ErrRankLength, k, index)
		}
	}
	return r.invert(ranks)
}

// pseudoInverse factorizes one segment.
var pseudoInverse = gonumExtensions.PseudoInverse

// invert runs the segment decompositions concurrently. The segments are
// updated only when every decomposition succeeds.
func (r *Reconstructor) invert(ranks []int) error {
	var g errgroup.Group
	inverted := make([]segment, len(r.segments))
	for index := range r.segments {
		index := index
		rank := -1
		if ranks != nil {
			rank = ranks[index]
		}
		g.Go(func() error {
			c := r.segments[index].calib
			pinv, values, kept, err := pseudoInverse(c.Poke(), r.rcond, rank)
			if err != nil {
				return fmt.Errorf("segment #%d: %w", index, err)
			}
			inverted[index] = segment{calib: c, pinv: pinv, values: values, kept: kept}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	copy(r.segments, inverted)
	for index, s := range r.segments {
		r.log.Debug("segment inverted",
			zap.Int("segment", index),
			zap.Int("rows", s.calib.NRows()),
			zap.Int("cols", s.calib.NCols()),
			zap.Int("rank", s.kept),
			zap.Float64("cond", gonumExtensions.ConditionNumber(s.values, s.kept)))
	}
	return nil
}

// Normalize scales every poke matrix to unit Frobenius norm and returns the
// norms in segment order. Existing pseudo-inverses are dropped.
func (r *Reconstructor) Normalize() []float64 {
	nrms := make([]float64, len(r.segments))
	for index := range r.segments {
		s := &r.segments[index]
		nrms[index] = s.calib.Normalize()
		s.pinv, s.values, s.kept = nil, nil, 0
	}
	return nrms
}

// Rescale left-multiplies the pseudo-inverse of segment i by diag(1/factors),
// one factor per command degree of freedom.
func (r *Reconstructor) Rescale(i int, factors []float64) error {
	s := &r.segments[i]
	if s.pinv == nil {
		return ErrNotInverted
	}
	s.pinv = gonumExtensions.ScaleRows(s.pinv, factors)
	return nil
}

// EstimateSegment appends to dst the command estimate of segment i computed
// from the raw measurement vector data, and returns the extended slice.
//
//	c_i = pinv_i data[mask_i]
func (r *Reconstructor) EstimateSegment(dst []float64, i int, data []float64) []float64 {
	s := &r.segments[i]
	if s.pinv == nil {
		panic(ErrNotInverted)
	}
	rhs := s.calib.Select(make([]float64, 0, s.calib.NRows()), data)
	var y mat.VecDense
	y.MulVec(s.pinv, mat.NewVecDense(len(rhs), rhs))
	return append(dst, y.RawVector().Data...)
}

// Estimate returns the command estimates of all segments, concatenated in
// segment order.
func (r *Reconstructor) Estimate(data []float64) []float64 {
	res := make([]float64, 0, r.NCols())
	for index := range r.segments {
		res = r.EstimateSegment(res, index, data)
	}
	return res
}

// Clone returns a deep copy of r.
func (r *Reconstructor) Clone() *Reconstructor {
	res := &Reconstructor{
		segments: make([]segment, len(r.segments)),
		rcond:    r.rcond,
		log:      r.log,
	}
	for index, s := range r.segments {
		res.segments[index] = segment{
			calib:  s.calib.Clone(),
			values: append([]float64(nil), s.values...),
			kept:   s.kept,
		}
		if s.pinv != nil {
			res.segments[index].pinv = mat.DenseCopyOf(s.pinv)
		}
	}
	return res
}

func (r *Reconstructor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reconstructor: %d segments, %d channels\n", len(r.segments), r.MaskLen())
	fmt.Fprintf(&b, "%4s %-32s %10s %6s %12s\n", "SID", "MODE", "SHAPE", "RANK", "COND")
	for index, s := range r.segments {
		shape := fmt.Sprintf("%dx%d", s.calib.NRows(), s.calib.NCols())
		cond := "-"
		if s.pinv != nil {
			cond = fmt.Sprintf("%.3e", gonumExtensions.ConditionNumber(s.values, s.kept))
		}
		fmt.Fprintf(&b, "%4d %-32v %10s %6d %12s\n", index+1, s.calib.Mode(), shape, s.kept, cond)
	}
	return b.String()
}
