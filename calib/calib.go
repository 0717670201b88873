// Package calib holds the calibration of a single mirror segment: the poke
// matrix measured by a calibration sweep, the mask of the sensor channels it
// covers and the mode describing its columns.
package calib

import (
	"errors"
	"fmt"

	"github.com/rodrigo-romano/gmt-ns-im/gonumExtensions"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmpty is returned for a poke matrix without rows or columns.
	ErrEmpty = errors.New("empty poke matrix")
	// ErrMaskLength is returned when the number of valid channels of a mask
	// doesn't match the poke matrix rows, or masks of one reconstructor differ in length.
	ErrMaskLength = errors.New("mask doesn't match poke matrix")
	// ErrModeSize is returned when a mode's degrees of freedom don't match the poke matrix columns.
	ErrModeSize = errors.New("mode doesn't match poke matrix columns")
	// ErrNonFinite is returned for a poke matrix holding NaN or Inf.
	ErrNonFinite = errors.New("poke matrix has NaN or Inf entries")
)

// Calib is the calibration of one segment.
//
// Row i of the poke matrix is the response of the i-th valid channel of the
// mask, i.e. the i-th true entry.
type Calib struct {
	poke   *mat.Dense
	mask   []bool
	mode   Mode
	valids int
}

// New returns the calibration built from poke, mask and mode. A nil mode is
// replaced by Unlabeled. poke and mask are copied.
func New(poke mat.Matrix, mask []bool, mode Mode) (*Calib, error) {
	rows, cols := poke.Dims()
	if rows == 0 || cols == 0 {
		return nil, ErrEmpty
	}
	if gonumExtensions.HasNaNOrInf(poke) {
		return nil, ErrNonFinite
	}
	valids := 0
	for _, m := range mask {
		if m {
			valids++
		}
	}
	if valids != rows {
		return nil, fmt.Errorf("%w: %d valid channels for %d rows", ErrMaskLength, valids, rows)
	}
	if mode == nil {
		mode = Unlabeled{}
	}
	if dof := mode.Dof(); dof >= 0 && dof != cols {
		return nil, fmt.Errorf("%w: %v has %d degrees of freedom, poke matrix has %d columns", ErrModeSize, mode, dof, cols)
	}
	return &Calib{
		poke:   mat.DenseCopyOf(poke),
		mask:   append([]bool(nil), mask...),
		mode:   mode,
		valids: valids,
	}, nil
}

// Poke returns the poke matrix. It must not be modified.
func (c *Calib) Poke() *mat.Dense { return c.poke }

// Mask returns the channel mask. It must not be modified.
func (c *Calib) Mask() []bool { return c.mask }

// Mode returns the column label.
func (c *Calib) Mode() Mode { return c.mode }

// NRows returns the number of valid channels.
func (c *Calib) NRows() int { return c.valids }

// NCols returns the number of command degrees of freedom.
func (c *Calib) NCols() int {
	_, n := c.poke.Dims()
	return n
}

// MaskLen returns the number of raw channels covered by the mask.
func (c *Calib) MaskLen() int { return len(c.mask) }

// SameMask reports whether c and other select the same channels.
func (c *Calib) SameMask(other *Calib) bool {
	if len(c.mask) != len(other.mask) {
		return false
	}
	for index := range c.mask {
		if c.mask[index] != other.mask[index] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of c.
func (c *Calib) Clone() *Calib {
	return &Calib{
		poke:   mat.DenseCopyOf(c.poke),
		mask:   append([]bool(nil), c.mask...),
		mode:   c.mode,
		valids: c.valids,
	}
}

// Normalize divides the poke matrix by its Frobenius norm and returns the
// norm (one for a zero matrix).
func (c *Calib) Normalize() float64 {
	return gonumExtensions.Normalize(c.poke)
}

// Select appends to dst the entries of data at the valid channels and returns
// the extended slice. data must span the whole mask.
func (c *Calib) Select(dst, data []float64) []float64 {
	if len(data) != len(c.mask) {
		panic(fmt.Sprintf("data has %d entries, mask has %d", len(data), len(c.mask)))
	}
	for index, m := range c.mask {
		if m {
			dst = append(dst, data[index])
		}
	}
	return dst
}

// Scatter adds values, one per valid channel, into dst at the valid channel
// positions.
func (c *Calib) Scatter(dst, values []float64) {
	if len(dst) != len(c.mask) {
		panic(fmt.Sprintf("destination has %d entries, mask has %d", len(dst), len(c.mask)))
	}
	if len(values) != c.valids {
		panic(fmt.Sprintf("%d values for %d valid channels", len(values), c.valids))
	}
	next := 0
	for index, m := range c.mask {
		if m {
			dst[index] += values[next]
			next++
		}
	}
}

// Forward returns the synthetic measurement poke * cmd over the valid channels.
func (c *Calib) Forward(cmd []float64) []float64 {
	if len(cmd) != c.NCols() {
		panic(fmt.Sprintf("command has %d entries, poke matrix has %d columns", len(cmd), c.NCols()))
	}
	res := mat.NewVecDense(c.valids, nil)
	res.MulVec(c.poke, mat.NewVecDense(len(cmd), cmd))
	return res.RawVector().Data
}

func (c *Calib) String() string {
	return fmt.Sprintf("%v %dx%d (%d channels)", c.mode, c.valids, c.NCols(), len(c.mask))
}
