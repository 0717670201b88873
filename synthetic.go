package gmtns

import (
	"fmt"
	"math/rand"

	"github.com/rodrigo-romano/gmt-ns-im/calib"
	"github.com/rodrigo-romano/gmt-ns-im/reconstruct"
	"gonum.org/v1/gonum/mat"
)

// SyntheticMasks returns the masks of segments sharing a sensor of
// segments*width channels. Segment i sees the i-th block of width channels,
// each of them being valid with probability fraction.
func SyntheticMasks(rng *rand.Rand, segments, width int, fraction float64) [][]bool {
	masks := make([][]bool, segments)
	for index := range masks {
		mask := make([]bool, segments*width)
		for j := index * width; j < (index+1)*width; j++ {
			mask[j] = rng.Float64() < fraction
		}
		masks[index] = mask
	}
	return masks
}

// SyntheticCalib returns a calibration of mode over mask with normally
// distributed interaction coefficients of standard deviation scale.
func SyntheticCalib(rng *rand.Rand, mask []bool, mode calib.Mode, scale float64) (*calib.Calib, error) {
	n := mode.Dof()
	if n <= 0 {
		return nil, fmt.Errorf("%w: synthetic calibration needs a known mode size, got %v", calib.ErrModeSize, mode)
	}
	m := 0
	for _, v := range mask {
		if v {
			m++
		}
	}
	if m == 0 {
		return nil, calib.ErrEmpty
	}
	data := make([]float64, m*n)
	for index := range data {
		data[index] = scale * rng.NormFloat64()
	}
	return calib.New(mat.NewDense(m, n, data), mask, mode)
}

// SyntheticReconstructor returns a reconstructor with one synthetic
// calibration of mode per mask.
func SyntheticReconstructor(rng *rand.Rand, masks [][]bool, mode calib.Mode, scale float64) (*reconstruct.Reconstructor, error) {
	calibs := make([]*calib.Calib, len(masks))
	for index, mask := range masks {
		c, err := SyntheticCalib(rng, mask, mode, scale)
		if err != nil {
			return nil, fmt.Errorf("segment #%d: %w", index, err)
		}
		calibs[index] = c
	}
	return reconstruct.New(calibs)
}

// SyntheticBases returns segments orthonormal bases of modes columns sampled
// over samples points.
func SyntheticBases(rng *rand.Rand, segments, samples, modes int) []mat.Matrix {
	bases := make([]mat.Matrix, segments)
	for index := range bases {
		data := make([]float64, samples*modes)
		for i := range data {
			data[i] = rng.NormFloat64()
		}
		var qr mat.QR
		qr.Factorize(mat.NewDense(samples, modes, data))
		var q mat.Dense
		qr.QTo(&q)
		bases[index] = mat.DenseCopyOf(q.Slice(0, samples, 0, modes))
	}
	return bases
}
