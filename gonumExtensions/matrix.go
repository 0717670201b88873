package gonumExtensions

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSVD is returned when the singular value decomposition does not converge.
var ErrSVD = errors.New("singular value decomposition failed")

// Eye returns the (n by n) identity matrix.
func Eye(n int) *mat.DiagDense {
	data := make([]float64, n)
	for entry := range data {
		data[entry] = 1
	}
	return mat.NewDiagDense(n, data)
}

// HasNaNOrInf checks if there are any NaN or Inf entries in matrix.
func HasNaNOrInf(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if v := matrix.At(row, col); math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

// DefaultRcond returns the relative singular value tolerance used when none is
// given: max(m, n) times the machine epsilon.
func DefaultRcond(m, n int) float64 {
	return float64(max(m, n)) * 0x1p-52
}

// PseudoInverse returns the Moore-Penrose pseudo-inverse of a (m by n), the
// singular values of a in decreasing order and the number of singular values
// that were kept.
//
//	a+ = V S+ U^T
//
// Singular values below rcond*s_max are treated as zero; rcond <= 0 selects
// DefaultRcond. When rank >= 0 at most rank singular values are kept.
func PseudoInverse(a mat.Matrix, rcond float64, rank int) (*mat.Dense, []float64, int, error) {
	m, n := a.Dims()
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, nil, 0, ErrSVD
	}
	values := svd.Values(nil)

	if rcond <= 0 {
		rcond = DefaultRcond(m, n)
	}
	kept := 0
	if len(values) > 0 && values[0] > 0 {
		threshold := rcond * values[0]
		for kept < len(values) && values[kept] > threshold {
			kept++
		}
	}
	if rank >= 0 && kept > rank {
		kept = rank
	}

	pinv := mat.NewDense(n, m, nil)
	if kept == 0 {
		return pinv, values, 0, nil
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// vs = V[:, :kept] S[:kept]^-1
	vs := mat.DenseCopyOf(v.Slice(0, n, 0, kept))
	for col := 0; col < kept; col++ {
		inv := 1 / values[col]
		for row := 0; row < n; row++ {
			vs.Set(row, col, vs.At(row, col)*inv)
		}
	}
	// pinv = vs U[:, :kept]^T
	pinv.Mul(vs, u.Slice(0, m, 0, kept).T())
	return pinv, values, kept, nil
}

// Normalize scales a in place by the inverse of its Frobenius norm and returns
// the norm. A zero matrix is left untouched and reports a norm of one so that
// callers can always divide by the returned factor.
func Normalize(a *mat.Dense) float64 {
	nrm := mat.Norm(a, 2)
	if nrm == 0 {
		return 1
	}
	a.Scale(1/nrm, a)
	return nrm
}

// ScaleRows returns diag(1/factors) a, i.e. row i of a divided by factors[i].
func ScaleRows(a mat.Matrix, factors []float64) *mat.Dense {
	m, _ := a.Dims()
	if len(factors) != m {
		panic(errors.New("number of factors doesn't match the number of rows"))
	}
	inv := make([]float64, m)
	for index, f := range factors {
		inv[index] = 1 / f
	}
	var res mat.Dense
	res.Mul(mat.NewDiagDense(m, inv), a)
	return &res
}

// ConditionNumber returns s_max/s_min over the kept singular values, +Inf when
// nothing is kept.
func ConditionNumber(values []float64, kept int) float64 {
	if kept == 0 || kept > len(values) {
		return math.Inf(1)
	}
	return values[0] / values[kept-1]
}
