package gonumExtensions

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomDense(rng *rand.Rand, m, n int) *mat.Dense {
	data := make([]float64, m*n)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(m, n, data)
}

func TestPseudoInverseFullColumnRank(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	A := randomDense(rng, 12, 4)

	pinv, values, kept, err := PseudoInverse(A, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 4, kept)
	assert.Len(t, values, 4)

	r, c := pinv.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 12, c)

	// A+ A = I for a full column rank matrix
	var res mat.Dense
	res.Mul(pinv, A)
	t.Logf("A+ A = \n%v\n", mat.Formatted(&res))
	assert.True(t, mat.EqualApprox(&res, Eye(4), 1e-10))
}

func TestPseudoInverseRankDeficient(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	B := randomDense(rng, 8, 2)
	// A has three columns but only rank two
	A := mat.NewDense(8, 3, nil)
	A.Augment(B, B.ColView(0))

	pinv, _, kept, err := PseudoInverse(A, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, kept)
	assert.False(t, HasNaNOrInf(pinv))

	// Moore-Penrose condition A A+ A = A
	var tmp, res mat.Dense
	tmp.Mul(A, pinv)
	res.Mul(&tmp, A)
	assert.True(t, mat.EqualApprox(&res, A, 1e-10))
}

func TestPseudoInverseTruncated(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	A := randomDense(rng, 10, 5)

	for rank := 0; rank <= 6; rank++ {
		pinv, _, kept, err := PseudoInverse(A, 0, rank)
		require.NoError(t, err)
		assert.Equal(t, min(rank, 5), kept)
		if rank == 0 {
			assert.Zero(t, mat.Norm(pinv, 2))
		}
	}
}

func TestPseudoInverseZeroMatrix(t *testing.T) {
	pinv, values, kept, err := PseudoInverse(mat.NewDense(3, 2, nil), 0, -1)
	require.NoError(t, err)
	assert.Zero(t, kept)
	assert.Equal(t, []float64{0, 0}, values)
	assert.Zero(t, mat.Norm(pinv, 2))
}

func TestNormalize(t *testing.T) {
	A := mat.NewDense(2, 2, []float64{3, 0, 0, 4})
	nrm := Normalize(A)
	assert.InDelta(t, 5, nrm, 1e-12)
	assert.InDelta(t, 1, mat.Norm(A, 2), 1e-12)

	Z := mat.NewDense(2, 2, nil)
	assert.Equal(t, 1., Normalize(Z))
}

func TestScaleRows(t *testing.T) {
	A := mat.NewDense(3, 2, []float64{2, 4, 3, 6, 5, 10})
	res := ScaleRows(A, []float64{2, 3, 5})
	want := mat.NewDense(3, 2, []float64{1, 2, 1, 2, 1, 2})
	assert.True(t, mat.EqualApprox(res, want, 1e-14))

	assert.Panics(t, func() { ScaleRows(A, []float64{1}) })
}

func TestHasNaNOrInf(t *testing.T) {
	assert.False(t, HasNaNOrInf(mat.NewDense(1, 2, []float64{1, 2})))
	assert.True(t, HasNaNOrInf(mat.NewDense(1, 2, []float64{1, math.NaN()})))
	assert.True(t, HasNaNOrInf(mat.NewDense(1, 2, []float64{math.Inf(-1), 0})))
}

func TestConditionNumber(t *testing.T) {
	assert.Equal(t, 4., ConditionNumber([]float64{8, 4, 2}, 3))
	assert.Equal(t, 2., ConditionNumber([]float64{8, 4, 2}, 2))
	assert.True(t, math.IsInf(ConditionNumber([]float64{8}, 0), 1))
}
