package gmtns

import (
	"math/rand"
	"testing"

	"github.com/rodrigo-romano/gmt-ns-im/calib"
	"github.com/rodrigo-romano/gmt-ns-im/gonumExtensions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSyntheticMasks(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	masks := SyntheticMasks(rng, 3, 10, 0.5)
	require.Len(t, masks, 3)
	for index, mask := range masks {
		require.Len(t, mask, 30)
		for j, v := range mask {
			if v {
				assert.Equal(t, index, j/10, "segment #%d sees channel %d", index, j)
			}
		}
	}
	full := SyntheticMasks(rng, 2, 4, 1)
	assert.Equal(t, []bool{true, true, true, true, false, false, false, false}, full[0])
}

func TestSyntheticReconstructor(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	masks := SyntheticMasks(rng, 2, 20, 1)
	r, err := SyntheticReconstructor(rng, masks, calib.RXY(1e-6), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 4, r.NCols())
	assert.Equal(t, 40, r.MaskLen())

	_, err = SyntheticReconstructor(rng, masks, calib.Unlabeled{}, 1)
	assert.ErrorIs(t, err, calib.ErrModeSize)

	_, err = SyntheticCalib(rng, make([]bool, 5), calib.RXY(1e-6), 1)
	assert.ErrorIs(t, err, calib.ErrEmpty)
}

func TestSyntheticBases(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	bases := SyntheticBases(rng, 2, 50, 5)
	require.Len(t, bases, 2)
	for _, b := range bases {
		r, c := b.Dims()
		require.Equal(t, 50, r)
		require.Equal(t, 5, c)
		var btb mat.Dense
		btb.Mul(b.T(), b)
		assert.True(t, mat.EqualApprox(&btb, gonumExtensions.Eye(5), 1e-12))
	}
}
