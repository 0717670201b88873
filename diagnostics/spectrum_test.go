package diagnostics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rodrigo-romano/gmt-ns-im/calib"
	"github.com/rodrigo-romano/gmt-ns-im/reconstruct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func diagonalRecon(t *testing.T) *reconstruct.Reconstructor {
	t.Helper()
	c1, err := calib.New(mat.NewDense(3, 3, []float64{4, 0, 0, 0, 2, 0, 0, 0, 1}), []bool{true, true, true}, nil)
	require.NoError(t, err)
	c2, err := calib.New(mat.NewDense(3, 2, []float64{1, 0, 0, 1e-3, 0, 0}), []bool{true, true, true}, nil)
	require.NoError(t, err)
	r, err := reconstruct.New([]*calib.Calib{c1, c2})
	require.NoError(t, err)
	return r
}

func TestSpectrum(t *testing.T) {
	r := diagonalRecon(t)
	_, err := Spectrum(r)
	assert.ErrorIs(t, err, reconstruct.ErrNotInverted)

	require.NoError(t, r.PseudoInverse())
	spectra, err := Spectrum(r)
	require.NoError(t, err)
	require.Len(t, spectra, 2)
	require.Len(t, spectra[0], 3)
	assert.Equal(t, 4., spectra[0][0].Y)
	assert.Equal(t, 2., spectra[0][1].X)
	assert.Equal(t, 1e-3, spectra[1][1].Y)
}

func TestPlotSpectrum(t *testing.T) {
	r := diagonalRecon(t)
	require.NoError(t, r.PseudoInverse())

	path := filepath.Join(t.TempDir(), "spectrum.png")
	require.NoError(t, PlotSpectrum(r, "test", path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
