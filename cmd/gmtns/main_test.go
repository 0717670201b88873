package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gmtns "github.com/rodrigo-romano/gmt-ns-im"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallConfig is a reduced system keeping the tests fast.
const smallConfig = `
segments: 2
m1:
  n_mode: 5
  n_raw_mode: 40
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gmtns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(smallConfig), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", path))
	err := cmd.Execute()
	return out.String(), err
}

func TestConfig(t *testing.T) {
	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "segments: 2"), out)
	assert.True(t, strings.Contains(out, "n_raw_mode: 40"), out)
}

func TestSelftest(t *testing.T) {
	out, err := execute(t, "selftest", "--ticks", "5")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "ticks: 5"), out)
	assert.True(t, strings.Contains(out, "M1 modal projection residual"), out)
	assert.True(t, strings.Contains(out, "closed loop attenuation (gain 0.2)"), out)
}

func TestSelftestTruncated(t *testing.T) {
	// truncating the joint inverse below the command space size breaks the round trip
	path := filepath.Join(t.TempDir(), "truncated.yaml")
	require.NoError(t, os.WriteFile(path, []byte(smallConfig+"reconstructor:\n  ranks: [2, 2]\n  command_stride: 6\n"), 0o600))
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"selftest", "--ticks", "2", "--config", path})
	assert.ErrorIs(t, cmd.Execute(), errResidual)
}

func TestSpectrum(t *testing.T) {
	for _, single := range []bool{false, true} {
		path := filepath.Join(t.TempDir(), "spectrum.svg")
		args := []string{"spectrum", "--out", path}
		if single {
			args = append(args, "--single")
		}
		_, err := execute(t, args...)
		require.NoError(t, err)
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestPacked(t *testing.T) {
	cmd := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	assert.Equal(t, []float64{1, 2, 5, 6, 7}, packed(cmd, 4, []int{2, 3}))
	assert.Equal(t, cmd, packed(cmd, 0, []int{3, 5}))
	assert.NoError(t, gmtns.DefaultSystem().Validate())
}
