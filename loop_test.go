package gmtns

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rodrigo-romano/gmt-ns-im/calib"
	"github.com/rodrigo-romano/gmt-ns-im/control"
	"github.com/rodrigo-romano/gmt-ns-im/merge"
	"github.com/rodrigo-romano/gmt-ns-im/signal"
	"github.com/rodrigo-romano/gmt-ns-im/simulate"
	"github.com/rodrigo-romano/gmt-ns-im/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/floats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const segments = 3

func newLoop(t *testing.T, opts ...LoopOption) *Loop {
	t.Helper()
	l, _ := newLoopAndSensor(t, opts...)
	return l
}

// newLoopAndSensor also returns a pseudo open-loop over the same calibrations
// as the loop's.
func newLoopAndSensor(t *testing.T, opts ...LoopOption) (*Loop, *simulate.PseudoOpenLoop) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	masks := SyntheticMasks(rng, segments, 40, 1)
	a, err := SyntheticReconstructor(rng, masks, calib.RBM(1e-6), 1e2)
	require.NoError(t, err)
	b, err := SyntheticReconstructor(rng, masks, calib.Modes(4, 1e-6), 1)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	m, err := merge.New(a, b, merge.WithLogger(log))
	require.NoError(t, err)
	open, err := simulate.New(a, simulate.WithLogger(log))
	require.NoError(t, err)
	l, err := NewLoop(open, m, append([]LoopOption{WithLogger(log)}, opts...)...)
	require.NoError(t, err)
	sensor, err := simulate.New(a)
	require.NoError(t, err)
	return l, sensor
}

func randomCommand(rng *rand.Rand) []float64 {
	cmd := make([]float64, segments*6)
	for index := range cmd {
		cmd[index] = 1e-6 * rng.NormFloat64()
	}
	return cmd
}

func assertClose(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	diff := make([]float64, len(want))
	floats.SubTo(diff, got, want)
	assert.Less(t, floats.Norm(diff, 2), 1e-8*floats.Norm(want, 2), "want %v, got %v", want, got)
}

func TestLoopAccumulates(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := newLoop(t, WithMetrics(telemetry.New(reg)))
	rng := rand.New(rand.NewSource(8))

	sum := make([]float64, segments*6)
	for tick := 0; tick < 3; tick++ {
		cmd := randomCommand(rng)
		floats.Add(sum, cmd)
		a, b := l.Step(signal.New(signal.M2RigidBodyMotions, cmd))
		assertClose(t, sum, a)
		require.Len(t, b, segments*4)
		assert.Less(t, floats.Norm(b, 2), 1e-8*floats.Norm(sum, 2))
	}
	assert.Equal(t, 3, l.Ticks())

	expected := `
# HELP gmtns_loop_ticks_total Total control loop ticks
# TYPE gmtns_loop_ticks_total counter
gmtns_loop_ticks_total 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "gmtns_loop_ticks_total"))
}

func TestLoopOverwrite(t *testing.T) {
	l := newLoop(t)
	rng := rand.New(rand.NewSource(9))

	l.Step(signal.New(signal.M2RigidBodyMotions, randomCommand(rng)))
	l.Overwrite(make([]float64, segments*40))
	cmd := randomCommand(rng)
	a, _ := l.Step(signal.New(signal.M2RigidBodyMotions, cmd))
	assertClose(t, cmd, a)
}

func TestLoopRun(t *testing.T) {
	l := newLoop(t)
	rng := rand.New(rand.NewSource(10))
	command := func(int) signal.Data {
		return signal.New(signal.M2RigidBodyMotions, randomCommand(rng))
	}

	var seen int
	require.NoError(t, l.Run(context.Background(), 4, command, func(tick int, a, b []float64) error {
		seen++
		return nil
	}))
	assert.Equal(t, 4, seen)
	assert.Equal(t, 4, l.Ticks())

	stop := errors.New("stop")
	err := l.Run(context.Background(), 4, command, func(tick int, a, b []float64) error {
		if tick == 1 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 6, l.Ticks())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Run(ctx, 4, command, nil), context.Canceled)
}

func TestNewLoopChannels(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	a, err := SyntheticReconstructor(rng, SyntheticMasks(rng, 2, 20, 1), calib.RXY(1e-6), 1)
	require.NoError(t, err)
	b, err := SyntheticReconstructor(rng, SyntheticMasks(rng, 2, 30, 1), calib.RXY(1e-6), 1)
	require.NoError(t, err)

	open, err := simulate.New(a)
	require.NoError(t, err)
	m, err := merge.Single(b)
	require.NoError(t, err)
	_, err = NewLoop(open, m)
	assert.ErrorIs(t, err, ErrChannels)
	assert.NotEqual(t, (&Loop{}).ID(), newLoop(t).ID())
}

func TestLoopClose(t *testing.T) {
	l, sensor := newLoopAndSensor(t)
	rng := rand.New(rand.NewSource(12))

	// the disturbance is an M2 rigid body motion seen by the sensor
	d := randomCommand(rng)
	slopes := signal.Tick(sensor, []signal.Data{signal.New(signal.M2RigidBodyMotions, d)}, signal.PseudoSensorData)
	l.Overwrite(slopes[0].Values)

	const gain = 0.5
	ctrl, err := control.NewIntegrator(gain, len(d), signal.M2RigidBodyMotions)
	require.NoError(t, err)

	want := append([]float64(nil), d...)
	require.NoError(t, l.Close(context.Background(), ctrl, 10, func(tick int, a, b []float64) error {
		assertClose(t, want, a)
		floats.Scale(1-gain, want)
		return nil
	}))
	// the integrated command cancels the disturbance
	floats.AddScaled(want, -1, d)
	assertClose(t, want, ctrl.Command())

	short, err := control.NewIntegrator(gain, 2, signal.M2RigidBodyMotions)
	require.NoError(t, err)
	assert.ErrorIs(t, l.Close(context.Background(), short, 1, nil), ErrChannels)
}

func TestLoopCloseStridedTipTilt(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	masks := SyntheticMasks(rng, 2, 20, 1)
	a, err := SyntheticReconstructor(rng, masks, calib.RXY(1e-6), 1)
	require.NoError(t, err)
	b, err := SyntheticReconstructor(rng, masks, calib.Modes(3, 1e-6), 1)
	require.NoError(t, err)
	m, err := merge.New(a, b)
	require.NoError(t, err)
	// 2 columns per segment read from chunks of 6 entries
	open, err := simulate.New(a)
	require.NoError(t, err)
	require.Equal(t, 12, open.CommandLen())
	l, err := NewLoop(open, m)
	require.NoError(t, err)

	ctrl, err := control.NewIntegrator(0.5, open.CommandLen(), signal.M2RigidBodyMotions)
	require.NoError(t, err)
	assert.ErrorIs(t, l.Close(context.Background(), ctrl, 3, nil), ErrChannels)
	assert.Zero(t, l.Ticks())
}
