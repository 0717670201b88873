package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gmtns "github.com/rodrigo-romano/gmt-ns-im"
	"github.com/rodrigo-romano/gmt-ns-im/control"
	"github.com/rodrigo-romano/gmt-ns-im/merge"
	"github.com/rodrigo-romano/gmt-ns-im/modal"
	"github.com/rodrigo-romano/gmt-ns-im/reconstruct"
	"github.com/rodrigo-romano/gmt-ns-im/signal"
	"github.com/rodrigo-romano/gmt-ns-im/simulate"
	"github.com/rodrigo-romano/gmt-ns-im/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// errResidual is returned when a reconstruction misses its tolerance.
var errResidual = errors.New("residual above tolerance")

type selftestOptions struct {
	ticks       int
	tolerance   float64
	metricsAddr string
}

func newSelftestCmd(a *app) *cobra.Command {
	o := &selftestOptions{}
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run the reconstruction chain on synthetic calibrations",
		Long: `Merges synthetic M2 rigid body motion and M1 bending mode calibrations,
drives the pseudo open-loop with random M2 commands and checks that the M2
estimates follow the accumulated commands while the M1 estimates stay null.
The M1 modal projection is checked on synthetic bending modes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelftest(cmd, a, o)
		},
	}
	cmd.Flags().IntVarP(&o.ticks, "ticks", "n", 100, "Number of loop ticks")
	cmd.Flags().Float64Var(&o.tolerance, "tolerance", 1e-6, "Largest relative residual")
	cmd.Flags().StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func runSelftest(cmd *cobra.Command, a *app, o *selftestOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.ticks < 1 {
		return fmt.Errorf("ticks must be positive, got %d", o.ticks)
	}
	sys, log := a.sys, a.logger

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)
	if o.metricsAddr != "" {
		srv := &http.Server{Addr: o.metricsAddr, Handler: telemetry.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdown)
		}()
		log.Info("serving metrics", zap.String("addr", o.metricsAddr))
	}

	src, err := syntheticSource(sys, a.seed)
	if err != nil {
		return err
	}
	mrg, err := merge.Load(ctx, src, m2RBM, m1Bending, sys.MergeOptions(log)...)
	if err != nil {
		return err
	}
	rbm, err := src.Load(ctx, m2RBM)
	if err != nil {
		return err
	}
	open, err := simulate.New(rbm, sys.SimulateOptions(log)...)
	if err != nil {
		return err
	}
	loop, err := gmtns.NewLoop(open, mrg, gmtns.WithMetrics(metrics), gmtns.WithLogger(log))
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(a.seed + 1))
	stride := sys.Reconstructor.CommandStride
	nCols := make([]int, rbm.Len())
	for index := range nCols {
		nCols[index] = rbm.Calib(index).NCols()
	}
	sum := make([]float64, rbm.NCols())
	command := func(int) signal.Data {
		cmd := make([]float64, open.CommandLen())
		for index := range cmd {
			cmd[index] = 1e-6 * rng.NormFloat64()
		}
		floats.Add(sum, packed(cmd, stride, nCols))
		return signal.New(signal.M2RigidBodyMotions, cmd)
	}
	var worst float64
	observe := func(tick int, ya, yb []float64) error {
		diff := make([]float64, len(sum))
		floats.SubTo(diff, ya, sum)
		residual := floats.Norm(diff, 2) / floats.Norm(sum, 2)
		metrics.SetResidual(residual)
		worst = max(worst, residual)
		if residual > o.tolerance {
			return fmt.Errorf("%w: M2 estimate residual %g", errResidual, residual)
		}
		if leak := floats.Norm(yb, 2) / floats.Norm(sum, 2); leak > o.tolerance {
			return fmt.Errorf("%w: M1 estimate leak %g", errResidual, leak)
		}
		return nil
	}
	if err := loop.Run(ctx, o.ticks, command, observe); err != nil {
		return err
	}

	modalResidual, err := modalSelftest(sys, a.seed+2, log)
	if err != nil {
		return err
	}
	if modalResidual > o.tolerance {
		return fmt.Errorf("%w: M1 modal projection residual %g", errResidual, modalResidual)
	}

	attenuation, err := closedLoopSelftest(ctx, sys, src, min(o.ticks, closedLoopTicks), a.seed+3, log)
	if err != nil {
		return err
	}
	gain := sys.AGWS.SH24.IntegratorGain
	if want := math.Pow(1-gain, float64(min(o.ticks, closedLoopTicks)-1)); math.Abs(attenuation-want) > o.tolerance*want {
		return fmt.Errorf("%w: closed loop attenuation %g, expected %g", errResidual, attenuation, want)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %v\n", loop.ID())
	fmt.Fprint(out, mrg)
	fmt.Fprintf(out, "ticks: %d, worst M2 residual: %.3e\n", loop.Ticks(), worst)
	fmt.Fprintf(out, "M1 modal projection residual: %.3e\n", modalResidual)
	fmt.Fprintf(out, "closed loop attenuation (gain %g): %.3e\n", gain, attenuation)
	return nil
}

// closedLoopTicks caps the closed loop stage so the residual disturbance
// stays well above the round-off level.
const closedLoopTicks = 20

// closedLoopSelftest closes the loop on a random M2 rigid body motion
// disturbance with the SH24 integrator and returns the ratio of the last M2
// estimate norm to the disturbance norm.
func closedLoopSelftest(ctx context.Context, sys gmtns.System, src *reconstruct.MemorySource, n int, seed int64, log *zap.Logger) (float64, error) {
	mrg, err := merge.Load(ctx, src, m2RBM, m1Bending, sys.MergeOptions(log)...)
	if err != nil {
		return 0, err
	}
	rbm, err := src.Load(ctx, m2RBM)
	if err != nil {
		return 0, err
	}
	// estimates are packed per segment
	open, err := simulate.New(rbm, simulate.WithStride(0), simulate.WithLogger(log))
	if err != nil {
		return 0, err
	}
	sensor, err := simulate.New(rbm, simulate.WithStride(0))
	if err != nil {
		return 0, err
	}
	loop, err := gmtns.NewLoop(open, mrg, gmtns.WithLogger(log))
	if err != nil {
		return 0, err
	}
	ctrl, err := control.NewIntegrator(sys.AGWS.SH24.IntegratorGain, open.CommandLen(), signal.M2RigidBodyMotions)
	if err != nil {
		return 0, err
	}

	rng := rand.New(rand.NewSource(seed))
	d := make([]float64, open.CommandLen())
	for index := range d {
		d[index] = 1e-6 * rng.NormFloat64()
	}
	slopes := signal.Tick(sensor, []signal.Data{signal.New(signal.M2RigidBodyMotions, d)}, signal.PseudoSensorData)
	loop.Overwrite(slopes[0].Values)

	var last float64
	err = loop.Close(ctx, ctrl, n, func(tick int, ya, yb []float64) error {
		last = floats.Norm(ya, 2)
		return nil
	})
	return last / floats.Norm(d, 2), err
}

// packed returns the command entries used by each segment, concatenated.
func packed(cmd []float64, stride int, nCols []int) []float64 {
	if stride == 0 {
		return cmd
	}
	res := make([]float64, 0, len(cmd))
	for index, n := range nCols {
		res = append(res, cmd[index*stride:index*stride+n]...)
	}
	return res
}

// modalSelftest projects random combinations of synthetic bending modes back
// onto the modes and returns the relative coefficient residual.
func modalSelftest(sys gmtns.System, seed int64, log *zap.Logger) (float64, error) {
	rng := rand.New(rand.NewSource(seed))
	bases := gmtns.SyntheticBases(rng, sys.Segments, sys.M1.NRawMode, sys.M1.NMode)
	proj, err := modal.New(bases, modal.WithOrthonormalityCheck(1e-9), modal.WithLogger(log))
	if err != nil {
		return 0, err
	}

	want := make([]float64, 0, sys.Segments*proj.Width())
	surfaces := make([]float64, 0, proj.SampleLen())
	for _, b := range bases {
		c := make([]float64, sys.M1.NMode)
		for index := range c {
			c[index] = rng.NormFloat64()
		}
		var s mat.VecDense
		s.MulVec(b, mat.NewVecDense(len(c), c))
		surfaces = append(surfaces, s.RawVector().Data...)
		want = append(want, c...)
		want = append(want, make([]float64, proj.Width()-len(c))...)
	}

	out := signal.Tick(proj, []signal.Data{signal.New(signal.M1ModeShapes, surfaces)}, signal.M1ModeCoefficients)
	diff := make([]float64, len(want))
	floats.SubTo(diff, out[0].Values, want)
	return floats.Norm(diff, 2) / floats.Norm(want, 2), nil
}
