package gmtns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rodrigo-romano/gmt-ns-im/control"
	"github.com/rodrigo-romano/gmt-ns-im/merge"
	"github.com/rodrigo-romano/gmt-ns-im/signal"
	"github.com/rodrigo-romano/gmt-ns-im/simulate"
	"github.com/rodrigo-romano/gmt-ns-im/telemetry"
	"go.uber.org/zap"
)

// ErrChannels is returned when the pseudo open-loop and the reconstructor
// don't share the same sensor.
var ErrChannels = errors.New("pseudo open-loop and reconstructor channel counts differ")

// Loop is the test harness of the reconstruction chain. One tick feeds a
// command to the pseudo open-loop, whose sensor data are fed to the merged
// reconstructor.
type Loop struct {
	id      uuid.UUID
	open    *simulate.PseudoOpenLoop
	recon   *merge.MergeReconstructor
	metrics *telemetry.Metrics
	log     *zap.Logger
	ticks   int
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithMetrics records the loop activity into m.
func WithMetrics(m *telemetry.Metrics) LoopOption {
	return func(l *Loop) { l.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) LoopOption {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoop chains open and recon.
func NewLoop(open *simulate.PseudoOpenLoop, recon *merge.MergeReconstructor, opts ...LoopOption) (*Loop, error) {
	if n, m := len(open.Slopes()), recon.Reconstructor().MaskLen(); n != m {
		return nil, fmt.Errorf("%w: %d and %d", ErrChannels, n, m)
	}
	l := &Loop{
		id:    uuid.New(),
		open:  open,
		recon: recon,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With(zap.Stringer("run", l.id))
	l.log.Info("loop ready", zap.Int("channels", len(open.Slopes())), zap.Int("commands", open.CommandLen()))
	return l, nil
}

// ID returns the run identifier.
func (l *Loop) ID() uuid.UUID { return l.id }

// Ticks returns the number of completed ticks.
func (l *Loop) Ticks() int { return l.ticks }

// Overwrite replaces the pseudo open-loop sensor data with data.
func (l *Loop) Overwrite(data []float64) {
	l.open.Read(signal.New(signal.SensorData, data))
}

// Step runs one tick with cmd and returns the A and B estimates. The
// estimates are valid until the next Step.
func (l *Loop) Step(cmd signal.Data) (a, b []float64) {
	t0 := time.Now()
	sensor := signal.Tick(l.open, []signal.Data{cmd}, signal.PseudoSensorData)
	l.metrics.ObserveUpdate("pseudo_open_loop", time.Since(t0))

	t0 = time.Now()
	out := signal.Tick(l.recon, sensor, signal.SplitEstimate(0), signal.SplitEstimate(1))
	l.metrics.ObserveUpdate("merge_reconstructor", time.Since(t0))

	a, b = out[0].Values, out[1].Values
	l.ticks++
	l.metrics.Tick()
	l.metrics.SetEstimate("a", a)
	l.metrics.SetEstimate("b", b)
	l.log.Debug("tick", zap.Int("tick", l.ticks), zap.Int("a", len(a)), zap.Int("b", len(b)))
	return a, b
}

// Run steps the loop n times, or until ctx is done. command returns the
// command of a tick and observe receives its estimates; an observe error
// stops the loop.
func (l *Loop) Run(ctx context.Context, n int,
	command func(tick int) signal.Data,
	observe func(tick int, a, b []float64) error,
) error {
	for tick := 0; tick < n; tick++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		a, b := l.Step(command(tick))
		if observe == nil {
			continue
		}
		if err := observe(tick, a, b); err != nil {
			return fmt.Errorf("tick #%d: %w", tick, err)
		}
	}
	l.log.Info("loop done", zap.Int("ticks", l.ticks))
	return nil
}

// Close runs n ticks with the A estimates fed back through ctrl, starting
// from a null command. The A estimate layout must match the command layout
// of the pseudo open-loop.
func (l *Loop) Close(ctx context.Context, ctrl *control.Integrator, n int,
	observe func(tick int, a, b []float64) error,
) error {
	if ctrl.Len() != l.open.CommandLen() {
		return fmt.Errorf("%w: %d controller entries for %d commands", ErrChannels, ctrl.Len(), l.open.CommandLen())
	}
	na := 0
	for index := 0; index < l.recon.Reconstructor().Len(); index++ {
		n, _ := l.recon.Sizes(index)
		na += n
	}
	if ctrl.Len() != na {
		return fmt.Errorf("%w: %d controller entries for %d A estimates", ErrChannels, ctrl.Len(), na)
	}
	cmd := signal.New(ctrl.Output(), make([]float64, ctrl.Len()))
	return l.Run(ctx, n,
		func(int) signal.Data { return cmd },
		func(tick int, a, b []float64) error {
			t0 := time.Now()
			cmd = signal.Tick(ctrl, []signal.Data{signal.New(signal.SplitEstimate(0), a)}, ctrl.Output())[0]
			l.metrics.ObserveUpdate("integrator", time.Since(t0))
			if observe == nil {
				return nil
			}
			return observe(tick, a, b)
		})
}
