// Package gmtns chains the segment-wise wavefront reconstruction components
// of the GMT natural seeing control loop: pseudo open-loop sensor data,
// merged reconstructors and modal projections.
package gmtns

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rodrigo-romano/gmt-ns-im/calib"
	"github.com/rodrigo-romano/gmt-ns-im/merge"
	"github.com/rodrigo-romano/gmt-ns-im/simulate"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrConfig is returned when a System fails validation.
var ErrConfig = errors.New("invalid system configuration")

// System contains all relevant system parameters of the control loop.
type System struct {
	// Number of mirror segments
	Segments int `yaml:"segments"`
	// Number of rigid body motions per segment
	RigidBodyMotions int `yaml:"rigid_body_motions"`
	// Sampling frequency of the loop [Hz]
	SamplingFrequency float64 `yaml:"sampling_frequency"`

	M1            M1            `yaml:"m1"`
	AGWS          AGWS          `yaml:"agws"`
	FSM           FSM           `yaml:"fsm"`
	Reconstructor Reconstructor `yaml:"reconstructor"`
}

// M1 holds the primary mirror bending mode parameters.
type M1 struct {
	// Number of bending modes per segment used by the loop
	NMode int `yaml:"n_mode"`
	// Number of raw bending modes per segment
	NRawMode int `yaml:"n_raw_mode"`
	// Bending modes artifact
	Modes string `yaml:"modes"`
	// Actuators update rate, as a divider of the sampling frequency
	ActuatorRate int `yaml:"actuator_rate"`
}

// AGWS holds the acquisition, guiding and wavefront sensing parameters.
type AGWS struct {
	SH24 Sensor `yaml:"sh24"`
	SH48 Sensor `yaml:"sh48"`
}

// Sensor is a Shack-Hartmann wavefront sensor.
type Sensor struct {
	// Sensor update rate, as a divider of the sampling frequency
	Rate int `yaml:"rate"`
	// Gain of the integral controller closing the sensor loop
	IntegratorGain float64 `yaml:"integrator_gain"`
}

// FSM holds the fast steering mirror parameters.
type FSM struct {
	OffloadIntegratorGain float64 `yaml:"offload_integrator_gain"`
}

// Reconstructor holds the pseudo-inverse and pseudo open-loop settings.
type Reconstructor struct {
	// Relative singular value tolerance, default when <= 0
	Rcond float64 `yaml:"rcond"`
	// Per segment truncation of the pseudo-inverses, none when empty
	Ranks []int `yaml:"ranks,omitempty"`
	// Per segment command chunk length, 0 for packed commands
	CommandStride int `yaml:"command_stride"`
}

// DefaultSystem returns the GMT natural seeing configuration.
func DefaultSystem() System {
	return System{
		Segments:          7,
		RigidBodyMotions:  len(calib.AllAxes),
		SamplingFrequency: 1000,
		M1: M1{
			NMode:        27,
			NRawMode:     335,
			Modes:        "20230530_1756_m1_bending_modes",
			ActuatorRate: 10,
		},
		AGWS: AGWS{
			SH24: Sensor{Rate: 5, IntegratorGain: 0.2},
			SH48: Sensor{Rate: 50, IntegratorGain: 0.5},
		},
		FSM: FSM{OffloadIntegratorGain: 1e-3},
		Reconstructor: Reconstructor{
			CommandStride: simulate.DefaultStride,
		},
	}
}

// LoadSystem reads a YAML configuration from path. Missing fields keep their
// DefaultSystem values, unknown fields are an error.
func LoadSystem(path string) (System, error) {
	sys := DefaultSystem()
	buf, err := os.ReadFile(path)
	if err != nil {
		return sys, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	// an empty document is io.EOF
	if err := dec.Decode(&sys); err != nil && !errors.Is(err, io.EOF) {
		return sys, fmt.Errorf("%s: %w", path, err)
	}
	return sys, sys.Validate()
}

// Validate checks the consistency of the configuration.
func (s System) Validate() error {
	switch {
	case s.Segments <= 0:
		return fmt.Errorf("%w: %d segments", ErrConfig, s.Segments)
	case s.RigidBodyMotions <= 0 || s.RigidBodyMotions > len(calib.AllAxes):
		return fmt.Errorf("%w: %d rigid body motions", ErrConfig, s.RigidBodyMotions)
	case s.SamplingFrequency <= 0:
		return fmt.Errorf("%w: sampling frequency %g", ErrConfig, s.SamplingFrequency)
	case s.M1.NMode <= 0 || s.M1.NMode > s.M1.NRawMode:
		return fmt.Errorf("%w: %d of %d bending modes", ErrConfig, s.M1.NMode, s.M1.NRawMode)
	case s.M1.ActuatorRate <= 0 || s.AGWS.SH24.Rate <= 0 || s.AGWS.SH48.Rate <= 0:
		return fmt.Errorf("%w: rates must be positive", ErrConfig)
	case s.Reconstructor.CommandStride < 0:
		return fmt.Errorf("%w: command stride %d", ErrConfig, s.Reconstructor.CommandStride)
	}
	if ranks := s.Reconstructor.Ranks; len(ranks) > 0 && len(ranks) != s.Segments {
		return fmt.Errorf("%w: %d ranks for %d segments", ErrConfig, len(ranks), s.Segments)
	}
	return nil
}

// YAML returns the configuration as a YAML document.
func (s System) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// MergeOptions returns the merge options of the configuration.
func (s System) MergeOptions(log *zap.Logger) []merge.Option {
	opts := []merge.Option{merge.WithRcond(s.Reconstructor.Rcond), merge.WithLogger(log)}
	if len(s.Reconstructor.Ranks) > 0 {
		opts = append(opts, merge.WithRanks(s.Reconstructor.Ranks))
	}
	return opts
}

// SimulateOptions returns the pseudo open-loop options of the configuration.
func (s System) SimulateOptions(log *zap.Logger) []simulate.Option {
	return []simulate.Option{simulate.WithStride(s.Reconstructor.CommandStride), simulate.WithLogger(log)}
}
