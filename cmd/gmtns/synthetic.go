package main

import (
	"fmt"
	"math/rand"

	gmtns "github.com/rodrigo-romano/gmt-ns-im"
	"github.com/rodrigo-romano/gmt-ns-im/calib"
	"github.com/rodrigo-romano/gmt-ns-im/reconstruct"
)

// Artifact names of the synthetic calibrations.
const (
	m2RBM     = "m2_rbm"
	m1Bending = "m1_bending_modes"
)

// channelsPerSegment is the number of sensor channels facing one segment.
const channelsPerSegment = 64

// syntheticSource stores the M2 rigid body motion and M1 bending mode
// calibrations of sys, both seen by the same sensor channels.
func syntheticSource(sys gmtns.System, seed int64) (*reconstruct.MemorySource, error) {
	rng := rand.New(rand.NewSource(seed))
	masks := gmtns.SyntheticMasks(rng, sys.Segments, channelsPerSegment, 0.9)

	rbm, err := gmtns.SyntheticReconstructor(rng, masks, calib.RBM(1e-6, calib.AllAxes[:sys.RigidBodyMotions]...), 1e2)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m2RBM, err)
	}
	bm, err := gmtns.SyntheticReconstructor(rng, masks, calib.Modes(sys.M1.NMode, 1e-6), 1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m1Bending, err)
	}

	src := reconstruct.NewMemorySource()
	src.Store(m2RBM, rbm)
	src.Store(m1Bending, bm)
	return src, nil
}
