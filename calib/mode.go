package calib

import (
	"fmt"
	"strings"
)

// Axis is one of the six rigid-body degrees of freedom of a segment.
type Axis int

const (
	Tx Axis = iota
	Ty
	Tz
	Rx
	Ry
	Rz
)

// AllAxes lists the rigid-body axes in command order.
var AllAxes = []Axis{Tx, Ty, Tz, Rx, Ry, Rz}

func (a Axis) String() string {
	switch a {
	case Tx:
		return "Tx"
	case Ty:
		return "Ty"
	case Tz:
		return "Tz"
	case Rx:
		return "Rx"
	case Ry:
		return "Ry"
	case Rz:
		return "Rz"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// Mode describes what the columns of a poke matrix stand for.
type Mode interface {
	fmt.Stringer
	// Dof returns the number of command degrees of freedom, -1 if unknown.
	Dof() int
}

// RigidBodyMotion is a calibration of a subset of the rigid-body axes, each
// poked with the same stroke.
type RigidBodyMotion struct {
	Stroke float64
	Axes   []Axis
}

// RBM returns a rigid-body motion mode over axes, or over all six axes when
// none are given.
func RBM(stroke float64, axes ...Axis) RigidBodyMotion {
	if len(axes) == 0 {
		axes = AllAxes
	}
	return RigidBodyMotion{Stroke: stroke, Axes: append([]Axis(nil), axes...)}
}

// RXY returns the tip-tilt (Rx, Ry) mode.
func RXY(stroke float64) RigidBodyMotion {
	return RBM(stroke, Rx, Ry)
}

func (m RigidBodyMotion) Dof() int { return len(m.Axes) }

func (m RigidBodyMotion) String() string {
	axes := make([]string, len(m.Axes))
	for index, a := range m.Axes {
		axes[index] = a.String()
	}
	return fmt.Sprintf("RBM[%s]@%g", strings.Join(axes, ","), m.Stroke)
}

// Modal is a calibration of the first N modes of a modal basis.
type Modal struct {
	N      int
	Stroke float64
}

// Modes returns a modal calibration mode.
func Modes(n int, stroke float64) Modal {
	return Modal{N: n, Stroke: stroke}
}

func (m Modal) Dof() int { return m.N }

func (m Modal) String() string { return fmt.Sprintf("Modes(%d)@%g", m.N, m.Stroke) }

// Unlabeled is used when the columns carry no physical label.
type Unlabeled struct{}

func (Unlabeled) Dof() int { return -1 }

func (Unlabeled) String() string { return "None" }

// Pair labels the columns of a merged calibration: A's columns first, then B's.
type Pair struct {
	A, B Mode
}

func (p Pair) Dof() int {
	a, b := p.A.Dof(), p.B.Dof()
	if a < 0 || b < 0 {
		return -1
	}
	return a + b
}

func (p Pair) String() string { return fmt.Sprintf("(%v, %v)", p.A, p.B) }
