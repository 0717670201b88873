// Package signal names the data exchanged between the control-loop components
// and holds the read, update and write contract they all implement.
//
// Every tick the scheduler calls Read with the inputs of a component, then
// Update, then Write for each output it needs.
package signal

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Kind groups channels by the physical quantity they carry.
type Kind int

const (
	// Measurement is a wavefront sensor measurement vector (slopes).
	Measurement Kind = iota
	// Command is a mirror command vector.
	Command
	// Surface is a vector of sampled mirror surface displacements.
	Surface
	// Coefficients is a vector of modal coefficients.
	Coefficients
	// Estimate is a command estimate computed by a reconstructor.
	Estimate
)

func (k Kind) String() string {
	switch k {
	case Measurement:
		return "measurement"
	case Command:
		return "command"
	case Surface:
		return "surface"
	case Coefficients:
		return "coefficients"
	case Estimate:
		return "estimate"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// UID identifies a data channel.
type UID int

const (
	SensorData UID = iota
	PseudoSensorData
	M1RigidBodyMotions
	M2RigidBodyMotions
	M1Modes
	M1ModeShapes
	M1ModeCoefficients
	splitEstimate0
	splitEstimate1
)

var names = map[UID]string{
	SensorData:         "SensorData",
	PseudoSensorData:   "PseudoSensorData",
	M1RigidBodyMotions: "M1RigidBodyMotions",
	M2RigidBodyMotions: "M2RigidBodyMotions",
	M1Modes:            "M1Modes",
	M1ModeShapes:       "M1ModeShapes",
	M1ModeCoefficients: "M1ModeCoefficients",
	splitEstimate0:     "SplitEstimate<0>",
	splitEstimate1:     "SplitEstimate<1>",
}

func (u UID) String() string {
	if name, ok := names[u]; ok {
		return name
	}
	return fmt.Sprintf("UID(%d)", int(u))
}

// Kind returns the physical quantity carried by the channel.
func (u UID) Kind() Kind {
	switch u {
	case SensorData, PseudoSensorData:
		return Measurement
	case M1RigidBodyMotions, M2RigidBodyMotions, M1Modes:
		return Command
	case M1ModeShapes:
		return Surface
	case M1ModeCoefficients:
		return Coefficients
	case splitEstimate0, splitEstimate1:
		return Estimate
	}
	panic(fmt.Sprintf("unknown channel %v", u))
}

// SplitEstimate returns the channel of the i-th part of a merged estimate.
// Only 0 and 1 exist.
func SplitEstimate(i int) UID {
	switch i {
	case 0:
		return splitEstimate0
	case 1:
		return splitEstimate1
	}
	panic(fmt.Sprintf("found SplitEstimate #%d, expected 0 or 1", i))
}

// SplitIndex returns the index of a split estimate channel.
func (u UID) SplitIndex() (int, bool) {
	switch u {
	case splitEstimate0:
		return 0, true
	case splitEstimate1:
		return 1, true
	}
	return 0, false
}

// Data is a vector tagged with the channel it belongs to.
//
// Values is shared: a Data returned by Write stays valid until the next Update
// of the component that produced it and must not be modified.
type Data struct {
	UID    UID
	Values []float64
}

// New returns the Data of channel uid holding values.
func New(uid UID, values []float64) Data {
	return Data{UID: uid, Values: values}
}

// Len returns the number of entries.
func (d Data) Len() int {
	return len(d.Values)
}

// Vec returns a vector view of the values, nil when empty.
func (d Data) Vec() *mat.VecDense {
	if len(d.Values) == 0 {
		return nil
	}
	return mat.NewVecDense(len(d.Values), d.Values)
}

// Reader consumes the data of one channel.
type Reader interface {
	Read(data Data)
}

// Updater recomputes the outputs of a component from its latest inputs.
type Updater interface {
	Update()
}

// Writer produces the data of one channel.
type Writer interface {
	Write(uid UID) Data
}

// Component is a control-loop element.
type Component interface {
	Reader
	Updater
	Writer
}

// Unsupported panics with the message used when a component is handed a
// channel it does not handle.
func Unsupported(component string, uid UID) {
	panic(fmt.Sprintf("%s doesn't handle channel %v", component, uid))
}

// Tick runs one read, update, write cycle of c and returns the requested outputs.
func Tick(c Component, inputs []Data, outputs ...UID) []Data {
	for _, in := range inputs {
		c.Read(in)
	}
	c.Update()
	res := make([]Data, len(outputs))
	for index, uid := range outputs {
		res[index] = c.Write(uid)
	}
	return res
}
