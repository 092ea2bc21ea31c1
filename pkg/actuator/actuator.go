package actuator

import (
	"fmt"

	"github.com/pkg/errors"
)

type Direction uint8

const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

// Sign is +1 for Forward and -1 for Reverse.
func (d Direction) Sign() float64 {
	if d == Reverse {
		return -1
	}
	return 1
}

// BrakeMode controls what a motor does when it is told to stop.
type BrakeMode uint8

const (
	Coast BrakeMode = iota
	Brake
	Hold
)

func (b BrakeMode) String() string {
	switch b {
	case Coast:
		return "coast"
	case Brake:
		return "brake"
	case Hold:
		return "hold"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(b))
	}
}

type RotationUnit uint8

const (
	Rev RotationUnit = iota
	Deg
	Raw
)

// RawPerRev is the number of raw encoder counts in one output revolution.
const RawPerRev = 900

func (u RotationUnit) String() string {
	switch u {
	case Rev:
		return "rev"
	case Deg:
		return "deg"
	case Raw:
		return "raw"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(u))
	}
}

// ToRevs converts v, expressed in u, to revolutions.
func (u RotationUnit) ToRevs(v float64) float64 {
	switch u {
	case Deg:
		return v / 360
	case Raw:
		return v / RawPerRev
	default:
		return v
	}
}

// FromRevs converts revs to u.
func (u RotationUnit) FromRevs(revs float64) float64 {
	switch u {
	case Deg:
		return revs * 360
	case Raw:
		return revs * RawPerRev
	default:
		return revs
	}
}

// ParseRotationUnit parses the String() form of a RotationUnit.
func ParseRotationUnit(s string) (RotationUnit, error) {
	switch s {
	case "rev", "":
		return Rev, nil
	case "deg":
		return Deg, nil
	case "raw":
		return Raw, nil
	}
	return 0, errors.Errorf("unknown rotation unit %q", s)
}

var ErrUnsupported = errors.New("operation not supported by this actuator")

// Handle is one physical motor.  All commands are fire-and-forget: they return as soon as the command
// has been handed to the motor; any closed-loop tracking happens below this interface.
type Handle interface {
	// SetVelocity sets the target speed, in percent of maximum, used by the next Spin.
	SetVelocity(pct float64) error
	Spin(dir Direction) error
	Stop(mode BrakeMode) error
	// StartRotateTo starts a move to an absolute position and returns immediately.
	StartRotateTo(target float64, unit RotationUnit) error
	ResetPosition() error
	ResetRotation() error
	SetBrakeMode(mode BrakeMode) error
	Position(unit RotationUnit) (float64, error)
}
