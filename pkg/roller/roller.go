package roller

import (
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/actuator"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/input"
)

const DefaultPower = 75

// Intake is a pair of counter-rotating rollers.  Holding "in" pulls game pieces in, holding "out"
// ejects them; holding both, or neither, stops the rollers.
type Intake struct {
	in, out     input.Button
	left, right actuator.Handle
	power       int32
	log         *zap.SugaredLogger
}

func New(in, out input.Button, left, right actuator.Handle, power int32, log *zap.SugaredLogger) *Intake {
	for _, m := range []actuator.Handle{left, right} {
		if err := m.SetBrakeMode(actuator.Hold); err != nil {
			log.Warnw("Failed to set roller brake mode", "error", err)
		}
	}
	return &Intake{
		in:    in,
		out:   out,
		left:  left,
		right: right,
		power: power,
		log:   log,
	}
}

func (r *Intake) Name() string {
	return "roller intake"
}

// Powers returns the left and right roller powers for the given button states.
func Powers(in, out bool, power int32) (left, right int32) {
	switch {
	case in == out:
		return 0, 0
	case out:
		return -power, power
	default:
		return power, -power
	}
}

func (r *Intake) Update() {
	left, right := Powers(r.in(), r.out(), r.power)

	if err := r.right.SetVelocity(float64(right)); err != nil {
		r.log.Debugw("Failed to set roller velocity", "side", "right", "error", err)
	}
	if err := r.left.SetVelocity(float64(left)); err != nil {
		r.log.Debugw("Failed to set roller velocity", "side", "left", "error", err)
	}
	for _, m := range []actuator.Handle{r.right, r.left} {
		if err := m.Spin(actuator.Forward); err != nil {
			r.log.Debugw("Failed to spin roller", "error", err)
		}
	}
}
