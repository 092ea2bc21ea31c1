package mecanum

import (
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/actuator"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/input"
)

// Wheels binds the four drive motors.  The binding is fixed for the life of the drive.
type Wheels struct {
	FrontLeft  actuator.Handle
	FrontRight actuator.Handle
	BackLeft   actuator.Handle
	BackRight  actuator.Handle
}

func (w Wheels) ordered() [4]actuator.Handle {
	return [4]actuator.Handle{
		FrontLeft:  w.FrontLeft,
		FrontRight: w.FrontRight,
		BackLeft:   w.BackLeft,
		BackRight:  w.BackRight,
	}
}

var wheelNames = [4]string{"front-left", "front-right", "back-left", "back-right"}

// apply sends the powers to the wheels.  Zero is sent as an active zero-velocity spin rather than a
// stop so the drive never coasts while the loop is running.
func (w Wheels) apply(p Powers, log *zap.SugaredLogger) {
	motors := w.ordered()
	for i, m := range motors {
		if err := m.SetVelocity(float64(p[i])); err != nil {
			log.Debugw("Failed to set wheel velocity", "wheel", wheelNames[i], "error", err)
		}
	}
	for i, m := range motors {
		if err := m.Spin(actuator.Forward); err != nil {
			log.Debugw("Failed to spin wheel", "wheel", wheelNames[i], "error", err)
		}
	}
}

func (w Wheels) setBrakeMode(mode actuator.BrakeMode, log *zap.SugaredLogger) {
	for i, m := range w.ordered() {
		if err := m.SetBrakeMode(mode); err != nil {
			log.Warnw("Failed to set wheel brake mode", "wheel", wheelNames[i], "mode", mode, "error", err)
		}
	}
}

// Arcade drives the base from separate drive, strafe and twist axes.
type Arcade struct {
	drive, strafe, twist input.Axis
	wheels               Wheels
	opts                 Options
	log                  *zap.SugaredLogger

	last Powers
}

func NewArcade(drive, strafe, twist input.Axis, wheels Wheels, opts Options, log *zap.SugaredLogger) *Arcade {
	return &Arcade{
		drive:  drive,
		strafe: strafe,
		twist:  twist,
		wheels: wheels,
		opts:   opts,
		log:    log,
	}
}

func (a *Arcade) Name() string {
	return "arcade drive"
}

func (a *Arcade) Update() {
	a.last = Compute(a.drive(), a.strafe(), a.twist(), a.opts)
	a.wheels.apply(a.last, a.log)
}

// LastPowers returns the powers sent on the most recent Update.
func (a *Arcade) LastPowers() Powers {
	return a.last
}

// Tank drives the base from a left and right drive stick plus a strafe axis.
type Tank struct {
	left, right, strafe input.Axis
	halfSpeed           input.Button
	wheels              Wheels
	opts                Options
	log                 *zap.SugaredLogger

	last Powers
}

type TankOption func(*Tank)

// WithHalfSpeed halves all wheel powers while b is held.
func WithHalfSpeed(b input.Button) TankOption {
	return func(t *Tank) {
		t.halfSpeed = b
	}
}

func NewTank(left, right, strafe input.Axis, wheels Wheels, opts Options, log *zap.SugaredLogger, options ...TankOption) *Tank {
	t := &Tank{
		left:      left,
		right:     right,
		strafe:    strafe,
		halfSpeed: input.Never,
		wheels:    wheels,
		opts:      opts,
		log:       log,
	}
	for _, o := range options {
		o(t)
	}
	wheels.setBrakeMode(actuator.Coast, log)
	return t
}

func (t *Tank) Name() string {
	return "tank drive"
}

func (t *Tank) Update() {
	p := ComputeTank(t.left(), t.right(), t.strafe(), t.opts)
	if t.halfSpeed() {
		for i := range p {
			p[i] /= 2
		}
	}
	t.last = p
	t.wheels.apply(p, t.log)
}

func (t *Tank) LastPowers() Powers {
	return t.last
}
