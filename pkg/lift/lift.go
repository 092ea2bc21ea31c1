package lift

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/actuator"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/input"
)

type State uint8

// The zero value is Manual, so a Lift is never in an uninitialised state.
const (
	Manual State = iota
	Ground
	LowerTower
	UpperTower
)

func (s State) String() string {
	switch s {
	case Manual:
		return "manual"
	case Ground:
		return "ground"
	case LowerTower:
		return "lower-tower"
	case UpperTower:
		return "upper-tower"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

const (
	DefaultDeadband   = 5
	DefaultFloor      = 0
	DefaultLowerTower = 300
	DefaultUpperTower = 700
	DefaultMaxHeight  = 1000
)

// Config holds the lift tuning.  All heights, including the manual clamp limits Floor and MaxHeight, are
// in Unit and measured from the encoder zero taken at construction, which must be the lift's physical
// floor.  Set Unit to Raw to express every height in encoder counts.
type Config struct {
	Deadband   int32
	Floor      float64
	LowerTower float64
	UpperTower float64
	MaxHeight  float64
	Unit       actuator.RotationUnit

	// ClampManual stops the motors in manual mode when they are being driven further out of
	// [Floor, MaxHeight].  Driving back toward the range is always allowed.
	ClampManual bool
}

func DefaultConfig() Config {
	return Config{
		Deadband:    DefaultDeadband,
		Floor:       DefaultFloor,
		LowerTower:  DefaultLowerTower,
		UpperTower:  DefaultUpperTower,
		MaxHeight:   DefaultMaxHeight,
		Unit:        actuator.Rev,
		ClampManual: true,
	}
}

// Lift is the state machine for a two-motor reverse double four-bar lift.  Manual stick input always
// wins over the preset buttons, so touching the stick cancels any automatic move.  A preset stays
// active after its button is released until another input selects a different state.
type Lift struct {
	manual     input.Axis
	ground     input.Button
	lowerTower input.Button
	upperTower input.Button
	left       actuator.Handle
	right      actuator.Handle
	cfg        Config
	log        *zap.SugaredLogger

	state State
}

// New creates a manual-only lift; the preset states can never be selected.
func New(manual input.Axis, left, right actuator.Handle, cfg Config, log *zap.SugaredLogger) *Lift {
	return NewWithPresets(manual, input.Never, input.Never, input.Never, left, right, cfg, log)
}

// NewWithPresets creates a lift with buttons for the three held positions.
func NewWithPresets(
	manual input.Axis,
	ground, lowerTower, upperTower input.Button,
	left, right actuator.Handle,
	cfg Config,
	log *zap.SugaredLogger,
) *Lift {
	l := &Lift{
		manual:     manual,
		ground:     ground,
		lowerTower: lowerTower,
		upperTower: upperTower,
		left:       left,
		right:      right,
		cfg:        cfg,
		log:        log,
		state:      Manual,
	}
	for _, m := range l.motors() {
		// Whatever position the lift boots in becomes zero.
		if err := m.ResetRotation(); err != nil {
			log.Warnw("Failed to reset lift rotation", "error", err)
		}
		if err := m.ResetPosition(); err != nil {
			log.Warnw("Failed to reset lift position", "error", err)
		}
		if err := m.SetBrakeMode(actuator.Brake); err != nil {
			log.Warnw("Failed to set lift brake mode", "error", err)
		}
	}
	return l
}

func (l *Lift) motors() [2]actuator.Handle {
	return [2]actuator.Handle{l.left, l.right}
}

func (l *Lift) Name() string {
	return "lift"
}

func (l *Lift) State() State {
	return l.state
}

// Update must be called once per tick.
func (l *Lift) Update() {
	manual := input.Saturate(l.manual(), input.FullScale)

	next := l.state
	switch {
	case input.Abs(manual) > l.cfg.Deadband:
		next = Manual
	case l.ground():
		next = Ground
	case l.lowerTower():
		next = LowerTower
	case l.upperTower():
		next = UpperTower
	}
	if next != l.state {
		l.log.Infow("Lift state change", "from", l.state, "to", next)
		l.state = next
	}

	switch l.state {
	case Manual:
		l.runManual(manual)
	case Ground:
		l.holdAt(l.cfg.Floor)
	case LowerTower:
		l.holdAt(l.cfg.LowerTower)
	case UpperTower:
		l.holdAt(l.cfg.UpperTower)
	}
}

func (l *Lift) runManual(manual int32) {
	if l.cfg.ClampManual && l.outOfRange(manual) {
		for _, m := range l.motors() {
			if err := m.Stop(actuator.Brake); err != nil {
				l.log.Debugw("Failed to stop lift motor", "error", err)
			}
		}
		return
	}

	// The two sides are mirror images, so they turn in opposite directions.
	if err := l.left.SetVelocity(float64(manual)); err != nil {
		l.log.Debugw("Failed to set lift velocity", "side", "left", "error", err)
	}
	if err := l.right.SetVelocity(float64(-manual)); err != nil {
		l.log.Debugw("Failed to set lift velocity", "side", "right", "error", err)
	}
	for _, m := range l.motors() {
		if err := m.Spin(actuator.Forward); err != nil {
			l.log.Debugw("Failed to spin lift motor", "error", err)
		}
	}
}

// outOfRange reports whether manual input would push the lift further past its limits.  If the
// position can't be read we let the operator drive.
func (l *Lift) outOfRange(manual int32) bool {
	pos, err := l.left.Position(l.cfg.Unit)
	if err != nil {
		l.log.Debugw("Failed to read lift position", "error", err)
		return false
	}
	if pos >= l.cfg.MaxHeight && manual > 0 {
		return true
	}
	if pos <= l.cfg.Floor && manual < 0 {
		return true
	}
	return false
}

// holdAt reissues the move every tick; the motor's own position loop does the tracking.
func (l *Lift) holdAt(target float64) {
	for _, m := range l.motors() {
		if err := m.StartRotateTo(target, l.cfg.Unit); err != nil {
			l.log.Debugw("Failed to command lift position", "target", target, "error", err)
		}
	}
}
