package robot

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/config"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/input"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/lift"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/mecanum"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/roller"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/screen"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/subsystem"
)

// Controls are the operator inputs the robot reads.
type Controls struct {
	// Arcade drive.
	Drive, Strafe, Twist  input.Axis
	// Tank drive; Strafe is shared.  RightDrive reports stick-up as negative, like the raw pad.
	LeftDrive, RightDrive input.Axis
	HalfSpeed             input.Button

	LiftUp, LiftDown               input.Button
	Ground, LowerTower, UpperTower input.Button
	RollerIn, RollerOut            input.Button
}

// JoystickControls maps a DualShock-style pad:
//
//	left stick    drive (up/down) and strafe (left/right); left drive in tank mode
//	right stick   twist (left/right); right drive in tank mode
//	L1 / R1       lift up / down
//	circle        lift to ground
//	triangle      lift to lower tower
//	square        lift to upper tower
//	L2 / R2       roller in / out
//	L3            half speed (tank)
func JoystickControls(js *joystick.State) Controls {
	return Controls{
		Drive:      js.Axis(joystick.AxisLStickY, true),
		Strafe:     js.Axis(joystick.AxisLStickX, false),
		Twist:      js.Axis(joystick.AxisRStickX, false),
		LeftDrive:  js.Axis(joystick.AxisLStickY, true),
		RightDrive: js.Axis(joystick.AxisRStickY, false),
		HalfSpeed:  js.Button(joystick.ButtonLStick),
		LiftUp:     js.Button(joystick.ButtonL1),
		LiftDown:   js.Button(joystick.ButtonR1),
		Ground:     js.Button(joystick.ButtonCircle),
		LowerTower: js.Button(joystick.ButtonTriangle),
		UpperTower: js.Button(joystick.ButtonSquare),
		RollerIn:   js.Button(joystick.ButtonL2),
		RollerOut:  js.Button(joystick.ButtonR2),
	}
}

// Robot holds everything one controller run needs.  There is no package-level state, so several robots
// can coexist, for example in tests.
type Robot struct {
	scheduler *subsystem.Scheduler
	log       *zap.SugaredLogger

	Drive  subsystem.Subsystem
	Lift   *lift.Lift
	Roller *roller.Intake // nil unless enabled
	status *statusTracker
}

type Option func(*Robot)

// WithAnnouncer plays the configured sounds when a lift preset is selected.
func WithAnnouncer(a Announcer) Option {
	return func(r *Robot) {
		r.status.speaker = a
	}
}

// New builds the subsystems described by cfg on top of hw.  cfg must have been validated.
func New(
	cfg config.Config,
	hw hardware.Interface,
	controls Controls,
	clk clock.Clock,
	log *zap.SugaredLogger,
	opts ...Option,
) *Robot {
	r := &Robot{
		scheduler: subsystem.New(cfg.TickPeriod(), clk, log.Named("scheduler")),
		log:       log,
	}

	driveLog := log.Named("drive")
	wheels := hw.DriveWheels()
	switch cfg.Drive.Mode {
	case config.DriveModeTank:
		var tankOpts []mecanum.TankOption
		if cfg.Drive.HalfSpeed {
			tankOpts = append(tankOpts, mecanum.WithHalfSpeed(controls.HalfSpeed))
		}
		r.Drive = mecanum.NewTank(controls.LeftDrive, controls.RightDrive, controls.Strafe, wheels,
			cfg.DriveOptions(), driveLog, tankOpts...)
	default:
		r.Drive = mecanum.NewArcade(controls.Drive, controls.Strafe, controls.Twist, wheels,
			cfg.DriveOptions(), driveLog)
	}
	r.scheduler.Register(r.Drive)

	liftLeft, liftRight := hw.LiftMotors()
	r.Lift = lift.NewWithPresets(
		input.ButtonAxis(controls.LiftUp, controls.LiftDown, cfg.BumperPower),
		controls.Ground, controls.LowerTower, controls.UpperTower,
		liftLeft, liftRight,
		cfg.LiftOptions(),
		log.Named("lift"),
	)
	r.scheduler.Register(r.Lift)

	if cfg.Roller.Enabled {
		rollerLeft, rollerRight := hw.RollerMotors()
		r.Roller = roller.New(controls.RollerIn, controls.RollerOut, rollerLeft, rollerRight, cfg.Roller.Power,
			log.Named("roller"))
		r.scheduler.Register(r.Roller)
	}

	r.status = &statusTracker{
		drive:    cfg.Drive.Mode,
		lift:     r.Lift,
		battery:  hw.BatteryVolts,
		sounds:   cfg.Sound,
		lastLift: r.Lift.State(),
	}
	for _, o := range opts {
		o(r)
	}
	r.scheduler.AfterTick(r.status.sample)

	log.Infow("Robot built", "drive", cfg.Drive.Mode, "roller", cfg.Roller.Enabled, "tick", cfg.TickPeriod())
	return r
}

func (r *Robot) Scheduler() *subsystem.Scheduler {
	return r.scheduler
}

// Status is the state as of the last tick.  It is safe to call from any goroutine.
func (r *Robot) Status() screen.Status {
	return r.status.Status()
}

// Run updates every subsystem once per tick until ctx is done.
func (r *Robot) Run(ctx context.Context) error {
	return r.scheduler.Run(ctx)
}
