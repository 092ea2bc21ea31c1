package hardware

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/actuator"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/mecanum"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/simmotor"
)

// DummyBatteryVolts is a fully charged 4-cell pack.
const DummyBatteryVolts = 16.8

// Dummy stands in for the robot with simulated motors, for running the controller on a desk.
type Dummy struct {
	Wheels                  [4]*simmotor.Motor
	LiftLeft, LiftRight     *simmotor.Motor
	RollerLeft, RollerRight *simmotor.Motor

	log *zap.SugaredLogger
}

var _ Interface = (*Dummy)(nil)

func NewDummy(clk clock.Clock, log *zap.SugaredLogger) *Dummy {
	d := &Dummy{
		LiftLeft:    simmotor.New("lift-left", clk),
		LiftRight:   simmotor.New("lift-right", clk),
		RollerLeft:  simmotor.New("roller-left", clk),
		RollerRight: simmotor.New("roller-right", clk),
		log:         log,
	}
	for i, name := range []string{"front-left", "front-right", "back-left", "back-right"} {
		d.Wheels[i] = simmotor.New(name, clk)
	}
	return d
}

func (d *Dummy) all() []*simmotor.Motor {
	return append(d.Wheels[:], d.LiftLeft, d.LiftRight, d.RollerLeft, d.RollerRight)
}

func (d *Dummy) Start(ctx context.Context) error {
	d.log.Infow("DHW: Start")
	return nil
}

func (d *Dummy) DriveWheels() mecanum.Wheels {
	return mecanum.Wheels{
		FrontLeft:  d.Wheels[mecanum.FrontLeft],
		FrontRight: d.Wheels[mecanum.FrontRight],
		BackLeft:   d.Wheels[mecanum.BackLeft],
		BackRight:  d.Wheels[mecanum.BackRight],
	}
}

func (d *Dummy) LiftMotors() (left, right actuator.Handle) {
	return d.LiftLeft, d.LiftRight
}

func (d *Dummy) RollerMotors() (left, right actuator.Handle) {
	return d.RollerLeft, d.RollerRight
}

func (d *Dummy) BatteryVolts() float32 {
	return DummyBatteryVolts
}

func (d *Dummy) Shutdown() error {
	d.log.Infow("DHW: Shutdown")
	var err error
	for _, m := range d.all() {
		err = multierr.Append(err, m.Stop(actuator.Coast))
	}
	return err
}
