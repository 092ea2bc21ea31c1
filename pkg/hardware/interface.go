package hardware

import (
	"context"
	"time"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/actuator"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/mecanum"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/picobldc"
)

type Interface interface {
	// Start brings up the buses and background loops.  They run until ctx is done.
	Start(ctx context.Context) error

	DriveWheels() mecanum.Wheels
	LiftMotors() (left, right actuator.Handle)
	RollerMotors() (left, right actuator.Handle)

	// BatteryVolts is the last battery reading, or 0 before the first one.
	BatteryVolts() float32

	// Shutdown neutralises every motor and waits for the background loops.  Call it after cancelling
	// the context passed to Start.
	Shutdown() error
}

// WheelDriver is the drive-base motor controller board.
type WheelDriver interface {
	SetWatchdog(timeout time.Duration) error
	SetMotorSpeeds(speeds [picobldc.NumMotors]int16) error
	BattVolts() (float32, error)
	Close() error
}

// PWMDriver is the servo board the ESCs hang off.
type PWMDriver interface {
	Configure() error
	SetServo(port int, value float64) error
	Close() error
}
