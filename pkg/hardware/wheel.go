package hardware

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/actuator"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/picobldc"
)

// wheel is one drive motor on the Pico-BLDC.  The board runs its motors in velocity mode with no
// position feedback exposed, so position commands are unsupported.
type wheel struct {
	ctrl   *I2CController
	motor  picobldc.Motor
	maxRaw int16

	lock        sync.Mutex
	velocityPct float64
	spinSign    float64
	spinning    bool
	brake       actuator.BrakeMode
}

var _ actuator.Handle = (*wheel)(nil)

func newWheel(ctrl *I2CController, motor picobldc.Motor, maxRaw int16) *wheel {
	return &wheel{
		ctrl:   ctrl,
		motor:  motor,
		maxRaw: maxRaw,
	}
}

// rawSpeed scales a signed percentage to the board's speed units.
func rawSpeed(pct float64, maxRaw int16) int16 {
	pct = math.Max(-100, math.Min(100, pct))
	return int16(math.Round(pct / 100 * float64(maxRaw)))
}

// Caller must hold the lock.
func (w *wheel) push() {
	var raw int16
	if w.spinning {
		raw = rawSpeed(w.spinSign*w.velocityPct, w.maxRaw)
	}
	w.ctrl.SetWheelSpeed(w.motor, raw)
}

func (w *wheel) SetVelocity(pct float64) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.velocityPct = pct
	w.push()
	return nil
}

func (w *wheel) Spin(dir actuator.Direction) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.spinning = true
	w.spinSign = dir.Sign()
	w.push()
	return nil
}

func (w *wheel) Stop(mode actuator.BrakeMode) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.spinning = false
	w.push()
	return nil
}

func (w *wheel) StartRotateTo(target float64, unit actuator.RotationUnit) error {
	return errors.Wrapf(actuator.ErrUnsupported, "%v wheel: position move", w.motor)
}

func (w *wheel) ResetPosition() error {
	return errors.Wrapf(actuator.ErrUnsupported, "%v wheel: position reset", w.motor)
}

func (w *wheel) ResetRotation() error {
	return errors.Wrapf(actuator.ErrUnsupported, "%v wheel: rotation reset", w.motor)
}

// SetBrakeMode is recorded only; the board always actively brakes to zero velocity.
func (w *wheel) SetBrakeMode(mode actuator.BrakeMode) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.brake = mode
	return nil
}

func (w *wheel) Position(unit actuator.RotationUnit) (float64, error) {
	return 0, errors.Wrapf(actuator.ErrUnsupported, "%v wheel: position", w.motor)
}
