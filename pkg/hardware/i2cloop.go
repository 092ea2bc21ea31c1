package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/pca9685"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/picobldc"
)

const (
	DefaultI2CPeriod = 10 * time.Millisecond

	// The board stops the wheels if the loop stalls for this long.
	wheelWatchdog = 250 * time.Millisecond

	batteryLogInterval = 10 * time.Second
	recoveryDelay      = 100 * time.Millisecond

	neutralServo = 0.5
)

// I2CController owns the I2C bus.  Motor handles record the outputs they want and the loop pushes
// them to the boards, so callers never block on the bus.
type I2CController struct {
	openWheels func() (WheelDriver, error)
	openPWM    func() (PWMDriver, error)
	period     time.Duration
	clock      clock.Clock
	log        *zap.SugaredLogger

	lock sync.Mutex

	// Desired values.  Stored off in case we need to re-initialise the hardware.
	wheels            [picobldc.NumMotors]int16
	servoPositions    [pca9685.NumPorts]float64
	servosInUse       map[int]bool
	servosWithUpdates map[int]bool

	battery  float32
	failures int
}

func NewI2CController(
	openWheels func() (WheelDriver, error),
	openPWM func() (PWMDriver, error),
	period time.Duration,
	clk clock.Clock,
	log *zap.SugaredLogger,
) *I2CController {
	c := &I2CController{
		openWheels:        openWheels,
		openPWM:           openPWM,
		period:            period,
		clock:             clk,
		log:               log,
		servosInUse:       map[int]bool{},
		servosWithUpdates: map[int]bool{},
	}
	for i := range c.servoPositions {
		c.servoPositions[i] = neutralServo
	}
	return c
}

func (c *I2CController) SetWheelSpeed(m picobldc.Motor, raw int16) {
	c.lock.Lock()
	c.wheels[m] = raw
	c.lock.Unlock()
}

func (c *I2CController) WheelSpeeds() [picobldc.NumMotors]int16 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.wheels
}

// SetServo records a servo value; it is written on the next loop iteration.  Implements
// escmotor.PWM.
func (c *I2CController) SetServo(n int, value float64) error {
	if n < 0 || n >= pca9685.NumPorts {
		return pca9685.ErrBadPort
	}
	c.lock.Lock()
	c.servoPositions[n] = value
	c.servosInUse[n] = true
	c.servosWithUpdates[n] = true
	c.lock.Unlock()
	return nil
}

func (c *I2CController) Servo(n int) float64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.servoPositions[n]
}

// Neutralise zeroes every desired output.
func (c *I2CController) Neutralise() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.wheels = [picobldc.NumMotors]int16{}
	for n := range c.servosInUse {
		c.servoPositions[n] = neutralServo
		c.servosWithUpdates[n] = true
	}
}

// BatteryVolts returns the most recent battery reading, or 0 before the first one.
func (c *I2CController) BatteryVolts() float32 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.battery
}

// Failures returns how many times the loop has had to re-initialise the bus.
func (c *I2CController) Failures() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.failures
}

// Loop drives the bus until ctx is done, re-initialising after any failure.  initDone is released once
// the first initialisation attempt has finished; firstErr receives its result.
func (c *I2CController) Loop(ctx context.Context, initDone *sync.WaitGroup, firstErr *error) {
	c.log.Infow("I2C loop started")
	for {
		c.loopUntilSomethingBadHappens(ctx, initDone, firstErr)
		if ctx.Err() != nil {
			c.log.Infow("I2C loop stopped")
			return
		}
		c.lock.Lock()
		c.failures++
		c.lock.Unlock()
		c.log.Warnw("I2C failure; trying to recover")
		initDone = nil
		firstErr = nil
		select {
		case <-ctx.Done():
		case <-c.clock.After(recoveryDelay):
		}
	}
}

func (c *I2CController) loopUntilSomethingBadHappens(ctx context.Context, initDone *sync.WaitGroup, firstErr *error) {
	var err error
	defer func() {
		if initDone != nil {
			if firstErr != nil {
				*firstErr = err
			}
			initDone.Done()
		}
	}()

	wheels, err := c.openWheels()
	if err != nil {
		c.log.Errorw("Failed to open wheel controller", "error", err)
		return
	}
	pwm, err := c.openPWM()
	if err != nil {
		c.log.Errorw("Failed to open PWM board", "error", err)
		_ = wheels.Close()
		return
	}
	defer func() {
		// Leave everything stopped whether we're shutting down or about to retry.
		stopErr := wheels.SetMotorSpeeds([picobldc.NumMotors]int16{})
		c.lock.Lock()
		var ports []int
		for n := range c.servosInUse {
			ports = append(ports, n)
		}
		c.lock.Unlock()
		for _, n := range ports {
			stopErr = multierr.Append(stopErr, pwm.SetServo(n, neutralServo))
		}
		closeErr := multierr.Combine(stopErr, wheels.Close(), pwm.Close())
		if closeErr != nil {
			c.log.Warnw("Errors while closing I2C devices", "error", closeErr)
		}
	}()

	if err = wheels.SetWatchdog(wheelWatchdog); err != nil {
		c.log.Errorw("Failed to enable wheel watchdog", "error", err)
		return
	}
	if err = pwm.Configure(); err != nil {
		c.log.Errorw("Failed to configure PWM board", "error", err)
		return
	}

	// The board may have been reset; rewrite every servo we own.
	c.lock.Lock()
	for n := range c.servosInUse {
		c.servosWithUpdates[n] = true
	}
	c.lock.Unlock()

	if initDone != nil {
		if firstErr != nil {
			*firstErr = nil
		}
		initDone.Done()
		initDone = nil
	}

	ticker := c.clock.Ticker(c.period)
	defer ticker.Stop()
	var lastBatteryLog time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.lock.Lock()
		speeds := c.wheels
		updates := map[int]float64{}
		for n := range c.servosWithUpdates {
			updates[n] = c.servoPositions[n]
		}
		c.servosWithUpdates = map[int]bool{}
		c.lock.Unlock()

		// Written every iteration to keep the board's watchdog fed.
		if err = wheels.SetMotorSpeeds(speeds); err != nil {
			c.log.Errorw("Failed to update wheel speeds", "error", err)
			return
		}
		for n, v := range updates {
			if err = pwm.SetServo(n, v); err != nil {
				c.log.Errorw("Failed to update servo", "port", n, "error", err)
				c.lock.Lock()
				c.servosWithUpdates[n] = true
				c.lock.Unlock()
				return
			}
		}

		if c.clock.Since(lastBatteryLog) >= batteryLogInterval {
			v, err := wheels.BattVolts()
			if err != nil {
				c.log.Warnw("Failed to read battery voltage", "error", err)
			} else {
				c.lock.Lock()
				c.battery = v
				c.lock.Unlock()
				c.log.Infow("Battery", "volts", v)
			}
			lastBatteryLog = c.clock.Now()
		}
	}
}
