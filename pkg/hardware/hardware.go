package hardware

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/actuator"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/config"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/encoder"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/escmotor"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/mecanum"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/pca9685"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/picobldc"
)

// Hardware is the real robot: four drive wheels on a Pico-BLDC and four ESC-driven motors on a PCA9685,
// with optional GPIO quadrature encoders on the ESC motors.
type Hardware struct {
	i2c      *I2CController
	wheels   [picobldc.NumMotors]*wheel
	escs     []*escmotor.Motor
	encoders []*encoder.Quadrature
	log      *zap.SugaredLogger

	liftLeft, liftRight     *escmotor.Motor
	rollerLeft, rollerRight *escmotor.Motor

	group *errgroup.Group
}

var _ Interface = (*Hardware)(nil)

// Open claims the devices described by cfg.  The I2C devices are opened by Start.
func Open(cfg config.Hardware, log *zap.SugaredLogger) (*Hardware, error) {
	clk := clock.New()
	i2c := NewI2CController(
		func() (WheelDriver, error) {
			p, err := picobldc.Open(cfg.I2CBus, cfg.PicoAddr, log)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		func() (PWMDriver, error) {
			p, err := pca9685.Open(cfg.I2CBus, cfg.PWMAddr, log)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		DefaultI2CPeriod,
		clk,
		log.Named("i2c"),
	)
	return newHardware(cfg, i2c, func(esc config.ESC) (escmotor.Counter, *encoder.Quadrature, error) {
		if esc.EncoderA == "" {
			return nil, nil, nil
		}
		q, err := encoder.Open(esc.EncoderA, esc.EncoderB, log.Named("encoder"))
		if err != nil {
			return nil, nil, err
		}
		return q, q, nil
	}, clk, log)
}

type encoderOpener func(esc config.ESC) (escmotor.Counter, *encoder.Quadrature, error)

func newHardware(cfg config.Hardware, i2c *I2CController, openEncoder encoderOpener, clk clock.Clock, log *zap.SugaredLogger) (*Hardware, error) {
	h := &Hardware{
		i2c: i2c,
		log: log,
	}
	for m := picobldc.Motor(0); m < picobldc.NumMotors; m++ {
		h.wheels[m] = newWheel(i2c, m, cfg.PicoMaxRaw)
	}

	makeESC := func(name string, esc config.ESC) (*escmotor.Motor, error) {
		counter, q, err := openEncoder(esc)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s encoder", name)
		}
		if q != nil {
			h.encoders = append(h.encoders, q)
		}
		m := escmotor.New(name, i2c, escmotor.Config{
			Channel:     esc.Channel,
			Inverted:    esc.Inverted,
			TicksPerRev: esc.TicksPerRev,
		}, counter, clk, log.Named("esc"))
		// Claims the channel at neutral.
		if err := m.Stop(actuator.Coast); err != nil {
			return nil, err
		}
		h.escs = append(h.escs, m)
		return m, nil
	}

	var err error
	if h.liftLeft, err = makeESC("lift-left", cfg.LiftLeft); err != nil {
		return nil, err
	}
	if h.liftRight, err = makeESC("lift-right", cfg.LiftRight); err != nil {
		return nil, err
	}
	if h.rollerLeft, err = makeESC("roller-left", cfg.RollerLeft); err != nil {
		return nil, err
	}
	if h.rollerRight, err = makeESC("roller-right", cfg.RollerRight); err != nil {
		return nil, err
	}
	return h, nil
}

// Start runs the I2C loop, encoders and position loops.  It returns once the first I2C initialisation
// attempt has finished, with its error if it failed; the loop keeps retrying either way.
func (h *Hardware) Start(ctx context.Context) error {
	h.group, ctx = errgroup.WithContext(ctx)

	var initDone sync.WaitGroup
	var initErr error
	initDone.Add(1)
	h.group.Go(func() error {
		h.i2c.Loop(ctx, &initDone, &initErr)
		return nil
	})
	for _, q := range h.encoders {
		q := q
		h.group.Go(func() error {
			return ignoreCancel(q.Run(ctx))
		})
	}
	for _, m := range h.escs {
		m := m
		h.group.Go(func() error {
			return ignoreCancel(m.Loop(ctx, escmotor.DefaultLoopPeriod))
		})
	}
	initDone.Wait()
	if initErr != nil {
		return errors.Wrap(initErr, "initialising I2C devices")
	}
	h.log.Infow("Hardware started", "encoders", len(h.encoders), "escs", len(h.escs))
	return nil
}

func ignoreCancel(err error) error {
	if errors.Cause(err) == context.Canceled {
		return nil
	}
	return err
}

func (h *Hardware) DriveWheels() mecanum.Wheels {
	return mecanum.Wheels{
		FrontLeft:  h.wheels[picobldc.FrontLeft],
		FrontRight: h.wheels[picobldc.FrontRight],
		BackLeft:   h.wheels[picobldc.BackLeft],
		BackRight:  h.wheels[picobldc.BackRight],
	}
}

func (h *Hardware) LiftMotors() (left, right actuator.Handle) {
	return h.liftLeft, h.liftRight
}

func (h *Hardware) RollerMotors() (left, right actuator.Handle) {
	return h.rollerLeft, h.rollerRight
}

func (h *Hardware) BatteryVolts() float32 {
	return h.i2c.BatteryVolts()
}

func (h *Hardware) Shutdown() error {
	h.log.Infow("Hardware shutting down")
	var err error
	for _, w := range h.wheels {
		err = multierr.Append(err, w.Stop(actuator.Coast))
	}
	for _, m := range h.escs {
		err = multierr.Append(err, m.Stop(actuator.Coast))
	}
	h.i2c.Neutralise()
	if h.group != nil {
		err = multierr.Append(err, h.group.Wait())
	}
	return err
}
