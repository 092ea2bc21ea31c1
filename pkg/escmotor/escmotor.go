// Package escmotor drives a brushed motor through a hobby ESC on a servo-style PWM channel, optionally
// closing a position loop around a quadrature encoder.
package escmotor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/actuator"
)

const (
	// Proportional gain, in percent output per revolution of error.
	DefaultGain = 200.0
	// Position error, in revolutions, treated as on target.
	DefaultTolerance = 0.02
	// Output cap for moves when no velocity has been set.
	DefaultMoveVelocityPct = 50.0

	DefaultLoopPeriod = 10 * time.Millisecond
)

// PWM accepts a servo pulse value in [0, 1] for a channel; 0.5 is neutral.
type PWM interface {
	SetServo(port int, value float64) error
}

// Counter is a position sensor counting in raw ticks.
type Counter interface {
	Count() int64
	Reset()
}

type Config struct {
	Channel  int
	Inverted bool
	// Encoder ticks per output revolution.  Ignored without an encoder.
	TicksPerRev float64
	Gain        float64
	Tolerance   float64
}

type mode uint8

const (
	modeIdle mode = iota
	modeSpin
	modeMove
)

type Motor struct {
	name  string
	pwm   PWM
	cfg   Config
	enc   Counter
	clock clock.Clock
	log   *zap.SugaredLogger

	lock        sync.Mutex
	velocityPct float64
	brake       actuator.BrakeMode
	mode        mode
	spinSign    float64
	targetRevs  float64
	output      float64
}

var _ actuator.Handle = (*Motor)(nil)

// New creates a motor on cfg.Channel.  enc may be nil, in which case position commands return
// actuator.ErrUnsupported.
func New(name string, pwm PWM, cfg Config, enc Counter, clk clock.Clock, log *zap.SugaredLogger) *Motor {
	if cfg.TicksPerRev <= 0 {
		cfg.TicksPerRev = actuator.RawPerRev
	}
	if cfg.Gain <= 0 {
		cfg.Gain = DefaultGain
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return &Motor{
		name:  name,
		pwm:   pwm,
		cfg:   cfg,
		enc:   enc,
		clock: clk,
		log:   log.With("motor", name, "channel", cfg.Channel),
	}
}

func (m *Motor) Name() string {
	return m.name
}

// ServoValue converts a signed output percentage to a pulse value.
func ServoValue(pct float64, inverted bool) float64 {
	pct = math.Max(-100, math.Min(100, pct))
	if inverted {
		pct = -pct
	}
	return 0.5 + pct/200
}

// Caller must hold the lock.
func (m *Motor) drive(pct float64) error {
	m.output = pct
	if err := m.pwm.SetServo(m.cfg.Channel, ServoValue(pct, m.cfg.Inverted)); err != nil {
		return errors.Wrapf(err, "%s: setting ESC output", m.name)
	}
	return nil
}

func (m *Motor) SetVelocity(pct float64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.velocityPct = pct
	if m.mode == modeSpin {
		return m.drive(m.spinSign * pct)
	}
	return nil
}

func (m *Motor) Spin(dir actuator.Direction) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.mode = modeSpin
	m.spinSign = dir.Sign()
	return m.drive(m.spinSign * m.velocityPct)
}

// Stop cuts the output.  With Hold and an encoder, the motor then holds its current position.
func (m *Motor) Stop(mode actuator.BrakeMode) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if mode == actuator.Hold && m.enc != nil {
		m.mode = modeMove
		m.targetRevs = m.positionRevs()
	} else {
		m.mode = modeIdle
	}
	return m.drive(0)
}

func (m *Motor) StartRotateTo(target float64, unit actuator.RotationUnit) error {
	if m.enc == nil {
		return errors.Wrapf(actuator.ErrUnsupported, "%s: no encoder for position moves", m.name)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.mode = modeMove
	m.targetRevs = unit.ToRevs(target)
	return nil
}

func (m *Motor) ResetPosition() error {
	if m.enc == nil {
		return errors.Wrapf(actuator.ErrUnsupported, "%s: no encoder to reset", m.name)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.enc.Reset()
	if m.mode == modeMove {
		m.targetRevs = 0
	}
	return nil
}

// ResetRotation is the same as ResetPosition; the encoder only tracks rotation.
func (m *Motor) ResetRotation() error {
	return m.ResetPosition()
}

// SetBrakeMode only records the mode.  Braking is configured in the ESC firmware.
func (m *Motor) SetBrakeMode(mode actuator.BrakeMode) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.brake = mode
	return nil
}

func (m *Motor) Position(unit actuator.RotationUnit) (float64, error) {
	if m.enc == nil {
		return 0, errors.Wrapf(actuator.ErrUnsupported, "%s: no encoder", m.name)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	return unit.FromRevs(m.positionRevs()), nil
}

// Caller must hold the lock.
func (m *Motor) positionRevs() float64 {
	return float64(m.enc.Count()) / m.cfg.TicksPerRev
}

// Output returns the last output percentage sent to the ESC.
func (m *Motor) Output() float64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.output
}

// Step runs one iteration of the position loop.  It does nothing unless a move or hold is active.
func (m *Motor) Step() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.mode != modeMove {
		return nil
	}
	limit := math.Abs(m.velocityPct)
	if limit == 0 {
		limit = DefaultMoveVelocityPct
	}
	errRevs := m.targetRevs - m.positionRevs()
	if math.Abs(errRevs) <= m.cfg.Tolerance {
		return m.drive(0)
	}
	out := m.cfg.Gain * errRevs
	out = math.Max(-limit, math.Min(limit, out))
	return m.drive(out)
}

// Loop runs the position loop every period until ctx is done.  Motors without an encoder return
// immediately.
func (m *Motor) Loop(ctx context.Context, period time.Duration) error {
	if m.enc == nil {
		return nil
	}
	ticker := m.clock.Ticker(period)
	defer ticker.Stop()
	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		err := m.Step()
		if err != nil && lastErr == nil {
			m.log.Warnw("Position loop failed to drive ESC", "error", err)
		} else if err == nil && lastErr != nil {
			m.log.Infow("Position loop recovered")
		}
		lastErr = err
	}
}
