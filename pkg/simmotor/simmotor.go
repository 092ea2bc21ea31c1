// Package simmotor provides an in-process stand-in for a smart motor.  It keeps a command log so tests
// can see exactly what a subsystem asked for, and it integrates position over time so that position
// holds and range limits behave plausibly when running without hardware.
package simmotor

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/actuator"
)

const (
	DefaultMaxRPM = 100.0

	// Speed used for StartRotateTo when no velocity has been set.
	DefaultMoveVelocityPct = 50.0
)

type Op uint8

const (
	OpSetVelocity Op = iota
	OpSpin
	OpStop
	OpRotateTo
	OpResetPosition
	OpResetRotation
	OpSetBrakeMode
)

func (o Op) String() string {
	switch o {
	case OpSetVelocity:
		return "set-velocity"
	case OpSpin:
		return "spin"
	case OpStop:
		return "stop"
	case OpRotateTo:
		return "rotate-to"
	case OpResetPosition:
		return "reset-position"
	case OpResetRotation:
		return "reset-rotation"
	case OpSetBrakeMode:
		return "set-brake-mode"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

// Command is one entry in the motor's command log.  Only the fields relevant to Op are set.
type Command struct {
	Op    Op
	Value float64
	Unit  actuator.RotationUnit
	Dir   actuator.Direction
	Mode  actuator.BrakeMode
}

func (c Command) String() string {
	switch c.Op {
	case OpSetVelocity:
		return fmt.Sprintf("%v(%v%%)", c.Op, c.Value)
	case OpSpin:
		return fmt.Sprintf("%v(%v)", c.Op, c.Dir)
	case OpStop, OpSetBrakeMode:
		return fmt.Sprintf("%v(%v)", c.Op, c.Mode)
	case OpRotateTo:
		return fmt.Sprintf("%v(%v %v)", c.Op, c.Value, c.Unit)
	default:
		return c.Op.String()
	}
}

type Activity uint8

const (
	Idle Activity = iota
	Spinning
	Moving
)

type Motor struct {
	Name string

	lock   sync.Mutex
	clock  clock.Clock
	maxRPM float64

	velocityPct float64
	brake       actuator.BrakeMode
	activity    Activity
	spinSign    float64
	targetRevs  float64

	positionRevs float64
	lastUpdate   time.Time

	commands []Command
	fault    error
}

var _ actuator.Handle = (*Motor)(nil)

func New(name string, clk clock.Clock) *Motor {
	return &Motor{
		Name:       name,
		clock:      clk,
		maxRPM:     DefaultMaxRPM,
		lastUpdate: clk.Now(),
	}
}

// SetMaxRPM sets the speed the motor reaches at 100%.
func (m *Motor) SetMaxRPM(rpm float64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.advance()
	m.maxRPM = rpm
}

// InjectFault makes every subsequent command fail with err (nil clears the fault).  Failed commands are
// still logged.
func (m *Motor) InjectFault(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.fault = err
}

func (m *Motor) SetVelocity(pct float64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.advance()
	m.commands = append(m.commands, Command{Op: OpSetVelocity, Value: pct})
	if m.fault != nil {
		return m.fault
	}
	m.velocityPct = pct
	return nil
}

func (m *Motor) Spin(dir actuator.Direction) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.advance()
	m.commands = append(m.commands, Command{Op: OpSpin, Dir: dir})
	if m.fault != nil {
		return m.fault
	}
	m.activity = Spinning
	m.spinSign = dir.Sign()
	return nil
}

func (m *Motor) Stop(mode actuator.BrakeMode) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.advance()
	m.commands = append(m.commands, Command{Op: OpStop, Mode: mode})
	if m.fault != nil {
		return m.fault
	}
	m.activity = Idle
	return nil
}

func (m *Motor) StartRotateTo(target float64, unit actuator.RotationUnit) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.advance()
	m.commands = append(m.commands, Command{Op: OpRotateTo, Value: target, Unit: unit})
	if m.fault != nil {
		return m.fault
	}
	m.activity = Moving
	m.targetRevs = unit.ToRevs(target)
	return nil
}

func (m *Motor) ResetPosition() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.advance()
	m.commands = append(m.commands, Command{Op: OpResetPosition})
	if m.fault != nil {
		return m.fault
	}
	m.positionRevs = 0
	return nil
}

func (m *Motor) ResetRotation() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.advance()
	m.commands = append(m.commands, Command{Op: OpResetRotation})
	if m.fault != nil {
		return m.fault
	}
	m.positionRevs = 0
	return nil
}

func (m *Motor) SetBrakeMode(mode actuator.BrakeMode) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.commands = append(m.commands, Command{Op: OpSetBrakeMode, Mode: mode})
	if m.fault != nil {
		return m.fault
	}
	m.brake = mode
	return nil
}

func (m *Motor) Position(unit actuator.RotationUnit) (float64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.fault != nil {
		return 0, m.fault
	}
	m.advance()
	return unit.FromRevs(m.positionRevs), nil
}

// advance integrates motion since the last update.  Caller must hold the lock.
func (m *Motor) advance() {
	now := m.clock.Now()
	minutes := now.Sub(m.lastUpdate).Minutes()
	m.lastUpdate = now
	if minutes <= 0 {
		return
	}

	switch m.activity {
	case Spinning:
		m.positionRevs += m.spinSign * m.velocityPct / 100 * m.maxRPM * minutes
	case Moving:
		speedPct := math.Abs(m.velocityPct)
		if speedPct == 0 {
			speedPct = DefaultMoveVelocityPct
		}
		step := speedPct / 100 * m.maxRPM * minutes
		remaining := m.targetRevs - m.positionRevs
		if math.Abs(remaining) <= step {
			// Arrived; the motor keeps holding the target.
			m.positionRevs = m.targetRevs
		} else {
			m.positionRevs += math.Copysign(step, remaining)
		}
	}
}

// SetPosition teleports the motor, for setting up test scenarios.
func (m *Motor) SetPosition(pos float64, unit actuator.RotationUnit) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.advance()
	m.positionRevs = unit.ToRevs(pos)
}

func (m *Motor) Velocity() float64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.velocityPct
}

func (m *Motor) BrakeMode() actuator.BrakeMode {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.brake
}

func (m *Motor) Activity() Activity {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.activity
}

// Commands returns a copy of the command log.
func (m *Motor) Commands() []Command {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]Command(nil), m.commands...)
}

// LastCommand returns the most recent command and false if none have been issued.
func (m *Motor) LastCommand() (Command, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if len(m.commands) == 0 {
		return Command{}, false
	}
	return m.commands[len(m.commands)-1], true
}

// ClearCommands empties the command log.
func (m *Motor) ClearCommands() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.commands = nil
}
