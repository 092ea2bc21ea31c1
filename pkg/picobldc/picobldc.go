package picobldc

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/io/i2c"
)

const (
	DefaultAddr = 0x42
)

type Register byte

const (
	RegCtrl Register = iota
	RegStatus
	RegWatchdogTimeout
	RegFaultCount

	RegMot0V
	RegMot1V
	RegMot2V
	RegMot3V

	RegMot0Calib
	RegMot1Calib
	RegMot2Calib
	RegMot3Calib

	RegBattV // LSB=4mV
	RegCurrent
	RegPower

	RegTemperature // LSB = 0.01C
)

const (
	BattVLSB       = 0.004
	CurrentLSB     = 0.0001831054688
	PowerLSB       = CurrentLSB * 20
	TemperatureLSB = 0.01
)

const (
	RegCtrlEnableI2CControl uint16 = 1 << iota
	RegCtrlRun
	RegCtrlDoCalib
	RegCtrlReset
	RegCtrlWatchdogEnable
)

type StatusFlag uint16

const (
	RegStatusFault StatusFlag = 1 << iota
	RegStatusCalibDone
	RegStatusWatchdogExpired
)

// Motor identifies a wheel by its position on the chassis.
type Motor int

const (
	FrontLeft Motor = iota
	FrontRight
	BackLeft
	BackRight

	NumMotors = 4
)

var motorNames = [NumMotors]string{"front-left", "front-right", "back-left", "back-right"}

func (m Motor) String() string {
	if m < 0 || m >= NumMotors {
		return "unknown"
	}
	return motorNames[m]
}

// Speed registers, indexed by Motor.  The board's channel order doesn't match the chassis layout.
var motorRegs = [NumMotors]Register{
	FrontLeft:  RegMot2V,
	FrontRight: RegMot1V,
	BackLeft:   RegMot3V,
	BackRight:  RegMot0V,
}

const (
	writeRetries      = 20
	configRefresh     = 100 * time.Millisecond
	calibrationTimout = 30 * time.Second
)

// Device is the subset of an I2C device the driver needs.
type Device interface {
	Write(buf []byte) error
	ReadReg(reg byte, buf []byte) error
	Close() error
}

// Opener (re)opens the I2C device after a failed write.
type Opener func() (Device, error)

type PicoBLDC struct {
	open  Opener
	dev   Device
	clock clock.Clock
	log   *zap.SugaredLogger

	lastConfigWord  uint16
	lastConfigTime  time.Time
	watchdogEnabled bool
}

// Open connects to the controller at addr on the given bus, for example /dev/i2c-1.
func Open(bus string, addr int, log *zap.SugaredLogger) (*PicoBLDC, error) {
	opener := func() (Device, error) {
		return i2c.Open(&i2c.Devfs{Dev: bus}, addr)
	}
	return New(opener, clock.New(), log.With("bus", bus, "addr", addr))
}

func New(open Opener, clk clock.Clock, log *zap.SugaredLogger) (*PicoBLDC, error) {
	dev, err := open()
	if err != nil {
		return nil, errors.Wrap(err, "opening Pico-BLDC")
	}
	return &PicoBLDC{
		open:  open,
		dev:   dev,
		clock: clk,
		log:   log,
	}, nil
}

// Reset zeroes the motor speeds and stops the motors.
func (p *PicoBLDC) Reset() error {
	return p.maybeConfigure(true, false)
}

// SetWatchdog makes the board stop the motors if no speed arrives within timeout.  Zero disables it.
func (p *PicoBLDC) SetWatchdog(timeout time.Duration) error {
	if timeout == 0 {
		p.watchdogEnabled = false
		return p.maybeConfigure(false, false)
	}

	ms := timeout.Milliseconds()
	if ms > math.MaxUint16 {
		ms = math.MaxUint16
	}
	err := p.writeReg(RegWatchdogTimeout, uint16(ms))
	if err != nil {
		return err
	}

	p.watchdogEnabled = true
	return p.maybeConfigure(false, false)
}

func (p *PicoBLDC) SetMotorSpeeds(speeds [NumMotors]int16) error {
	if err := p.maybeConfigure(false, true); err != nil {
		return err
	}
	for m, v := range speeds {
		if err := p.writeReg(motorRegs[m], uint16(v)); err != nil {
			return errors.Wrapf(err, "setting %v speed", Motor(m))
		}
	}
	return nil
}

func (p *PicoBLDC) Close() error {
	if err := p.Reset(); err != nil {
		p.log.Warnw("Failed to reset Pico-BLDC on close", "error", err)
	}
	return p.dev.Close()
}

func (p *PicoBLDC) writeWithRetries(data []byte) error {
	var err error
	for tries := 0; tries < writeRetries; tries++ {
		err = p.dev.Write(data)
		if err == nil {
			if tries > 0 {
				p.log.Infow("Successfully programmed Pico-BLDC after retries", "tries", tries)
			}
			return nil
		}
		p.log.Debugw("Failed to write to Pico-BLDC", "error", err, "try", tries)
		p.clock.Sleep(1 * time.Millisecond)
		_ = p.dev.Close()
		dev, openErr := p.open()
		if openErr != nil {
			continue
		}
		p.dev = dev
	}
	return errors.Wrapf(err, "writing to Pico-BLDC failed after %d tries", writeRetries)
}

func (p *PicoBLDC) maybeConfigure(resetMotorSpeeds bool, enableMotors bool) error {
	var configWord uint16 = RegCtrlEnableI2CControl
	if resetMotorSpeeds {
		configWord |= RegCtrlReset
	}
	if enableMotors {
		configWord |= RegCtrlRun
	}
	if p.watchdogEnabled {
		configWord |= RegCtrlWatchdogEnable
	}

	if configWord == p.lastConfigWord && p.clock.Since(p.lastConfigTime) < configRefresh {
		return nil
	}

	if p.lastConfigWord == 0 {
		calib, err := p.readReg(RegMot3Calib)
		if err != nil {
			return err
		}
		if calib == 0 {
			// The motors spin during calibration so the wheels must be off the ground.
			p.log.Warnw("Pico-BLDC not calibrated, running calibration")
			configWord |= RegCtrlDoCalib
		}
	}

	if err := p.writeReg(RegCtrl, configWord); err != nil {
		return err
	}

	if configWord&RegCtrlDoCalib != 0 {
		if err := p.waitForCalibration(); err != nil {
			return err
		}
	}

	if err := p.writeReg(RegStatus, uint16(RegStatusCalibDone)); err != nil {
		return err
	}

	p.lastConfigTime = p.clock.Now()
	p.lastConfigWord = configWord &^ (RegCtrlReset | RegCtrlDoCalib)
	return nil
}

func (p *PicoBLDC) waitForCalibration() error {
	start := p.clock.Now()
	var lastLog time.Time
	for {
		status, err := p.readReg(RegStatus)
		if err != nil {
			p.log.Warnw("Failed to read Pico-BLDC status register", "error", err)
		} else if status&uint16(RegStatusCalibDone) != 0 {
			break
		}
		if p.clock.Since(start) > calibrationTimout {
			return errors.Errorf("Pico-BLDC calibration did not finish within %v", calibrationTimout)
		}
		if p.clock.Since(lastLog) > time.Second {
			p.log.Infow("Waiting for calibration to finish", "status", status)
			lastLog = p.clock.Now()
		}
		p.clock.Sleep(10 * time.Millisecond)
	}

	var words []uint16
	for r := RegMot0Calib; r <= RegMot3Calib; r++ {
		v, err := p.readReg(r)
		if err != nil {
			return err
		}
		words = append(words, v)
	}
	p.log.Infow("Pico-BLDC calibrated", "calibration", words)
	return nil
}

func (p *PicoBLDC) BattVolts() (float32, error) {
	raw, err := p.readReg(RegBattV)
	if err != nil {
		return 0, err
	}
	return float32(raw) * BattVLSB, nil
}

func (p *PicoBLDC) CurrentAmps() (float32, error) {
	raw, err := p.readReg(RegCurrent)
	if err != nil {
		return 0, err
	}
	return float32(raw) * CurrentLSB, nil
}

func (p *PicoBLDC) PowerWatts() (float32, error) {
	raw, err := p.readReg(RegPower)
	if err != nil {
		return 0, err
	}
	return float32(raw) * PowerLSB, nil
}

func (p *PicoBLDC) TemperatureC() (float32, error) {
	raw, err := p.readReg(RegTemperature)
	if err != nil {
		return 0, err
	}
	return float32(raw) * TemperatureLSB, nil
}

func (p *PicoBLDC) Status() (StatusFlag, error) {
	raw, err := p.readReg(RegStatus)
	if err != nil {
		return 0, err
	}
	return StatusFlag(raw), nil
}

func (p *PicoBLDC) writeReg(reg Register, value uint16) error {
	return p.writeWithRetries([]byte{byte(reg), byte(value >> 8), byte(value)})
}

func (p *PicoBLDC) readReg(reg Register) (uint16, error) {
	var buf [2]byte
	err := p.dev.ReadReg(byte(reg), buf[:])
	if err != nil {
		return 0, errors.Wrapf(err, "reading Pico-BLDC register %d", reg)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}
