package pca9685

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/io/i2c"
)

const (
	DefaultAddr = 0x40

	RegMode1 = 0x00
	RegMode2 = 0x01

	// Each PWM output has two 16-bit (low byte first) registers.
	// First register is the on time, second is the off time.
	RegLEDBase = 0x06

	RegPreScale = 0xfe // Pre-scaler for PWM frequency.
	RegTestMode = 0xff

	NumPorts = 16

	PWMPeriod = 20 * time.Millisecond

	ServoMinPulseDuration = 1000 * time.Microsecond
	ServoMaxPulseDuration = 2000 * time.Microsecond

	PWMMax = 4095

	ServoMinPWM = float64(PWMMax * ServoMinPulseDuration / PWMPeriod)
	ServoMaxPWM = float64(PWMMax * ServoMaxPulseDuration / PWMPeriod)
)

// ErrBadPort is returned for a port number outside 0-15.
var ErrBadPort = errors.New("PWM port out of range")

type Interface interface {
	Configure() error
	SetServo(port int, value float64) error
	SetPWM(port int, value float64) error
	Close() error
}

// Device is the subset of an I2C device the driver needs.
type Device interface {
	WriteReg(reg byte, buf []byte) error
	Close() error
}

type PCA9685 struct {
	dev Device
	log *zap.SugaredLogger
}

// Open connects to the board at addr on the given bus, for example /dev/i2c-1.
func Open(bus string, addr int, log *zap.SugaredLogger) (*PCA9685, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: bus}, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "opening PCA9685 on %s", bus)
	}
	return New(dev, log.With("bus", bus, "addr", addr)), nil
}

func New(dev Device, log *zap.SugaredLogger) *PCA9685 {
	return &PCA9685{
		dev: dev,
		log: log,
	}
}

var _ Interface = (*PCA9685)(nil)

// Configure sets the output frequency to 50Hz and enables the outputs.
func (p *PCA9685) Configure() error {
	steps := []struct {
		reg   byte
		value byte
		what  string
	}{
		{RegMode1, 0x11, "sleeping"},
		{RegPreScale, 0x79, "setting prescaler"},
		{RegMode1, 0x01, "resetting"},
	}
	for _, s := range steps {
		if err := p.dev.WriteReg(s.reg, []byte{s.value}); err != nil {
			return errors.Wrapf(err, "PCA9685 %s", s.what)
		}
	}
	// Required delay after reset.
	time.Sleep(1 * time.Millisecond)
	if err := p.dev.WriteReg(RegMode1, []byte{0x81}); err != nil {
		return errors.Wrap(err, "PCA9685 enabling")
	}
	p.log.Debugw("PCA9685 configured")
	return nil
}

// SetServo sets the pulse width on port, from 1ms at 0 to 2ms at 1.  Values outside [0, 1] are clamped.
func (p *PCA9685) SetServo(port int, value float64) error {
	pwmValue := uint16(ServoMinPWM + clamp01(value)*(ServoMaxPWM-ServoMinPWM))
	return p.writePort(port, pwmValue)
}

// SetPWM sets the duty cycle on port.  Values outside [0, 1] are clamped.
func (p *PCA9685) SetPWM(port int, value float64) error {
	return p.writePort(port, uint16(PWMMax*clamp01(value)))
}

func (p *PCA9685) writePort(port int, pwmValue uint16) error {
	if port < 0 || port >= NumPorts {
		p.log.Warnw("PWM port out of range", "port", port)
		return errors.Wrapf(ErrBadPort, "port %d", port)
	}
	addr := RegLEDBase + port*4
	return p.dev.WriteReg(byte(addr), []byte{0, 0, byte(pwmValue & 0xff), byte(pwmValue >> 8)})
}

func (p *PCA9685) Close() error {
	return p.dev.Close()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	} else if v > 1 {
		return 1
	}
	return v
}
