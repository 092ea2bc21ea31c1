package pca9685

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type regWrite struct {
	reg  byte
	data []byte
}

type fakeDevice struct {
	writes []regWrite
	fail   error
}

func (d *fakeDevice) WriteReg(reg byte, buf []byte) error {
	if d.fail != nil {
		return d.fail
	}
	d.writes = append(d.writes, regWrite{reg, append([]byte(nil), buf...)})
	return nil
}

func (d *fakeDevice) Close() error {
	return nil
}

func TestConfigureSequence(t *testing.T) {
	dev := &fakeDevice{}
	p := New(dev, zaptest.NewLogger(t).Sugar())

	require.NoError(t, p.Configure())
	assert.Equal(t, []regWrite{
		{RegMode1, []byte{0x11}},
		{RegPreScale, []byte{0x79}},
		{RegMode1, []byte{0x01}},
		{RegMode1, []byte{0x81}},
	}, dev.writes)
}

func TestConfigureFailure(t *testing.T) {
	dev := &fakeDevice{fail: errors.New("nack")}
	p := New(dev, zaptest.NewLogger(t).Sugar())

	err := p.Configure()
	assert.EqualError(t, err, "PCA9685 sleeping: nack")
}

func TestSetServoPulseWidths(t *testing.T) {
	dev := &fakeDevice{}
	p := New(dev, zaptest.NewLogger(t).Sugar())

	require.NoError(t, p.SetServo(0, 0))
	require.NoError(t, p.SetServo(2, 1))
	require.NoError(t, p.SetServo(15, 7))

	// 1ms and 2ms pulses out of 20ms; the last value is clamped.
	assert.Equal(t, []regWrite{
		{RegLEDBase, []byte{0, 0, 204, 0}},
		{RegLEDBase + 8, []byte{0, 0, 409 & 0xff, 409 >> 8}},
		{RegLEDBase + 60, []byte{0, 0, 409 & 0xff, 409 >> 8}},
	}, dev.writes)
}

func TestSetPWM(t *testing.T) {
	dev := &fakeDevice{}
	p := New(dev, zaptest.NewLogger(t).Sugar())

	require.NoError(t, p.SetPWM(1, 1))
	require.NoError(t, p.SetPWM(1, -3))
	assert.Equal(t, []byte{0, 0, 0xff, 0x0f}, dev.writes[0].data)
	assert.Equal(t, []byte{0, 0, 0, 0}, dev.writes[1].data)
}

func TestBadPort(t *testing.T) {
	dev := &fakeDevice{}
	p := New(dev, zaptest.NewLogger(t).Sugar())

	assert.Equal(t, ErrBadPort, errors.Cause(p.SetServo(16, 0.5)))
	assert.Equal(t, ErrBadPort, errors.Cause(p.SetPWM(-1, 0.5)))
	assert.Empty(t, dev.writes)
}
