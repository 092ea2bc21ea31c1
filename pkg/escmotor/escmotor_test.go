package escmotor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/actuator"
)

type fakePWM struct {
	lock   sync.Mutex
	values map[int]float64
	fail   error
}

func newFakePWM() *fakePWM {
	return &fakePWM{values: map[int]float64{}}
}

func (p *fakePWM) SetServo(port int, value float64) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.values[port] = value
	return nil
}

func (p *fakePWM) value(port int) float64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.values[port]
}

type fakeCounter struct {
	lock  sync.Mutex
	count int64
}

func (c *fakeCounter) Count() int64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.count
}

func (c *fakeCounter) Reset() {
	c.set(0)
}

func (c *fakeCounter) set(v int64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.count = v
}

func TestServoValue(t *testing.T) {
	assert.Equal(t, 0.5, ServoValue(0, false))
	assert.Equal(t, 1.0, ServoValue(100, false))
	assert.Equal(t, 0.0, ServoValue(100, true))
	assert.Equal(t, 0.25, ServoValue(-50, false))
	assert.Equal(t, 1.0, ServoValue(250, false), "clamped")
}

func TestSpinAndStop(t *testing.T) {
	pwm := newFakePWM()
	m := New("roller-left", pwm, Config{Channel: 2}, nil, clock.NewMock(), zaptest.NewLogger(t).Sugar())

	require.NoError(t, m.SetVelocity(50))
	assert.Equal(t, 0.0, pwm.value(2), "velocity alone doesn't start the motor")

	require.NoError(t, m.Spin(actuator.Reverse))
	assert.Equal(t, 0.25, pwm.value(2))
	assert.Equal(t, -50.0, m.Output())

	// Velocity changes apply straight away while spinning.
	require.NoError(t, m.SetVelocity(100))
	assert.Equal(t, 0.0, pwm.value(2))

	require.NoError(t, m.Stop(actuator.Brake))
	assert.Equal(t, 0.5, pwm.value(2))
}

func TestInvertedChannel(t *testing.T) {
	pwm := newFakePWM()
	m := New("lift-right", pwm, Config{Channel: 1, Inverted: true}, nil, clock.NewMock(), zaptest.NewLogger(t).Sugar())

	require.NoError(t, m.SetVelocity(100))
	require.NoError(t, m.Spin(actuator.Forward))
	assert.Equal(t, 0.0, pwm.value(1))
}

func TestPositionCommandsNeedEncoder(t *testing.T) {
	m := New("roller", newFakePWM(), Config{}, nil, clock.NewMock(), zaptest.NewLogger(t).Sugar())

	for _, err := range []error{
		m.StartRotateTo(1, actuator.Rev),
		m.ResetPosition(),
		m.ResetRotation(),
		func() error { _, err := m.Position(actuator.Rev); return err }(),
	} {
		assert.Equal(t, actuator.ErrUnsupported, errors.Cause(err))
	}
	assert.NoError(t, m.Loop(context.Background(), DefaultLoopPeriod), "no loop without an encoder")
}

func TestPositionLoop(t *testing.T) {
	pwm := newFakePWM()
	enc := &fakeCounter{}
	m := New("lift-left", pwm, Config{Channel: 0, TicksPerRev: 100}, enc, clock.NewMock(), zaptest.NewLogger(t).Sugar())

	enc.set(250)
	pos, err := m.Position(actuator.Rev)
	require.NoError(t, err)
	assert.Equal(t, 2.5, pos)
	pos, err = m.Position(actuator.Deg)
	require.NoError(t, err)
	assert.Equal(t, 900.0, pos)

	require.NoError(t, m.ResetPosition())
	require.NoError(t, m.StartRotateTo(3, actuator.Rev))

	// Far away: output capped at the default move speed.
	require.NoError(t, m.Step())
	assert.Equal(t, DefaultMoveVelocityPct, m.Output())

	// Close: proportional.
	enc.set(290)
	require.NoError(t, m.Step())
	assert.InDelta(t, 20.0, m.Output(), 1e-9)

	// Overshoot drives back.
	enc.set(310)
	require.NoError(t, m.Step())
	assert.InDelta(t, -20.0, m.Output(), 1e-9)

	// Within tolerance.
	enc.set(301)
	require.NoError(t, m.Step())
	assert.Equal(t, 0.0, m.Output())

	// A set velocity caps the move speed.
	require.NoError(t, m.SetVelocity(-30))
	enc.set(0)
	require.NoError(t, m.Step())
	assert.Equal(t, 30.0, m.Output())
}

func TestStopHoldKeepsPosition(t *testing.T) {
	pwm := newFakePWM()
	enc := &fakeCounter{}
	m := New("lift-left", pwm, Config{TicksPerRev: 100}, enc, clock.NewMock(), zaptest.NewLogger(t).Sugar())

	enc.set(120)
	require.NoError(t, m.Stop(actuator.Hold))
	enc.set(100)
	require.NoError(t, m.Step())
	assert.InDelta(t, 40.0, m.Output(), 1e-9)

	require.NoError(t, m.Stop(actuator.Coast))
	enc.set(0)
	require.NoError(t, m.Step())
	assert.Equal(t, 0.0, m.Output(), "coasting motors aren't driven")
}

func TestLoopRunsOnTicker(t *testing.T) {
	pwm := newFakePWM()
	enc := &fakeCounter{}
	clk := clock.NewMock()
	m := New("lift-left", pwm, Config{Channel: 3, TicksPerRev: 100}, enc, clk, zaptest.NewLogger(t).Sugar())
	require.NoError(t, m.StartRotateTo(1, actuator.Rev))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- m.Loop(ctx, DefaultLoopPeriod)
	}()

	require.Eventually(t, func() bool {
		clk.Add(DefaultLoopPeriod)
		return pwm.value(3) == ServoValue(DefaultMoveVelocityPct, false)
	}, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Loop did not stop")
	}
}

func TestDriveErrorsAreReturned(t *testing.T) {
	pwm := newFakePWM()
	pwm.fail = errors.New("bus error")
	m := New("roller", pwm, Config{}, nil, clock.NewMock(), zaptest.NewLogger(t).Sugar())

	err := m.Spin(actuator.Forward)
	assert.EqualError(t, err, "roller: setting ESC output: bus error")
}
