package joystick

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"io/ioutil"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func encode(t *testing.T, events ...rawEvent) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range events {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, e))
	}
	return ioutil.NopCloser(&buf)
}

func TestReadEventDecodesDriverFormat(t *testing.T) {
	js := newJoystick(encode(t,
		rawEvent{Time: 1000, Value: 1, Type: EventTypeButton | eventTypeInit, Number: ButtonCircle},
		rawEvent{Time: 1250, Value: -32767, Type: EventTypeAxis, Number: AxisLStickY},
	))

	first, err := js.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, EventType(EventTypeButton), first.Type, "init flag should be stripped")
	assert.Equal(t, uint8(ButtonCircle), first.Number)
	assert.Equal(t, int16(1), first.Value)

	second, err := js.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, EventType(EventTypeAxis), second.Type)
	assert.Equal(t, int16(-32767), second.Value)
	assert.Equal(t, 250*time.Millisecond, second.Time.Sub(first.Time))
	assert.Equal(t, "axis(1)=-32767", second.String())

	_, err = js.ReadEvent()
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, js.Close())
}

func TestScaleAxis(t *testing.T) {
	for raw, want := range map[int16]int32{
		0:      0,
		32767:  100,
		-32767: -100,
		-32768: -100,
		16384:  50,
		-16384: -50,
		327:    0,
		328:    1,
	} {
		assert.Equal(t, want, ScaleAxis(raw), "raw=%d", raw)
	}
}

func TestStateTracksLatestValues(t *testing.T) {
	s := NewState()
	up := s.Axis(AxisLStickY, true)
	x := s.Axis(AxisLStickX, false)
	circle := s.Button(ButtonCircle)

	assert.Equal(t, int32(0), up())
	assert.False(t, circle())

	s.Apply(&Event{Type: EventTypeAxis, Number: AxisLStickY, Value: -32767})
	s.Apply(&Event{Type: EventTypeAxis, Number: AxisLStickX, Value: 16384})
	s.Apply(&Event{Type: EventTypeButton, Number: ButtonCircle, Value: 1})
	assert.Equal(t, int32(100), up(), "stick up reads positive when inverted")
	assert.Equal(t, int32(50), x())
	assert.True(t, circle())

	s.Apply(&Event{Type: EventTypeButton, Number: ButtonCircle, Value: 0})
	assert.False(t, circle())

	// Ignored rather than panicking.
	s.Apply(&Event{Type: EventTypeAxis, Number: 200, Value: 5})
	s.Apply(&Event{Type: EventTypeButton, Number: 200, Value: 1})

	s.Reset()
	assert.Equal(t, int32(0), up())
	assert.Equal(t, int32(0), x())
}

func TestOutOfRangeControlsPanic(t *testing.T) {
	s := NewState()
	assert.Panics(t, func() { s.Axis(MaxAxes, false) })
	assert.Panics(t, func() { s.Button(-1) })
}

type scriptedSource struct {
	events []*Event
	err    error
	// Called before each read, so tests can observe state mid-stream.
	beforeRead func()
}

func (s *scriptedSource) ReadEvent() (*Event, error) {
	if s.beforeRead != nil {
		s.beforeRead()
	}
	if len(s.events) == 0 {
		return nil, s.err
	}
	e := s.events[0]
	s.events = s.events[1:]
	return e, nil
}

func TestPumpAppliesEventsAndResetsOnFailure(t *testing.T) {
	state := NewState()
	var seen []bool
	src := &scriptedSource{
		events: []*Event{
			{Type: EventTypeButton, Number: ButtonL1, Value: 1},
			{Type: EventTypeAxis, Number: AxisRStickX, Value: 32767},
		},
		err: io.ErrUnexpectedEOF,
	}
	src.beforeRead = func() {
		seen = append(seen, state.Pressed(ButtonL1))
	}

	err := Pump(context.Background(), src, state, zaptest.NewLogger(t).Sugar())
	assert.Equal(t, io.ErrUnexpectedEOF, errors.Cause(err))

	assert.Equal(t, []bool{false, true, true}, seen)
	assert.False(t, state.Pressed(ButtonL1), "state should be neutral after the reader stops")
	assert.Equal(t, int32(0), state.Axis(AxisRStickX, false)())
}

func TestPumpStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &scriptedSource{events: []*Event{{Type: EventTypeButton, Number: ButtonL1, Value: 1}}}
	state := NewState()

	err := Pump(ctx, src, state, zaptest.NewLogger(t).Sugar())
	assert.Equal(t, context.Canceled, err)
	assert.Len(t, src.events, 1, "no events should be read once cancelled")
}
