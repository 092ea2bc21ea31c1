package joystick

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/input"
)

// Button and pad mappings:
//
// Buttons
//
//    Square    = 3
//    Cross     = 0
//    Circle    = 1
//    Triangle  = 2
//    L1        = 4
//    R1        = 5
//    L2        = 6 (also an axis)
//    R2        = 7 (also an axis)
//    Share     = 8
//    Options   = 9
//    PS        = 10
//    L stick   = 11
//    R stick   = 12
//
// Axes
//
//    D-pad   u/d = 7 (up = -32767; down = +32767)
//            l/r = 6 (left = -32767; right = +32767)
//    L stick u/d = 1 (up = -32767; down = +32767)
//            l/r = 0 (left = -32767; right = +32767)
//    R stick u/d = 4 (up = -32767; down = +32767)
//            l/r = 3 (left = -32767; right = +32767)
//    L2          = 2 (unpressed = -32767; fully-pressed = 32767)
//    R2          = 5 (unpressed = -32767; fully-pressed = 32767)

type EventType uint8

const (
	EventTypeButton = 1
	EventTypeAxis   = 2

	// Set on the synthetic events the driver sends when the device is opened.
	eventTypeInit = 0x80
)

const (
	ButtonSquare   = 3
	ButtonCross    = 0
	ButtonCircle   = 1
	ButtonTriangle = 2
	ButtonL1       = 4
	ButtonR1       = 5
	ButtonL2       = 6
	ButtonR2       = 7
	ButtonShare    = 8
	ButtonOptions  = 9
	ButtonLStick   = 11
	ButtonRStick   = 12
	ButtonPS       = 10

	AxisLStickX = 0
	AxisLStickY = 1
	AxisL2      = 2
	AxisRStickX = 3
	AxisRStickY = 4
	AxisR2      = 5
	AxisDPadX   = 6
	AxisDPadY   = 7

	MaxAxes    = 16
	MaxButtons = 32

	// Largest magnitude the driver reports on an axis.
	AxisFullScale = 32767
)

func (e EventType) String() string {
	switch e {
	case EventTypeAxis:
		return "axis"
	case EventTypeButton:
		return "button"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

type Joystick struct {
	device io.ReadCloser

	deviceEpoch    uint32
	wallclockEpoch time.Time
}

type rawEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

type Event struct {
	Time   time.Time
	Value  int16
	Type   EventType
	Number uint8
}

func (e *Event) String() string {
	return fmt.Sprintf("%v(%v)=%v", e.Type, e.Number, e.Value)
}

func NewJoystick(device string) (*Joystick, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, errors.Wrapf(err, "opening joystick %s", device)
	}
	return newJoystick(f), nil
}

func newJoystick(r io.ReadCloser) *Joystick {
	return &Joystick{
		device: r,
	}
}

func (j *Joystick) ReadEvent() (*Event, error) {
	var rawEvent rawEvent
	err := binary.Read(j.device, binary.LittleEndian, &rawEvent)
	if err != nil {
		return nil, err
	}

	if j.deviceEpoch == 0 {
		j.deviceEpoch = rawEvent.Time
		j.wallclockEpoch = time.Now()
	}

	return &Event{
		Time:   j.wallclockEpoch.Add(time.Duration(rawEvent.Time-j.deviceEpoch) * time.Millisecond),
		Value:  rawEvent.Value,
		Type:   EventType(rawEvent.Type &^ eventTypeInit),
		Number: rawEvent.Number,
	}, nil
}

func (j *Joystick) Close() error {
	return j.device.Close()
}

// State holds the most recent value of every axis and button.  Events are applied from the reader
// goroutine while the control loop samples, so access is locked.
type State struct {
	lock    sync.Mutex
	axes    [MaxAxes]int16
	buttons [MaxButtons]bool
}

func NewState() *State {
	return &State{}
}

// Apply records an event.  Out-of-range axis and button numbers are ignored.
func (s *State) Apply(e *Event) {
	s.lock.Lock()
	defer s.lock.Unlock()
	switch e.Type {
	case EventTypeAxis:
		if int(e.Number) < MaxAxes {
			s.axes[e.Number] = e.Value
		}
	case EventTypeButton:
		if int(e.Number) < MaxButtons {
			s.buttons[e.Number] = e.Value != 0
		}
	}
}

// Reset returns every control to neutral, for use when the controller disconnects.
func (s *State) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.axes = [MaxAxes]int16{}
	s.buttons = [MaxButtons]bool{}
}

func (s *State) rawAxis(n int) int16 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.axes[n]
}

func (s *State) Pressed(n int) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.buttons[n]
}

// ScaleAxis converts a raw driver value to percent of full deflection, truncating toward zero.
func ScaleAxis(raw int16) int32 {
	return input.Saturate(int32(raw)*input.FullScale/AxisFullScale, input.FullScale)
}

// Axis returns an input for axis n in [-100, 100].  Stick Y axes report up as negative; pass invert to
// make up positive.
func (s *State) Axis(n int, invert bool) input.Axis {
	if n < 0 || n >= MaxAxes {
		panic(fmt.Sprintf("joystick: axis %d out of range", n))
	}
	return func() int32 {
		v := ScaleAxis(s.rawAxis(n))
		if invert {
			return -v
		}
		return v
	}
}

func (s *State) Button(n int) input.Button {
	if n < 0 || n >= MaxButtons {
		panic(fmt.Sprintf("joystick: button %d out of range", n))
	}
	return func() bool {
		return s.Pressed(n)
	}
}

type EventSource interface {
	ReadEvent() (*Event, error)
}

// Pump feeds events from src into state until the source fails or ctx is done.  The state is reset on
// exit so a lost controller leaves every input neutral.
func Pump(ctx context.Context, src EventSource, state *State, log *zap.SugaredLogger) error {
	defer state.Reset()
	for ctx.Err() == nil {
		event, err := src.ReadEvent()
		if err != nil {
			log.Errorw("Failed to read from joystick", "error", err)
			return errors.Wrap(err, "reading joystick")
		}
		log.Debugw("Joystick event", "event", event)
		state.Apply(event)
	}
	return ctx.Err()
}
