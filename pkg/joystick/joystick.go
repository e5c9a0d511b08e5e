package joystick

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// Button and pad mappings:
//
// Buttons
//
//    Square    = 0
//    Cross     = 1
//    Circle    = 2
//    Triangle  = 3
//    L1        = 4
//    R1        = 5
//    L2        = 6 (also an axis)
//    R2        = 7 (also an axis)
//    Share     = 8
//    Options   = 9
//    L stick   = 10
//    R stick   = 11
//    PS        = 12
//    Pad click = 13
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
	EventTypeButton EventType = 1
	EventTypeAxis   EventType = 2
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
	//ButtonPadClick =

	AxisLStickX = 0
	AxisLStickY = 1
	AxisRStickX = 3
	AxisRStickY = 4
	AxisDPadX   = 6
	AxisDPadY   = 7
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
	device  io.ReadCloser
	readBuf [8]byte

	clock          clock.Clock
	deviceEpoch    uint32
	wallclockEpoch time.Time
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

// Pressed is true for the press (not the release) of button.
func (e *Event) Pressed(button uint8) bool {
	return e.Type == EventTypeButton && e.Number == button && e.Value == 1
}

// Open opens a Linux joystick device such as /dev/input/js0.
func Open(device string) (*Joystick, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, errors.Wrap(err, "open joystick")
	}
	return New(f, clock.New()), nil
}

// New reads joystick events in the Linux js format from r.
func New(r io.ReadCloser, clk clock.Clock) *Joystick {
	return &Joystick{
		device: r,
		clock:  clk,
	}
}

// ReadEvent blocks for the next event.  Event times are the device's timestamps moved
// onto the wall clock.
func (j *Joystick) ReadEvent() (*Event, error) {
	if _, err := io.ReadFull(j.device, j.readBuf[:]); err != nil {
		return nil, errors.Wrap(err, "read joystick")
	}
	raw := j.readBuf[:]
	devTime := binary.LittleEndian.Uint32(raw[0:4])

	if j.deviceEpoch == 0 {
		j.deviceEpoch = devTime
		j.wallclockEpoch = j.clock.Now()
	}

	return &Event{
		Time:   j.wallclockEpoch.Add(time.Duration(devTime-j.deviceEpoch) * time.Millisecond),
		Value:  int16(binary.LittleEndian.Uint16(raw[4:6])),
		Type:   EventType(raw[6] & 0x7f),
		Number: raw[7],
	}, nil
}

// LoopReadingEvents sends events to events until reading fails or ctx is done, then
// closes the channel and the device.
func (j *Joystick) LoopReadingEvents(ctx context.Context, events chan<- *Event) error {
	defer close(events)
	defer j.Close()
	for ctx.Err() == nil {
		event, err := j.ReadEvent()
		if err != nil {
			return err
		}
		select {
		case events <- event:
		case <-ctx.Done():
		}
	}
	return ctx.Err()
}

func (j *Joystick) Close() error {
	return j.device.Close()
}
