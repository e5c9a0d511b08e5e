package joystick

import (
	"math"

	"github.com/golang/geo/r2"
)

const axisFullScale = 32767

// Command is a driver request for one control cycle.
type Command struct {
	// Metres/second, +X forward and +Y left.
	Translation r2.Point
	// Radians/second, anti-clockwise.
	Rotation float64

	ZeroGyro      bool
	ResetOdometry bool
}

// Sticks turns gamepad events into drive commands: the left stick translates, the right
// stick's x axis rotates.  Share asks for the gyro to be zeroed and PS for the odometry
// to be reset; each press is reported by one Command only.
type Sticks struct {
	maxSpeed        float64
	maxAngularSpeed float64
	deadband        float64

	axes map[uint8]int16

	zeroGyro, resetOdometry bool
}

// NewSticks scales full stick deflection to the given speeds.  Deflections smaller than
// deadband (a fraction of full scale) read as zero.
func NewSticks(maxSpeed, maxAngularSpeed, deadband float64) *Sticks {
	return &Sticks{
		maxSpeed:        maxSpeed,
		maxAngularSpeed: maxAngularSpeed,
		deadband:        deadband,
		axes:            map[uint8]int16{},
	}
}

func (s *Sticks) Apply(e *Event) {
	switch {
	case e.Type == EventTypeAxis:
		s.axes[e.Number] = e.Value
	case e.Pressed(ButtonShare):
		s.zeroGyro = true
	case e.Pressed(ButtonPS):
		s.resetOdometry = true
	}
}

// Command returns the current request and clears any pending button actions.
func (s *Sticks) Command() Command {
	c := Command{
		// Stick up and stick left are negative.
		Translation: r2.Point{
			X: -s.axis(AxisLStickY) * s.maxSpeed,
			Y: -s.axis(AxisLStickX) * s.maxSpeed,
		},
		Rotation:      -s.axis(AxisRStickX) * s.maxAngularSpeed,
		ZeroGyro:      s.zeroGyro,
		ResetOdometry: s.resetOdometry,
	}
	s.zeroGyro, s.resetOdometry = false, false
	return c
}

// axis is the deflection in [-1, 1] with the deadband removed and the rest of the range
// stretched to fill it.
func (s *Sticks) axis(n uint8) float64 {
	v := math.Max(-1, math.Min(1, float64(s.axes[n])/axisFullScale))
	if math.Abs(v) <= s.deadband {
		return 0
	}
	return math.Copysign((math.Abs(v)-s.deadband)/(1-s.deadband), v)
}
