package picobldc

import (
	"math"

	"github.com/pkg/errors"
)

// Channel is one motor on a board.  It can serve as either a swerve drive motor or a
// steering motor.
type Channel struct {
	board *PicoBLDC
	ch    int
}

func (c *Channel) Index() int {
	return c.ch
}

// SetPercentOutput drives the motor open loop; fraction is clamped to [-1, 1].
func (c *Channel) SetPercentOutput(fraction float64) error {
	return c.wrap(c.board.command(c.ch, ModePercent, int32(scaleFraction(fraction)), 0), "percent output")
}

// SetVelocity runs the board's velocity loop in ticks/100ms, adding feedforward (a
// fraction of full output) to the loop's output.
func (c *Channel) SetVelocity(nativeVelocity, feedforward float64) error {
	return c.wrap(c.board.command(c.ch, ModeVelocity, toInt32(nativeVelocity), scaleFraction(feedforward)), "velocity")
}

func (c *Channel) Velocity() (float64, error) {
	v, err := c.board.rawVelocity(c.ch)
	return float64(v), c.wrap(err, "read velocity")
}

// SetPosition runs the board's position loop towards nativePosition ticks.
func (c *Channel) SetPosition(nativePosition float64) error {
	return c.wrap(c.board.command(c.ch, ModePosition, toInt32(nativePosition), 0), "position")
}

// Position is the channel's position in ticks, extended past the board's 16-bit counter.
func (c *Channel) Position() (float64, error) {
	p, err := c.board.tracker.PollChannel(c.ch)
	return float64(p), c.wrap(err, "read position")
}

func (c *Channel) SetSensorPosition(nativePosition float64) error {
	return c.wrap(c.board.preset(c.ch, toInt32(nativePosition)), "preset position")
}

func (c *Channel) wrap(err error, what string) error {
	return errors.Wrapf(err, "channel %d: %s", c.ch, what)
}

func scaleFraction(f float64) int16 {
	f = math.Max(-1, math.Min(1, f))
	return int16(math.Round(f * fullScale))
}

func toInt32(v float64) int32 {
	v = math.Round(v)
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}
