// Package headingholder keeps the robot pointing the same way while it translates and
// the driver is not asking it to turn, correcting gyro-measured drift with a PID loop.
package headingholder

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/angle"
)

// Gains for the heading loop.  The error is in degrees and the output in radians/second.
type Gains struct {
	Enabled bool    `yaml:"enabled"`
	KP      float64 `yaml:"kp"`
	KI      float64 `yaml:"ki"`
	KD      float64 `yaml:"kd"`
	// Bound on the integral term's accumulated error, degree-seconds.
	MaxIntegral float64 `yaml:"max_integral"`
}

type HeadingHolder struct {
	gains   Gains
	maxRate float64
	clock   clock.Clock
	logger  golog.Logger

	holding    bool
	target     angle.PlusMinus180
	lastError  float64
	iError     float64
	lastUpdate time.Time
}

// New limits the correction to maxRate radians/second.
func New(gains Gains, maxRate float64, clk clock.Clock, logger golog.Logger) *HeadingHolder {
	return &HeadingHolder{
		gains:   gains,
		maxRate: maxRate,
		clock:   clk,
		logger:  logger.Named("hh"),
	}
}

// Rotation returns the rotation rate to command.  A non-zero request, or a robot that
// isn't translating, passes straight through and releases the hold; otherwise the
// heading at the moment the hold began is the target.
func (h *HeadingHolder) Rotation(requested float64, translating bool, yaw float64) float64 {
	now := h.clock.Now()
	var dt float64
	if !h.lastUpdate.IsZero() {
		dt = now.Sub(h.lastUpdate).Seconds()
	}
	h.lastUpdate = now

	if !h.gains.Enabled || requested != 0 || !translating {
		h.holding = false
		return requested
	}
	if !h.holding {
		h.holding = true
		h.target = angle.FromFloat(yaw)
		h.lastError = 0
		h.iError = 0
		h.logger.Debugw("holding heading", "target", h.target.Float())
	}

	// Calculate the error/derivative/integral.
	headingError := h.target.Sub(angle.FromFloat(yaw)).Float()
	var dHeadingError float64
	if dt > 0 {
		dHeadingError = (headingError - h.lastError) / dt
	}
	h.iError += headingError * dt
	h.iError = math.Max(-h.gains.MaxIntegral, math.Min(h.gains.MaxIntegral, h.iError))
	h.lastError = headingError

	correction := h.gains.KP*headingError + h.gains.KI*h.iError + h.gains.KD*dHeadingError
	return math.Max(-h.maxRate, math.Min(h.maxRate, correction))
}

// Release drops the current target, for example after the gyro has been re-zeroed.
func (h *HeadingHolder) Release() {
	h.holding = false
}

// Target is the heading being held and whether there is one.
func (h *HeadingHolder) Target() (float64, bool) {
	return angle.Wrap360(h.target.Float()), h.holding
}
