package swervemodule

import "math"

// Below this fraction of the maximum chassis speed the wheel is treated as stopped and
// the steering holds its last heading.
const deadbandFraction = 0.01

// SteerMode is the state of a module's steering: either holding the last commanded
// heading (wheel nearly stationary) or following the commanded heading.
type SteerMode int

const (
	SteerHolding SteerMode = iota
	SteerActive
)

func (m SteerMode) String() string {
	switch m {
	case SteerHolding:
		return "holding"
	case SteerActive:
		return "active"
	default:
		return "unknown"
	}
}

// nextSteerMode picks the steering mode for a commanded wheel speed.  The transition
// does not depend on the previous mode.
func nextSteerMode(speed, maxSpeed float64) SteerMode {
	if math.Abs(speed) <= maxSpeed*deadbandFraction {
		return SteerHolding
	}
	return SteerActive
}

// heading returns the heading to issue in this mode.
func (m SteerMode) heading(lastCommanded, target float64) float64 {
	if m == SteerHolding {
		return lastCommanded
	}
	return target
}
