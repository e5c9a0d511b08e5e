package swervemodule

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/angle"
)

var (
	// ErrInvalidConfiguration is returned (wrapped) when a constant that feeds a unit
	// conversion is unusable.  It is fatal: nothing should be driven with it.
	ErrInvalidConfiguration = errors.New("invalid swerve configuration")

	// ErrDegenerateHeading is returned (wrapped) when a heading computation is handed a
	// NaN or infinite value.
	ErrDegenerateHeading = errors.New("degenerate heading")
)

// State is a wheel speed in metres/second and a wheel heading in degrees.  It is used
// both for commanded targets and for measured values.
type State struct {
	Speed   float64
	Heading float64
}

// Normalized returns the state with its heading mapped into [0, 360).
func (s State) Normalized() State {
	return State{Speed: s.Speed, Heading: angle.Wrap360(s.Heading)}
}

func (s State) String() string {
	return fmt.Sprintf("%.2fm/s@%.1f°", s.Speed, s.Heading)
}

// Optimize returns a state equivalent to desired that needs the smallest steering
// rotation from currentHeading.  If the shortest rotation is more than a quarter turn,
// the target is flipped by a half turn and the speed negated instead.  Exactly a
// quarter turn is not flipped.
//
// The returned heading is the representative closest to currentHeading (it may lie
// outside [0, 360)) so that it can be handed straight to a steering actuator that
// counts continuously.
func Optimize(desired State, currentHeading float64) (State, error) {
	if !angle.IsFinite(desired.Speed) || !angle.IsFinite(desired.Heading) || !angle.IsFinite(currentHeading) {
		return State{}, errors.Wrapf(ErrDegenerateHeading,
			"optimize desired=%v current=%v", desired, currentHeading)
	}

	delta := angle.Delta(currentHeading, desired.Heading).Float()
	speed := desired.Speed
	if delta > 90 {
		delta -= 180
		speed = -speed
	} else if delta < -90 {
		delta += 180
		speed = -speed
	}
	return State{Speed: speed, Heading: currentHeading + delta}, nil
}
