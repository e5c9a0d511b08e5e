// Package odometry tracks the robot's position on the field by integrating wheel
// velocities, with heading taken from the heading sensor rather than from the wheels.
package odometry

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/angle"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

// Pose is a position in metres and a heading in degrees, [0, 360), in the field frame.
type Pose struct {
	X, Y    float64
	Heading float64
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f) %.1f°", p.X, p.Y, p.Heading)
}

// Estimator is not safe for concurrent use; it belongs to the control loop.  Pose()
// returns a copy that other goroutines may keep.
type Estimator struct {
	clock clock.Clock

	pose Pose
	// Added to the sensor heading to get the field heading; set by ResetPose.
	headingOffset float64

	lastUpdate time.Time
	lastStates [kinematics.NumModules]swervemodule.State
}

// New starts the estimate at initial, given the heading sensor's current reading.
func New(initial Pose, sensorHeading float64, clk clock.Clock) *Estimator {
	e := &Estimator{clock: clk}
	e.ResetPose(initial, sensorHeading)
	return e
}

// Update advances the estimate using the time since the previous update.
func (e *Estimator) Update(sensorHeading float64, states [kinematics.NumModules]swervemodule.State) Pose {
	return e.UpdateWithTime(e.clock.Now(), sensorHeading, states)
}

// UpdateWithTime advances the estimate to now.  The robot is assumed to have moved at
// the average of the module velocities for the whole period.  The first update only
// records the heading.
func (e *Estimator) UpdateWithTime(now time.Time, sensorHeading float64, states [kinematics.NumModules]swervemodule.State) Pose {
	var dt float64
	if !e.lastUpdate.IsZero() {
		dt = now.Sub(e.lastUpdate).Seconds()
	}
	e.lastUpdate = now
	e.lastStates = states

	heading := angle.Wrap360(sensorHeading + e.headingOffset)

	var sum r2.Point
	for _, s := range states {
		sum = sum.Add(kinematics.Velocity(s))
	}
	robotVelocity := sum.Mul(1.0 / kinematics.NumModules)
	fieldVelocity := kinematics.Rotate(robotVelocity, heading)

	e.pose = Pose{
		X:       e.pose.X + fieldVelocity.X*dt,
		Y:       e.pose.Y + fieldVelocity.Y*dt,
		Heading: heading,
	}
	return e.pose
}

// ResetPose throws away the current estimate and starts again from newPose.  Later
// headings are reported relative to the sensor reading given here.
func (e *Estimator) ResetPose(newPose Pose, sensorHeading float64) {
	e.headingOffset = newPose.Heading - sensorHeading
	e.pose = Pose{X: newPose.X, Y: newPose.Y, Heading: angle.Wrap360(newPose.Heading)}
}

func (e *Estimator) Pose() Pose {
	return e.pose
}

// LastStates are the module states given to the most recent update.
func (e *Estimator) LastStates() [kinematics.NumModules]swervemodule.State {
	return e.lastStates
}
