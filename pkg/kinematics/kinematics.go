// Package kinematics maps a chassis motion onto the four wheels of a swerve drive and back.
//
// Frames follow the usual robot convention: +X is forward, +Y is to the left and positive
// rotation is anti-clockwise seen from above.  Module positions are offsets in metres
// from the robot's rotation centre.
package kinematics

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/angle"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

const NumModules = 4

// ChassisSpeeds is the motion of the robot body.  Whether it is robot- or
// field-relative is decided by whoever passes it around.
type ChassisSpeeds struct {
	Forward  float64 // metres/second along +X
	Strafe   float64 // metres/second along +Y
	Rotation float64 // radians/second, anti-clockwise
}

func (c ChassisSpeeds) String() string {
	return fmt.Sprintf("fwd=%.2f strafe=%.2f rot=%.2f", c.Forward, c.Strafe, c.Rotation)
}

// FromFieldRelative rotates a field-relative command into the robot frame, given the
// robot's current heading in degrees.
func FromFieldRelative(speeds ChassisSpeeds, heading float64) ChassisSpeeds {
	v := Rotate(r2.Point{X: speeds.Forward, Y: speeds.Strafe}, -heading)
	return ChassisSpeeds{Forward: v.X, Strafe: v.Y, Rotation: speeds.Rotation}
}

type Kinematics struct {
	positions [NumModules]r2.Point
	center    r2.Point
	maxSpeed  float64

	// Each row pair maps chassis speeds to one module's velocity vector.
	inverse *mat.Dense

	lastStates [NumModules]swervemodule.State
}

func New(maxSpeed float64, positions [NumModules]r2.Point) (*Kinematics, error) {
	var err error
	if !(maxSpeed > 0) || math.IsInf(maxSpeed, 0) {
		err = multierr.Append(err, errors.Wrapf(swervemodule.ErrInvalidConfiguration, "max speed %v", maxSpeed))
	}
	for i, p := range positions {
		if !angle.IsFinite(p.X) || !angle.IsFinite(p.Y) {
			err = multierr.Append(err, errors.Wrapf(swervemodule.ErrInvalidConfiguration, "module %d position %v", i, p))
		}
	}
	if err != nil {
		return nil, err
	}

	k := &Kinematics{
		positions: positions,
		maxSpeed:  maxSpeed,
	}
	k.buildInverse()
	return k, nil
}

func (k *Kinematics) MaxSpeed() float64 {
	return k.maxSpeed
}

func (k *Kinematics) Positions() [NumModules]r2.Point {
	return k.positions
}

// SetCenterOfRotation moves the point the robot rotates about, relative to the point the
// module positions are measured from.
func (k *Kinematics) SetCenterOfRotation(c r2.Point) {
	k.center = c
	k.buildInverse()
}

func (k *Kinematics) buildInverse() {
	data := make([]float64, 0, 2*NumModules*3)
	for _, p := range k.positions {
		r := p.Sub(k.center)
		data = append(data,
			1, 0, -r.Y,
			0, 1, r.X,
		)
	}
	k.inverse = mat.NewDense(2*NumModules, 3, data)
}

// ToModuleStates returns each module's target speed and heading (degrees, [0, 360)) for
// the commanded chassis motion.  A field-relative command is first rotated into the robot
// frame using currentHeading.  If any wheel would exceed the maximum speed, all four are
// scaled down together.  A zero command leaves every heading where it was last set.
func (k *Kinematics) ToModuleStates(speeds ChassisSpeeds, fieldRelative bool, currentHeading float64) [NumModules]swervemodule.State {
	if fieldRelative {
		speeds = FromFieldRelative(speeds, currentHeading)
	}

	var states [NumModules]swervemodule.State
	if speeds == (ChassisSpeeds{}) {
		for i := range states {
			states[i] = swervemodule.State{Heading: k.lastStates[i].Heading}
		}
		k.lastStates = states
		return states
	}

	cmd := mat.NewVecDense(3, []float64{speeds.Forward, speeds.Strafe, speeds.Rotation})
	var v mat.VecDense
	v.MulVec(k.inverse, cmd)
	for i := range states {
		vx, vy := v.AtVec(2*i), v.AtVec(2*i+1)
		states[i] = swervemodule.State{
			Speed:   math.Hypot(vx, vy),
			Heading: angle.Wrap360(angle.Degrees(math.Atan2(vy, vx))),
		}
	}
	Desaturate(states[:], k.maxSpeed)
	k.lastStates = states
	return states
}

// ToChassisSpeeds is the forward direction: the robot-relative chassis motion that best
// explains the given module states, in the least squares sense.
func (k *Kinematics) ToChassisSpeeds(states [NumModules]swervemodule.State) (ChassisSpeeds, error) {
	velocities := make([]float64, 0, 2*NumModules)
	for _, s := range states {
		v := Velocity(s)
		velocities = append(velocities, v.X, v.Y)
	}
	var x mat.Dense
	if err := x.Solve(k.inverse, mat.NewDense(2*NumModules, 1, velocities)); err != nil {
		return ChassisSpeeds{}, errors.Wrap(err, "forward kinematics")
	}
	return ChassisSpeeds{Forward: x.At(0, 0), Strafe: x.At(1, 0), Rotation: x.At(2, 0)}, nil
}

// Desaturate scales every speed by the same factor so that none exceeds maxSpeed in
// magnitude.  Ratios between modules, and so the direction of travel, are preserved.
func Desaturate(states []swervemodule.State, maxSpeed float64) {
	var fastest float64
	for _, s := range states {
		fastest = math.Max(fastest, math.Abs(s.Speed))
	}
	if fastest <= maxSpeed {
		return
	}
	scale := maxSpeed / fastest
	for i := range states {
		states[i].Speed *= scale
	}
}

// Velocity is the module's velocity vector in the robot frame.
func Velocity(s swervemodule.State) r2.Point {
	rad := angle.Radians(s.Heading)
	return r2.Point{X: s.Speed * math.Cos(rad), Y: s.Speed * math.Sin(rad)}
}

// Rotate turns p anti-clockwise by deg degrees.
func Rotate(p r2.Point, deg float64) r2.Point {
	sin, cos := math.Sincos(angle.Radians(deg))
	return r2.Point{X: p.X*cos - p.Y*sin, Y: p.X*sin + p.Y*cos}
}
