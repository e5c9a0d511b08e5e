// Package swervemodule controls one wheel of a swerve chassis: a drive motor that sets
// the wheel's linear speed, a steering motor that sets its heading, and an absolute
// encoder used to home the steering motor's relative position count.
package swervemodule

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/angle"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/units"
)

// DriveMotor is the wheel's drive actuator.  Velocities are in native ticks per 100ms.
type DriveMotor interface {
	SetPercentOutput(fraction float64) error
	// SetVelocity runs the controller's velocity loop with an additional feed-forward
	// term expressed as a fraction of full output.
	SetVelocity(nativeVelocity, feedforward float64) error
	Velocity() (float64, error)
}

// SteerMotor is the wheel's steering actuator.  Positions are in native ticks and count
// continuously (they do not wrap every revolution).
type SteerMotor interface {
	SetPosition(nativePosition float64) error
	Position() (float64, error)
	// SetSensorPosition rewrites the actuator's notion of where it currently is.
	SetSensorPosition(nativePosition float64) error
}

// AbsoluteEncoder reports the module's true steering angle, independent of power cycles.
type AbsoluteEncoder interface {
	AbsoluteDegrees() (float64, error)
}

// IO is the set of devices owned by one module.
type IO struct {
	Drive   DriveMotor
	Steer   SteerMotor
	Encoder AbsoluteEncoder
}

// Constants is the per-module calibration.
type Constants struct {
	DriveGearRatio     float64
	AngleGearRatio     float64
	WheelCircumference float64 // metres
	AngleOffset        float64 // degrees, absolute encoder reading when the wheel points forward
}

func (c Constants) Validate() error {
	var err error
	if !(c.DriveGearRatio > 0) {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidConfiguration, "drive gear ratio %v", c.DriveGearRatio))
	}
	if !(c.AngleGearRatio > 0) {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidConfiguration, "angle gear ratio %v", c.AngleGearRatio))
	}
	if !(c.WheelCircumference > 0) {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidConfiguration, "wheel circumference %v", c.WheelCircumference))
	}
	if !angle.IsFinite(c.AngleOffset) {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidConfiguration, "angle offset %v", c.AngleOffset))
	}
	return err
}

// Feedforward is a static + velocity + acceleration motor model; Calculate returns volts.
type Feedforward struct {
	KS float64 `yaml:"ks"`
	KV float64 `yaml:"kv"`
	KA float64 `yaml:"ka"`
}

func (f Feedforward) Calculate(velocity, acceleration float64) float64 {
	var sign float64
	if velocity > 0 {
		sign = 1
	} else if velocity < 0 {
		sign = -1
	}
	return f.KS*sign + f.KV*velocity + f.KA*acceleration
}

// Limits are the chassis-wide values every module needs.
type Limits struct {
	MaxSpeed       float64 // metres/second
	NominalVoltage float64
	Feedforward    Feedforward
}

func (l Limits) Validate() error {
	var err error
	if !(l.MaxSpeed > 0) || math.IsInf(l.MaxSpeed, 0) {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidConfiguration, "max speed %v", l.MaxSpeed))
	}
	if !(l.NominalVoltage > 0) {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidConfiguration, "nominal voltage %v", l.NominalVoltage))
	}
	return err
}

type Module struct {
	index     int
	constants Constants
	limits    Limits
	io        IO
	logger    golog.Logger

	steerMode            SteerMode
	lastCommandedHeading float64
}

// New validates the module's configuration, homes the steering motor from the absolute
// encoder and records the resulting heading as the last commanded one.
func New(index int, constants Constants, limits Limits, io IO, logger golog.Logger) (*Module, error) {
	if err := multierr.Combine(constants.Validate(), limits.Validate()); err != nil {
		return nil, errors.Wrapf(err, "module %d", index)
	}
	if io.Drive == nil || io.Steer == nil || io.Encoder == nil {
		return nil, errors.Errorf("module %d: missing actuator or encoder", index)
	}

	m := &Module{
		index:     index,
		constants: constants,
		limits:    limits,
		io:        io,
		logger:    logger.Named("module").With("module", index),
		steerMode: SteerHolding,
	}
	if err := m.ResetToAbsolute(); err != nil {
		return nil, err
	}
	heading, err := m.measuredHeading()
	if err != nil {
		return nil, err
	}
	m.lastCommandedHeading = heading
	m.logger.Debugw("module ready", "heading", heading)
	return m, nil
}

func (m *Module) Index() int {
	return m.index
}

func (m *Module) SteerMode() SteerMode {
	return m.steerMode
}

// LastCommandedHeading is in the steering motor's continuous frame, not wrapped.
func (m *Module) LastCommandedHeading() float64 {
	return m.lastCommandedHeading
}

// SetDesiredState drives the wheel towards desired.  In open loop the drive motor gets
// speed/maxSpeed as a direct output; otherwise it gets a velocity setpoint plus
// feed-forward.
func (m *Module) SetDesiredState(desired State, openLoop bool) error {
	current, err := m.measuredHeading()
	if err != nil {
		return err
	}
	optimized, err := Optimize(desired, current)
	if err != nil {
		return errors.Wrapf(err, "module %d", m.index)
	}

	if openLoop {
		err = m.io.Drive.SetPercentOutput(optimized.Speed / m.limits.MaxSpeed)
	} else {
		velocity := units.MPSToNative(optimized.Speed, m.constants.WheelCircumference, m.constants.DriveGearRatio)
		ff := m.limits.Feedforward.Calculate(optimized.Speed, 0) / m.limits.NominalVoltage
		err = m.io.Drive.SetVelocity(velocity, ff)
	}
	if err != nil {
		return errors.Wrapf(err, "module %d: drive", m.index)
	}

	mode := nextSteerMode(optimized.Speed, m.limits.MaxSpeed)
	if mode != m.steerMode {
		m.logger.Debugw("steer mode", "from", m.steerMode, "to", mode)
		m.steerMode = mode
	}
	heading := mode.heading(m.lastCommandedHeading, optimized.Heading)
	if err := m.io.Steer.SetPosition(units.DegreesToNative(heading, m.constants.AngleGearRatio)); err != nil {
		return errors.Wrapf(err, "module %d: steer", m.index)
	}
	m.lastCommandedHeading = heading
	return nil
}

// State returns the measured wheel speed and heading, heading in [0, 360).
func (m *Module) State() (State, error) {
	native, err := m.io.Drive.Velocity()
	if err != nil {
		return State{}, errors.Wrapf(err, "module %d: drive velocity", m.index)
	}
	heading, err := m.measuredHeading()
	if err != nil {
		return State{}, err
	}
	return State{
		Speed:   units.NativeToMPS(native, m.constants.WheelCircumference, m.constants.DriveGearRatio),
		Heading: heading,
	}.Normalized(), nil
}

// AbsoluteHeading is the absolute encoder reading with the calibration offset removed,
// in [0, 360).
func (m *Module) AbsoluteHeading() (float64, error) {
	raw, err := m.io.Encoder.AbsoluteDegrees()
	if err != nil {
		return 0, errors.Wrapf(err, "module %d: absolute encoder", m.index)
	}
	if !angle.IsFinite(raw) {
		return 0, errors.Wrapf(ErrDegenerateHeading, "module %d: absolute encoder read %v", m.index, raw)
	}
	return angle.Wrap360(raw - m.constants.AngleOffset), nil
}

// ResetToAbsolute seeds the steering motor's relative position from the absolute
// encoder.
func (m *Module) ResetToAbsolute() error {
	heading, err := m.AbsoluteHeading()
	if err != nil {
		return err
	}
	if err := m.io.Steer.SetSensorPosition(units.DegreesToNative(heading, m.constants.AngleGearRatio)); err != nil {
		return errors.Wrapf(err, "module %d: home steering", m.index)
	}
	m.logger.Infow("homed steering", "heading", heading)
	return nil
}

// measuredHeading is the steering position in degrees, continuous.
func (m *Module) measuredHeading() (float64, error) {
	native, err := m.io.Steer.Position()
	if err != nil {
		return 0, errors.Wrapf(err, "module %d: steer position", m.index)
	}
	heading := units.NativeToDegrees(native, m.constants.AngleGearRatio)
	if math.IsNaN(heading) {
		return 0, errors.Wrapf(ErrDegenerateHeading, "module %d: steer position %v", m.index, native)
	}
	return heading, nil
}
