package hardware

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/angle"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/units"
)

// Where the simulated steering counters start, before homing.
const dummyUnhomedTicks = 12345

// Dummy simulates the robot: motors reach their setpoints instantly, each absolute
// encoder reads its wheel's true angle plus the configured offset, and the heading is
// integrated from what the wheels are doing.  It is not safe for concurrent use.
type Dummy struct {
	logger  golog.Logger
	modules [4]*SimModule
	imu     *simIMU
}

var _ Interface = (*Dummy)(nil)

func NewDummy(cfg chassis.Config, clk clock.Clock, logger golog.Logger) (*Dummy, error) {
	kin, err := kinematics.New(cfg.MaxSpeed, cfg.Positions())
	if err != nil {
		return nil, err
	}
	d := &Dummy{logger: logger.Named("dhw")}
	for i := range d.modules {
		d.modules[i] = &SimModule{
			constants:   cfg.ModuleConstants(i),
			maxVelocity: units.MPSToNative(cfg.MaxSpeed, cfg.WheelCircumference, cfg.DriveGearRatio),
			sensorTicks: dummyUnhomedTicks,
		}
	}
	d.imu = &simIMU{clock: clk, kin: kin, modules: d.modules, last: clk.Now()}
	return d, nil
}

func (d *Dummy) Start(ctx context.Context) error {
	d.logger.Debug("start")
	return nil
}

func (d *Dummy) Modules() [4]swervemodule.IO {
	var io [4]swervemodule.IO
	for i, m := range d.modules {
		io[i] = swervemodule.IO{Drive: m, Steer: (*simSteer)(m), Encoder: (*simEncoder)(m)}
	}
	return io
}

// Sim exposes a simulated module for tests.
func (d *Dummy) Sim(i int) *SimModule {
	return d.modules[i]
}

func (d *Dummy) Heading() HeadingSensor {
	return d.imu
}

func (d *Dummy) BatteryVolts() (float64, error) {
	return 12.6, nil
}

// Idle draw plus one amp per metre/second of each wheel's speed.
func (d *Dummy) BatteryAmps() (float64, error) {
	amps := 0.5
	for _, m := range d.modules {
		amps += math.Abs(m.state().Speed)
	}
	return amps, nil
}

func (d *Dummy) StopMotors() error {
	d.logger.Debug("stop motors")
	for _, m := range d.modules {
		m.velocity = 0
	}
	return nil
}

func (d *Dummy) Shutdown() error {
	d.logger.Debug("shutdown")
	return d.StopMotors()
}

// SimModule is one simulated module.  It is the drive motor itself; the steering motor
// and encoder are views of it.
type SimModule struct {
	constants   swervemodule.Constants
	maxVelocity float64 // native

	velocity     float64 // native
	wheelDegrees float64 // true steering angle, continuous
	sensorTicks  float64 // steering counter reading when wheelDegrees is 0

	// Err, if set, is returned by every call.
	Err error
}

func (m *SimModule) SetPercentOutput(fraction float64) error {
	if m.Err != nil {
		return m.Err
	}
	m.velocity = fraction * m.maxVelocity
	return nil
}

func (m *SimModule) SetVelocity(nativeVelocity, feedforward float64) error {
	if m.Err != nil {
		return m.Err
	}
	m.velocity = nativeVelocity
	return nil
}

func (m *SimModule) Velocity() (float64, error) {
	return m.velocity, m.Err
}

// WheelDegrees is where the wheel really points.
func (m *SimModule) WheelDegrees() float64 {
	return m.wheelDegrees
}

// SetWheelDegrees moves the wheel by hand, as if the robot had been pushed.
func (m *SimModule) SetWheelDegrees(deg float64) {
	m.wheelDegrees = deg
}

func (m *SimModule) state() swervemodule.State {
	return swervemodule.State{
		Speed:   units.NativeToMPS(m.velocity, m.constants.WheelCircumference, m.constants.DriveGearRatio),
		Heading: m.wheelDegrees,
	}
}

type simSteer SimModule

func (s *simSteer) SetPosition(nativePosition float64) error {
	if s.Err != nil {
		return s.Err
	}
	s.wheelDegrees = units.NativeToDegrees(nativePosition-s.sensorTicks, s.constants.AngleGearRatio)
	return nil
}

func (s *simSteer) Position() (float64, error) {
	return units.DegreesToNative(s.wheelDegrees, s.constants.AngleGearRatio) + s.sensorTicks, s.Err
}

func (s *simSteer) SetSensorPosition(nativePosition float64) error {
	if s.Err != nil {
		return s.Err
	}
	s.sensorTicks = nativePosition - units.DegreesToNative(s.wheelDegrees, s.constants.AngleGearRatio)
	return nil
}

type simEncoder SimModule

func (e *simEncoder) AbsoluteDegrees() (float64, error) {
	return angle.Wrap360(e.wheelDegrees + e.constants.AngleOffset), e.Err
}

type simIMU struct {
	clock   clock.Clock
	kin     *kinematics.Kinematics
	modules [4]*SimModule

	last time.Time
	yaw  float64
	zero float64
}

func (s *simIMU) integrate() error {
	var states [4]swervemodule.State
	for i, m := range s.modules {
		states[i] = m.state()
	}
	speeds, err := s.kin.ToChassisSpeeds(states)
	if err != nil {
		return errors.Wrap(err, "simulated IMU")
	}
	now := s.clock.Now()
	s.yaw += angle.Degrees(speeds.Rotation) * now.Sub(s.last).Seconds()
	s.last = now
	return nil
}

func (s *simIMU) Yaw() (float64, error) {
	if err := s.integrate(); err != nil {
		return 0, err
	}
	return angle.Wrap360(s.yaw - s.zero), nil
}

func (s *simIMU) Zero() error {
	if err := s.integrate(); err != nil {
		return err
	}
	s.zero = s.yaw
	return nil
}
