// Package drivetrain is the swerve drive as a whole: it turns driver or autonomous
// commands into module setpoints and keeps the odometry up to date.
//
// Everything except Snapshot must be called from the control loop.  Each cycle should
// read the command, call Drive (or SetModuleStates) and then Periodic.
package drivetrain

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/angle"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/odometry"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

// ModuleTelemetry is what the dashboard shows for one module.
type ModuleTelemetry struct {
	Name string
	// Absolute encoder, offset removed.
	AbsoluteHeading float64
	// Steering motor's own count, [0, 360).
	IntegratedHeading float64
	// Last heading sent to the steering motor, continuous.
	CommandedHeading float64
	Speed             float64
	SteerMode         swervemodule.SteerMode
	Err               error
}

// Snapshot is a copy of the drivetrain's state at the end of a cycle.
type Snapshot struct {
	Time         time.Time
	Pose         odometry.Pose
	Yaw          float64
	Measured     kinematics.ChassisSpeeds
	Modules      [4]ModuleTelemetry
	BatteryVolts float64
	BatteryAmps  float64
}

// FastestModule is the index of the module with the greatest measured speed.
func (s Snapshot) FastestModule() int {
	return lo.MaxBy(lo.Range(len(s.Modules)), func(a, b int) bool {
		return math.Abs(s.Modules[a].Speed) > math.Abs(s.Modules[b].Speed)
	})
}

type Drivetrain struct {
	cfg     chassis.Config
	hw      hardware.Interface
	heading hardware.HeadingSensor
	clock   clock.Clock
	logger  golog.Logger

	kin      *kinematics.Kinematics
	modules  [4]*swervemodule.Module
	odometry *odometry.Estimator

	snapshotLock sync.Mutex
	snapshot     Snapshot
}

// New homes every module, zeroes the gyro and starts the odometry at the origin.
func New(cfg chassis.Config, hw hardware.Interface, clk clock.Clock, logger golog.Logger) (*Drivetrain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kin, err := kinematics.New(cfg.MaxSpeed, cfg.Positions())
	if err != nil {
		return nil, err
	}
	d := &Drivetrain{
		cfg:     cfg,
		hw:      hw,
		heading: hw.Heading(),
		clock:   clk,
		logger:  logger.Named("drivetrain"),
		kin:     kin,
	}

	io := hw.Modules()
	for i := range d.modules {
		m, err := swervemodule.New(i, cfg.ModuleConstants(i), cfg.Limits(), io[i], logger.With("name", cfg.Modules[i].Name))
		if err != nil {
			return nil, err
		}
		d.modules[i] = m
	}

	if err := d.ZeroGyro(); err != nil {
		return nil, err
	}
	yaw, err := d.Yaw()
	if err != nil {
		return nil, err
	}
	d.odometry = odometry.New(odometry.Pose{}, yaw, clk)
	return d, nil
}

func (d *Drivetrain) Kinematics() *kinematics.Kinematics {
	return d.kin
}

// Drive commands a chassis motion: translation in metres/second, rotation in
// radians/second anti-clockwise.  A field-relative translation is measured along the
// field's axes rather than the robot's.
func (d *Drivetrain) Drive(translation r2.Point, rotation float64, fieldRelative, openLoop bool) error {
	var yaw float64
	if fieldRelative {
		var err error
		if yaw, err = d.Yaw(); err != nil {
			return err
		}
	}
	speeds := kinematics.ChassisSpeeds{Forward: translation.X, Strafe: translation.Y, Rotation: rotation}
	states := d.kin.ToModuleStates(speeds, fieldRelative, yaw)
	d.logger.Debugw("drive", "speeds", speeds, "fieldRelative", fieldRelative, "states", states)
	return d.setModuleStates(states, openLoop)
}

// SetModuleStates sends explicit module targets, for path followers.  They are scaled
// down together if any is too fast, and always run closed loop.
func (d *Drivetrain) SetModuleStates(states [4]swervemodule.State) error {
	kinematics.Desaturate(states[:], d.cfg.MaxSpeed)
	return d.setModuleStates(states, false)
}

// setModuleStates commands every module even if some fail.
func (d *Drivetrain) setModuleStates(states [4]swervemodule.State, openLoop bool) error {
	var err error
	for i, m := range d.modules {
		if mErr := m.SetDesiredState(states[i], openLoop); mErr != nil {
			d.logger.Errorw("failed to set module state", "module", d.cfg.Modules[i].Name, "error", mErr)
			err = multierr.Append(err, mErr)
		}
	}
	return err
}

// States are the measured module states, headings in [0, 360).
func (d *Drivetrain) States() ([4]swervemodule.State, error) {
	var states [4]swervemodule.State
	for i, m := range d.modules {
		s, err := m.State()
		if err != nil {
			return states, err
		}
		states[i] = s
	}
	return states, nil
}

func (d *Drivetrain) Pose() odometry.Pose {
	return d.odometry.Pose()
}

// ResetOdometry declares the robot to be at pose.
func (d *Drivetrain) ResetOdometry(pose odometry.Pose) error {
	yaw, err := d.Yaw()
	if err != nil {
		return err
	}
	d.odometry.ResetPose(pose, yaw)
	d.logger.Infow("reset odometry", "pose", pose)
	return nil
}

// ZeroGyro makes the robot's current direction read as a yaw of 0.
func (d *Drivetrain) ZeroGyro() error {
	if err := d.heading.Zero(); err != nil {
		return errors.Wrap(err, "zero gyro")
	}
	d.logger.Info("zeroed gyro")
	return nil
}

// Yaw is the heading sensor's reading, anti-clockwise positive, [0, 360).  A sensor
// mounted upside down is corrected by the config's invert_gyro.
func (d *Drivetrain) Yaw() (float64, error) {
	yaw, err := d.heading.Yaw()
	if err != nil {
		return 0, errors.Wrap(err, "read gyro")
	}
	if d.cfg.InvertGyro {
		return angle.Wrap360(360 - yaw), nil
	}
	return yaw, nil
}

// Periodic updates the odometry from the sensors and publishes a new snapshot.  It runs
// once per cycle, after the modules have been commanded.
func (d *Drivetrain) Periodic() (Snapshot, error) {
	yaw, err := d.Yaw()
	if err != nil {
		return Snapshot{}, err
	}
	states, err := d.States()
	if err != nil {
		return Snapshot{}, err
	}
	pose := d.odometry.Update(yaw, states)

	measured, err := d.kin.ToChassisSpeeds(states)
	if err != nil {
		d.logger.Warnw("no measured chassis speed", "error", err)
	}

	snap := Snapshot{
		Time:     d.clock.Now(),
		Pose:     pose,
		Yaw:      yaw,
		Measured: measured,
	}
	for i, m := range d.modules {
		t := ModuleTelemetry{
			Name:              d.cfg.Modules[i].Name,
			IntegratedHeading: states[i].Heading,
			CommandedHeading:  m.LastCommandedHeading(),
			Speed:             states[i].Speed,
			SteerMode:         m.SteerMode(),
		}
		t.AbsoluteHeading, t.Err = m.AbsoluteHeading()
		snap.Modules[i] = t
	}
	if snap.BatteryVolts, err = d.hw.BatteryVolts(); err != nil {
		d.logger.Debugw("no battery reading", "error", err)
	}
	if snap.BatteryAmps, err = d.hw.BatteryAmps(); err != nil {
		d.logger.Debugw("no battery current", "error", err)
	}

	d.snapshotLock.Lock()
	d.snapshot = snap
	d.snapshotLock.Unlock()
	return snap, nil
}

// Snapshot returns the latest published snapshot.  It is safe to call from any goroutine.
func (d *Drivetrain) Snapshot() Snapshot {
	d.snapshotLock.Lock()
	defer d.snapshotLock.Unlock()
	return d.snapshot
}

// Stop zeroes the drive outputs.
func (d *Drivetrain) Stop() error {
	return d.hw.StopMotors()
}
