package odometry

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

func allModules(s swervemodule.State) [4]swervemodule.State {
	return [4]swervemodule.State{s, s, s, s}
}

func TestFirstUpdateDoesNotMove(t *testing.T) {
	clk := clock.NewMock()
	e := New(Pose{X: 1, Y: 2, Heading: 0}, 0, clk)

	clk.Add(time.Second)
	p := e.Update(0, allModules(swervemodule.State{Speed: 3}))
	test.That(t, p.X, test.ShouldEqual, 1)
	test.That(t, p.Y, test.ShouldEqual, 2)
}

func TestStraightLine(t *testing.T) {
	clk := clock.NewMock()
	e := New(Pose{}, 0, clk)
	forward := allModules(swervemodule.State{Speed: 1})

	e.Update(0, forward)
	for i := 0; i < 50; i++ {
		clk.Add(20 * time.Millisecond)
		e.Update(0, forward)
	}
	p := e.Pose()
	test.That(t, p.X, test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, p.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, p.Heading, test.ShouldEqual, 0)
}

func TestMotionIsRotatedIntoFieldFrame(t *testing.T) {
	clk := clock.NewMock()
	e := New(Pose{}, 0, clk)
	forward := allModules(swervemodule.State{Speed: 2})

	e.Update(90, forward)
	clk.Add(500 * time.Millisecond)
	p := e.Update(90, forward)
	test.That(t, p.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, p.Y, test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, p.Heading, test.ShouldAlmostEqual, 90)
}

func TestSpinInPlaceDoesNotTranslate(t *testing.T) {
	clk := clock.NewMock()
	e := New(Pose{}, 0, clk)
	spin := [4]swervemodule.State{
		{Speed: 1, Heading: 135},
		{Speed: 1, Heading: 45},
		{Speed: 1, Heading: 225},
		{Speed: 1, Heading: 315},
	}
	e.Update(0, spin)
	clk.Add(time.Second)
	p := e.Update(30, spin)
	test.That(t, p.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, p.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, p.Heading, test.ShouldAlmostEqual, 30)
}

func TestResetPose(t *testing.T) {
	clk := clock.NewMock()
	e := New(Pose{}, 0, clk)
	e.Update(0, allModules(swervemodule.State{Speed: 1}))
	clk.Add(time.Second)
	e.Update(0, allModules(swervemodule.State{Speed: 1}))

	// Sensor reads 30 but the robot is known to face 90.
	e.ResetPose(Pose{X: 5, Y: -1, Heading: 90}, 30)
	p := e.Pose()
	test.That(t, p.X, test.ShouldEqual, 5)
	test.That(t, p.Y, test.ShouldEqual, -1)
	test.That(t, p.Heading, test.ShouldEqual, 90)

	// Heading follows the sensor from the new reference.
	clk.Add(time.Second)
	p = e.Update(40, allModules(swervemodule.State{}))
	test.That(t, p.Heading, test.ShouldAlmostEqual, 100)
	test.That(t, p.X, test.ShouldEqual, 5)

	p = e.Update(300, allModules(swervemodule.State{}))
	test.That(t, p.Heading, test.ShouldAlmostEqual, 0)
}

func TestUpdateWithTime(t *testing.T) {
	e := New(Pose{Heading: 180}, 0, clock.NewMock())
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	strafe := allModules(swervemodule.State{Speed: 1, Heading: 90})

	e.UpdateWithTime(start, 0, strafe)
	p := e.UpdateWithTime(start.Add(2*time.Second), 0, strafe)
	// Facing -X, robot-left is field -Y.
	test.That(t, p.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, p.Y, test.ShouldAlmostEqual, -2, 1e-9)
	test.That(t, e.LastStates(), test.ShouldResemble, strafe)
}

func TestPoseIsASnapshot(t *testing.T) {
	clk := clock.NewMock()
	e := New(Pose{}, 0, clk)
	before := e.Pose()
	e.Update(0, allModules(swervemodule.State{Speed: 1}))
	clk.Add(time.Second)
	e.Update(0, allModules(swervemodule.State{Speed: 1}))
	test.That(t, before, test.ShouldResemble, Pose{})
	test.That(t, e.Pose().X, test.ShouldAlmostEqual, 1)
}
