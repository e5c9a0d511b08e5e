package chassis

import (
	"io/ioutil"
	"math"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/bno08x"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

func TestDefault(t *testing.T) {
	c := Default()
	test.That(t, c.Validate(), test.ShouldBeNil)
	test.That(t, c.Modules, test.ShouldHaveLength, 4)

	offsets := []float64{37.35, 10.45, 38.75, 58.88}
	for i, m := range c.Modules {
		test.That(t, m.Name, test.ShouldEqual, ModuleNames[i])
		test.That(t, c.ModuleConstants(i).AngleOffset, test.ShouldEqual, offsets[i])
		test.That(t, c.ModuleConstants(i).WheelCircumference, test.ShouldAlmostEqual, 0.1016*math.Pi)
	}
	test.That(t, c.Positions(), test.ShouldResemble, DefaultPositions())
	test.That(t, TurningRadius(c.Positions()), test.ShouldAlmostEqual, 0.3*math.Sqrt2)
	test.That(t, c.Limits().MaxSpeed, test.ShouldEqual, 4.5)
	test.That(t, c.Bus.IMUPort, test.ShouldEqual, bno08x.DefaultDevice)
}

func TestParseOverlaysDefaults(t *testing.T) {
	c, err := Parse([]byte(`
max_speed: 3
invert_gyro: true
drive_feedforward:
  ks: 0.5
  kv: 2
heading_hold:
  enabled: false
bus:
  imu_port: /dev/ttyUSB0
`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.MaxSpeed, test.ShouldEqual, 3)
	test.That(t, c.InvertGyro, test.ShouldBeTrue)
	// Nested settings not mentioned keep their defaults.
	test.That(t, c.Feedforward, test.ShouldResemble, swervemodule.Feedforward{KS: 0.5, KV: 2, KA: 0.27})
	test.That(t, c.HeadingHold.Enabled, test.ShouldBeFalse)
	test.That(t, c.HeadingHold.KP, test.ShouldEqual, 0.05)
	test.That(t, c.Bus.IMUPort, test.ShouldEqual, "/dev/ttyUSB0")
	test.That(t, c.Bus.MuxAddr, test.ShouldEqual, 0x70)
	test.That(t, c.DriveGearRatio, test.ShouldEqual, 6.86)
	test.That(t, c.Modules, test.ShouldHaveLength, 4)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("max_sped: 3\n"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	c := Default()
	c.MaxSpeed = 0
	c.DriveGearRatio = -1
	c.Modules[1].X = c.Modules[0].X
	c.Modules[1].Y = c.Modules[0].Y
	c.Modules[3].SteerChannel = 9
	c.Bus.ShuntOhms = 0

	err := c.Validate()
	test.That(t, errors.Is(err, swervemodule.ErrInvalidConfiguration), test.ShouldBeTrue)
	for _, msg := range []string{"max speed", "drive gear ratio", "same position as front-left", "channel 9", "power monitor shunt"} {
		test.That(t, err.Error(), test.ShouldContainSubstring, msg)
	}

	// Without a power monitor its settings are not checked.
	c = Default()
	c.Bus.PowerMonitorAddr = 0
	c.Bus.PowerMonitorPort = 42
	test.That(t, c.Validate(), test.ShouldBeNil)

	c = Default()
	c.Modules = c.Modules[:3]
	err = c.Validate()
	test.That(t, err.Error(), test.ShouldContainSubstring, "need 4 modules, have 3")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	c, err := Load(filepath.Join(dir, "missing.yaml"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c, test.ShouldResemble, Default())

	path := filepath.Join(dir, "swerve.yaml")
	test.That(t, ioutil.WriteFile(path, []byte("angle_gear_ratio: 0\n"), 0666), test.ShouldBeNil)
	_, err = Load(path)
	test.That(t, errors.Is(err, swervemodule.ErrInvalidConfiguration), test.ShouldBeTrue)

	// What is written out loads back unchanged.
	want := Default()
	want.MaxSpeed = 2.5
	want.Modules[2].AngleOffset = 12
	inUse := filepath.Join(dir, "swerve-in-use.yaml")
	test.That(t, want.WriteInUse(inUse), test.ShouldBeNil)
	got, err := Load(inUse)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, want)
}
