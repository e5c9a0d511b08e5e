package screen

import (
	"image"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/drivetrain"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/odometry"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

func TestToRGB565(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, S, S))
	img.Set(0, S-1, color.RGBA{R: 0xff, A: 0xff})
	img.Set(1, S-1, color.RGBA{G: 0xff, A: 0xff})
	img.Set(0, S-2, color.RGBA{B: 0xff, A: 0xff})

	buf := ToRGB565(img)
	test.That(t, buf, test.ShouldHaveLength, S*S*2)
	// Bottom-left pixel is first in the framebuffer.
	test.That(t, buf[0:2], test.ShouldResemble, []byte{0x00, 0xf8})
	test.That(t, buf[2*S:2*S+2], test.ShouldResemble, []byte{0xe0, 0x07})
	test.That(t, buf[2:4], test.ShouldResemble, []byte{0x1f, 0x00})
	test.That(t, buf[4], test.ShouldEqual, 0)
}

func TestChargeFraction(t *testing.T) {
	test.That(t, ChargeFraction(12.6), test.ShouldAlmostEqual, 1)
	test.That(t, ChargeFraction(9.9), test.ShouldAlmostEqual, 0.25)
	test.That(t, ChargeFraction(16.8), test.ShouldAlmostEqual, 1)
	test.That(t, ChargeFraction(6), test.ShouldAlmostEqual, 0)
}

func TestRender(t *testing.T) {
	snap := drivetrain.Snapshot{
		Pose:         odometry.Pose{X: 1.5, Y: -0.25, Heading: 45},
		BatteryVolts: 11.1,
	}
	for i := range snap.Modules {
		snap.Modules[i] = drivetrain.ModuleTelemetry{
			Speed:             2,
			IntegratedHeading: float64(90 * i),
			SteerMode:         swervemodule.SteerActive,
		}
	}
	snap.Modules[3].Err = errors.New("encoder missing")

	dc := Render(snap, 4.5)
	bounds := dc.Image().Bounds()
	test.That(t, bounds.Dx(), test.ShouldEqual, S)
	test.That(t, bounds.Dy(), test.ShouldEqual, S)

	// The front left wheel points forward, so its arrow runs up from the module centre.
	r, g, b, _ := dc.Image().At(32, 32-10).RGBA()
	test.That(t, g, test.ShouldBeGreaterThan, r)
	test.That(t, g, test.ShouldBeGreaterThan, b)
}
