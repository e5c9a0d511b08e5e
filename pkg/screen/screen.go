// Package screen draws the drivetrain dashboard on the robot's 128x128 TFT.
package screen

import (
	"context"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/edaniels/golog"
	"github.com/fogleman/gg"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/drivetrain"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

const (
	S = 128

	DefaultDevice = "/dev/fb1"
	frameBytes    = S * S * 2
)

// Screen position of each module, front of the robot at the top.
var moduleCentres = [4]gg.Point{
	{X: 32, Y: 32},
	{X: 96, Y: 32},
	{X: 32, Y: 96},
	{X: 96, Y: 96},
}

// LoopUpdatingScreen redraws the latest snapshot twice a second until ctx is done, then
// blanks the screen.
func LoopUpdatingScreen(ctx context.Context, device string, maxSpeed float64, snapshot func() drivetrain.Snapshot, logger golog.Logger) {
	logger = logger.Named("screen")
	f, err := os.OpenFile(device, os.O_RDWR, 0666)
	if err != nil {
		logger.Warnw("failed to open screen, ignoring", "error", err)
		return
	}
	defer f.Close()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			var buf [frameBytes]byte
			_, _ = f.Seek(0, 0)
			_, _ = f.Write(buf[:])
			return
		case <-ticker.C:
		}

		buf := ToRGB565(Render(snapshot(), maxSpeed).Image())
		if _, err := f.Seek(0, 0); err != nil {
			logger.Errorw("screen failure", "error", err)
			return
		}
		for i := 0; i < S; i++ {
			_, err = f.Write(buf[i*2*S : (i+1)*2*S])
			if err != nil {
				logger.Errorw("screen failure", "error", err)
				return
			}
			time.Sleep(10 * time.Microsecond)
		}
	}
}

// Render draws one frame: an arrow per module showing where its wheel points and how
// fast it turns, the pose and the battery.
func Render(snap drivetrain.Snapshot, maxSpeed float64) *gg.Context {
	dc := gg.NewContext(S, S)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	for i, m := range snap.Modules {
		c := moduleCentres[i]
		dc.Push()
		dc.Translate(c.X, c.Y)
		if m.Err != nil {
			DrawWarning(dc)
			dc.Pop()
			continue
		}
		dc.SetRGBA(0.3, 0.3, 0.3, 1)
		dc.DrawCircle(0, 0, 22)
		dc.Stroke()
		drawWheel(dc, m, maxSpeed)
		dc.Pop()
	}

	dc.SetRGBA(1, 0.9, 0, 1)
	dc.DrawStringAnchored(fmt.Sprintf("%.2f,%.2f", snap.Pose.X, snap.Pose.Y), S/2, S/2-6, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.0f°", snap.Pose.Heading), S/2, S/2+6, 0.5, 0.5)

	dc.Push()
	dc.Translate(S-12, 2)
	dc.Scale(0.3, 0.3)
	drawPowerBar(dc, snap.BatteryVolts)
	dc.Pop()
	return dc
}

// drawWheel draws an arrow from the origin along the wheel's heading.  Screen y runs
// down and the robot's front is up, so a heading of 0 points up the screen.
func drawWheel(dc *gg.Context, m drivetrain.ModuleTelemetry, maxSpeed float64) {
	length := 6.0
	if maxSpeed > 0 {
		length += 14 * m.Speed / maxSpeed
	}
	dc.Push()
	dc.Rotate(-gg.Radians(m.IntegratedHeading))
	if m.SteerMode == swervemodule.SteerHolding {
		dc.SetRGBA(0.5, 0.5, 1, 1)
	} else {
		dc.SetRGBA(0.2, 1, 0.2, 1)
	}
	dc.SetLineWidth(3)
	dc.DrawLine(0, 0, 0, -length)
	dc.Stroke()
	dc.DrawRegularPolygon(3, 0, -length, 4, 0)
	dc.Fill()
	dc.Pop()
}

// ToRGB565 converts a 128x128 image into the framebuffer's format: 16-bit little-endian
// RGB565, with the panel mounted rotated a quarter turn.
func ToRGB565(img image.Image) []byte {
	buf := make([]byte, frameBytes)
	for y := 0; y < S; y++ {
		for x := 0; x < S; x++ {
			r, g, b, _ := img.At(x, y).RGBA() // 16-bit pre-multiplied

			rb := byte(r >> (16 - 5))
			gb := byte(g >> (16 - 6)) // Green has 6 bits
			bb := byte(b >> (16 - 5))

			buf[(S-1-y)*2+x*S*2+1] = (rb << 3) | (gb >> 3)
			buf[(S-1-y)*2+x*S*2] = bb | (gb << 5)
		}
	}
	return buf
}

const (
	minCellVoltage = 3
	maxCellVoltage = 4.2
)

// ChargeFraction estimates how full the pack is from its voltage, guessing the cell
// count from the voltage.
func ChargeFraction(voltage float64) float64 {
	var cellVoltage float64
	switch {
	case voltage > 13:
		cellVoltage = voltage / 4
	case voltage > 9:
		cellVoltage = voltage / 3
	default:
		cellVoltage = voltage / 2
	}
	return (cellVoltage - minCellVoltage) / (maxCellVoltage - minCellVoltage)
}

func drawPowerBar(dc *gg.Context, voltage float64) {
	charge := ChargeFraction(voltage)

	// Draw the larger power bar at the bottom. Colour depends on charge level.
	dc.SetRGBA(1, 0.9, 0, 1)
	if charge < 0.1 {
		dc.SetRGBA(1, 0.2, 0, 1)
	}
	dc.DrawRectangle(0, 70, 30, 10)
	for n := 2; n < 13; n++ {
		if charge >= (float64(n) / 13) {
			dc.DrawRectangle(2, 75-float64(n)*5, 26, 3)
		}
	}
	dc.Fill()
	dc.DrawString(fmt.Sprintf("%.1fv", voltage), -2, 93)
}

func DrawWarning(dc *gg.Context) {
	dc.SetRGB(1, 0.2, 0)
	dc.DrawRegularPolygon(3, 0, 0, 14, 0)
	dc.Fill()
	dc.SetRGBA(0, 0, 0, 0.9)
	dc.DrawString("!", -3, 3)
}
