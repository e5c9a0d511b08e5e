// Command picotest spins each channel of a Pico-BLDC board in turn and prints its
// telemetry, for checking the wiring of a drive or steering board.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/picobldc"
)

func main() {
	device := flag.String("device", "/dev/i2c-1", "I2C bus device")
	addr := flag.Int("addr", 0x5e, "board address")
	power := flag.Float64("power", 0.1, "fraction of full output")
	flag.Parse()

	logger := golog.NewDevelopmentLogger("picotest")
	pico, err := picobldc.New(*device, *addr, logger)
	if err != nil {
		logger.Fatalw("failed to open board", "error", err)
	}
	defer pico.Close()
	fmt.Println("Created PicoBLDC object. Enabling watchdog...")

	if err := pico.SetWatchdog(time.Second); err != nil {
		logger.Fatalw("failed to enable watchdog", "error", err)
	}
	fmt.Println("Watchdog enabled.")

	for ch := 0; ch < picobldc.NumChannels; ch++ {
		c, err := pico.Channel(ch)
		if err != nil {
			logger.Errorw("bad channel", "error", err)
			os.Exit(1)
		}
		for i := 0; i < 4; i++ {
			if err := c.SetPercentOutput(*power); err != nil {
				logger.Warnw("failed to set output", "channel", ch, "error", err)
			}
			velocity, _ := c.Velocity()
			position, _ := c.Position()
			battV, _ := pico.BattVolts()
			current, _ := pico.CurrentAmps()
			tempC, _ := pico.TemperatureC()
			status, _ := pico.Status()
			fmt.Printf("ch%d v=%.0f pos=%.0f %.1fC %.2fV %.3fA Status=%x\n",
				ch, velocity, position, tempC, battV, current, status)
			time.Sleep(500 * time.Millisecond)
		}
		if err := c.SetPercentOutput(0); err != nil {
			logger.Warnw("failed to stop channel", "channel", ch, "error", err)
		}
	}
}
