// Command joytests prints gamepad events and the drive command they produce.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edaniels/golog"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/joystick"
)

func main() {
	logger := golog.NewDevelopmentLogger("joytests")

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	jDev := os.Getenv("JOYSTICK_DEVICE")
	if jDev == "" {
		jDev = "/dev/input/js0"
	}
	j, err := joystick.Open(jDev)
	if err != nil {
		logger.Fatalw("failed to open joystick", "error", err)
	}

	cfg := chassis.Default()
	sticks := joystick.NewSticks(cfg.MaxSpeed, cfg.MaxAngularSpeed, 0.1)
	events := make(chan *joystick.Event)
	go func() {
		err := j.LoopReadingEvents(ctx, events)
		logger.Infow("joystick loop stopped", "error", err)
	}()
	for je := range events {
		sticks.Apply(je)
		cmd := sticks.Command()
		fmt.Printf("%-16s -> translation=(%.2f, %.2f) m/s rotation=%.2f rad/s zero=%v reset=%v\n",
			je, cmd.Translation.X, cmd.Translation.Y, cmd.Rotation, cmd.ZeroGyro, cmd.ResetOdometry)
	}
}
