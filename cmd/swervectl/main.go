// Package main drives the swerve chassis from a gamepad.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/angle"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/drivetrain"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/headingholder"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/odometry"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/screen"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/sound"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/tunable"
)

const (
	flagConfig        = "config"
	flagDummy         = "dummy"
	flagDebug         = "debug"
	flagFieldRelative = "field-relative"
	flagOpenLoop      = "open-loop"
	flagRate          = "rate"
	flagJoystick      = "joystick"
	flagScreen        = "screen"
	flagDeadband      = "deadband"
	flagInUse         = "write-config"
	flagSounds        = "sounds"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:  "swervectl",
		Usage: "drive the swerve chassis",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "/etc/swerve/chassis.yaml",
				Usage:   "load chassis configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDummy,
				Usage: "use simulated hardware",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			cfg := zap.NewDevelopmentConfig()
			if !c.Bool(flagDebug) {
				cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
			}
			l, err := cfg.Build()
			if err != nil {
				return err
			}
			logger = l.Sugar().Named("swervectl")
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "drive",
				Usage: "drive from the gamepad until interrupted",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagFieldRelative,
						Value: true,
						Usage: "interpret the left stick relative to the field",
					},
					&cli.BoolFlag{
						Name:  flagOpenLoop,
						Value: true,
						Usage: "drive the wheels with a direct output fraction",
					},
					&cli.Float64Flag{
						Name:  flagRate,
						Value: 50,
						Usage: "control loop rate in Hz",
					},
					&cli.Float64Flag{
						Name:  flagDeadband,
						Value: 0.1,
						Usage: "stick deadband as a fraction of full deflection",
					},
					&cli.StringFlag{
						Name:    flagJoystick,
						EnvVars: []string{"JOYSTICK_DEVICE"},
						Value:   "/dev/input/js0",
					},
					&cli.StringFlag{
						Name:  flagScreen,
						Value: screen.DefaultDevice,
					},
					&cli.StringFlag{
						Name:  flagSounds,
						Value: "/sounds",
						Usage: "directory holding the WAV cues",
					},
					&cli.StringFlag{
						Name:  flagInUse,
						Value: "/tmp/chassis-in-use.yaml",
						Usage: "record the configuration in use to `FILE`",
					},
				},
				Action: func(c *cli.Context) error {
					return drive(c, logger)
				},
			},
			{
				Name:  "encoders",
				Usage: "print absolute encoder readings for calibrating angle offsets",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "samples",
						Value: 10,
					},
				},
				Action: func(c *cli.Context) error {
					return printEncoders(c, logger)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openHardware(c *cli.Context, cfg chassis.Config, logger golog.Logger) (hardware.Interface, error) {
	if c.Bool(flagDummy) {
		logger.Info("using simulated hardware")
		return hardware.NewDummy(cfg, clock.New(), logger)
	}
	return hardware.New(cfg, logger)
}

func drive(c *cli.Context, logger golog.Logger) (err error) {
	logger.Infow("starting", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	registerSignalHandlers(cancel, logger)

	cfg, err := chassis.Load(c.String(flagConfig))
	if err != nil {
		return err
	}
	if err := cfg.WriteInUse(c.String(flagInUse)); err != nil {
		logger.Warnw("failed to record config", "error", err)
	}

	hw, err := openHardware(c, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("zeroing motors for shut down")
		err = multierr.Append(err, hw.Shutdown())
	}()
	if err := hw.Start(ctx); err != nil {
		return err
	}

	dt, err := drivetrain.New(cfg, hw, clock.New(), logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dt.Stop())
	}()

	player := sound.New(logger)
	defer player.Close()
	playCue := func(name string) {
		player.Play(filepath.Join(c.String(flagSounds), name))
	}

	go screen.LoopUpdatingScreen(ctx, c.String(flagScreen), cfg.MaxSpeed, dt.Snapshot, logger)

	events := initJoystick(ctx, cancel, c.String(flagJoystick), logger)
	if events == nil {
		return ctx.Err()
	}
	sticks := joystick.NewSticks(cfg.MaxSpeed, cfg.MaxAngularSpeed, c.Float64(flagDeadband))

	// D-pad left/right picks a setting, up/down changes it.
	tunables := tunable.New(logger)
	speedPercent := tunables.Create("speed %", 50, 10, 100)
	turnPercent := tunables.Create("turn %", 50, 10, 100)

	holder := headingholder.New(cfg.HeadingHold, cfg.MaxAngularSpeed, clock.New(), logger)
	playCue("swervestart.wav")

	rate := c.Float64(flagRate)
	if rate <= 0 {
		return errors.Errorf("bad loop rate %v", rate)
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()
	watchdog := time.NewTicker(5 * time.Second)
	defer watchdog.Stop()

	fieldRelative, openLoop := c.Bool(flagFieldRelative), c.Bool(flagOpenLoop)
	for {
		select {
		case <-ctx.Done():
			logger.Info("context done, shutting down")
			return nil
		case event, ok := <-events:
			if !ok {
				logger.Error("joystick events channel closed")
				return nil
			}
			logger.Debugw("joy", "event", event)
			if event.Type == joystick.EventTypeAxis {
				switch {
				case event.Number == joystick.AxisDPadX && event.Value > 0:
					tunables.SelectNext()
				case event.Number == joystick.AxisDPadX && event.Value < 0:
					tunables.SelectPrev()
				case event.Number == joystick.AxisDPadY && event.Value < 0:
					tunables.Adjust(10)
				case event.Number == joystick.AxisDPadY && event.Value > 0:
					tunables.Adjust(-10)
				}
			}
			sticks.Apply(event)
		case <-watchdog.C:
			snap := dt.Snapshot()
			logger.Infow("main loop still running", "pose", snap.Pose, "battery", snap.BatteryVolts)
		case <-ticker.C:
			cmd := sticks.Command()
			if cmd.ZeroGyro {
				logger.Info("share pressed: zeroing gyro")
				if err := dt.ZeroGyro(); err != nil {
					logger.Errorw("failed to zero gyro", "error", err)
				}
				holder.Release()
				playCue("zerogyro.wav")
			}
			if cmd.ResetOdometry {
				logger.Info("PS pressed: resetting odometry")
				if err := dt.ResetOdometry(odometry.Pose{}); err != nil {
					logger.Errorw("failed to reset odometry", "error", err)
				}
				playCue("resetpose.wav")
			}
			translation := cmd.Translation.Mul(speedPercent.Fraction())
			rotation := cmd.Rotation * turnPercent.Fraction()
			if yaw, err := dt.Yaw(); err == nil {
				rotation = holder.Rotation(rotation, translation.Norm() > 0, yaw)
			}
			if err := dt.Drive(translation, rotation, fieldRelative, openLoop); err != nil {
				logger.Errorw("drive failed", "error", err)
			}
			if _, err := dt.Periodic(); err != nil {
				logger.Debugw("periodic", "error", err)
			}
		}
	}
}

// initJoystick waits for the gamepad to appear and then reads it in the background.  It
// returns nil if ctx is done first.
func initJoystick(ctx context.Context, cancel context.CancelFunc, device string, logger golog.Logger) chan *joystick.Event {
	events := make(chan *joystick.Event, 8)
	firstLog := true
	for {
		j, err := joystick.Open(device)
		if err != nil {
			if firstLog {
				logger.Warnw("waiting for joystick", "error", err)
				firstLog = false
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		logger.Info("opened joystick")
		go func() {
			defer cancel()
			err := j.LoopReadingEvents(ctx, events)
			logger.Errorw("joystick failed", "error", err)
		}()
		return events
	}
}

func registerSignalHandlers(cancel context.CancelFunc, logger golog.Logger) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		logger.Infow("signal", "signal", s)
		cancel()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()
}

func printEncoders(c *cli.Context, logger golog.Logger) error {
	cfg, err := chassis.Load(c.String(flagConfig))
	if err != nil {
		return err
	}
	hw, err := openHardware(c, cfg, logger)
	if err != nil {
		return err
	}
	defer hw.Shutdown()

	// Line the wheels up facing forward, bevel gears to the left, before reading.  Each
	// reading is the angle offset for that module.
	modules := hw.Modules()
	for n := 0; n < c.Int("samples"); n++ {
		for i, io := range modules {
			deg, err := io.Encoder.AbsoluteDegrees()
			if err != nil {
				fmt.Printf("%-12s error: %v\n", cfg.Modules[i].Name, err)
				continue
			}
			fmt.Printf("%-12s %7.2f° (configured offset %7.2f°, error %6.2f°)\n",
				cfg.Modules[i].Name, deg, cfg.Modules[i].AngleOffset,
				angle.Delta(cfg.Modules[i].AngleOffset, deg).Float())
		}
		fmt.Println()
		time.Sleep(500 * time.Millisecond)
	}
	return nil
}
