// Package hardware assembles the robot's devices into the actuators, encoders and heading
// sensor the drivetrain needs.  New talks to the real boards; NewDummy simulates them.
package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/periph/conn/i2c"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/as5600"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/bno08x"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/ina219"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/mux"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/picobldc"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

// The boards stop their motors if the control loop goes quiet for this long.
const WatchdogTimeout = 250 * time.Millisecond

type Hardware struct {
	logger golog.Logger

	driveBoard *picobldc.PicoBLDC
	steerBoard *picobldc.PicoBLDC
	mux        *mux.Mux
	encoderBus i2c.BusCloser
	imu        *bno08x.BNO08X
	power      *ina219.INA219 // nil without a power monitor

	driveChannels [4]*picobldc.Channel
	modules       [4]swervemodule.IO

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Interface = (*Hardware)(nil)

// New opens every device named in cfg.  On failure, whatever was opened is closed again.
func New(cfg chassis.Config, logger golog.Logger) (_ *Hardware, err error) {
	logger = logger.Named("hw")
	h := &Hardware{logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Append(err, h.close())
		}
	}()

	if h.driveBoard, err = picobldc.New(cfg.Bus.I2CDevice, cfg.Bus.DriveBoardAddr, logger); err != nil {
		return nil, errors.Wrap(err, "drive board")
	}
	if h.steerBoard, err = picobldc.New(cfg.Bus.I2CDevice, cfg.Bus.SteerBoardAddr, logger); err != nil {
		return nil, errors.Wrap(err, "steer board")
	}
	for _, b := range []*picobldc.PicoBLDC{h.driveBoard, h.steerBoard} {
		if err = b.SetWatchdog(WatchdogTimeout); err != nil {
			return nil, err
		}
	}
	if h.mux, err = mux.New(cfg.Bus.I2CDevice, cfg.Bus.MuxAddr, logger); err != nil {
		return nil, err
	}
	if b := cfg.Bus; b.PowerMonitorAddr != 0 {
		if h.power, err = ina219.NewI2C(b.I2CDevice, b.PowerMonitorAddr, h.mux, b.PowerMonitorPort, logger); err != nil {
			return nil, err
		}
		if err = h.power.Configure(b.ShuntOhms, b.MaxCurrent); err != nil {
			return nil, err
		}
	}
	if h.encoderBus, err = as5600.OpenBus(cfg.Bus.EncoderBus); err != nil {
		return nil, err
	}

	for i, m := range cfg.Modules {
		drive, err := h.driveBoard.Channel(m.DriveChannel)
		if err != nil {
			return nil, errors.Wrapf(err, "module %s drive", m.Name)
		}
		steer, err := h.steerBoard.Channel(m.SteerChannel)
		if err != nil {
			return nil, errors.Wrapf(err, "module %s steer", m.Name)
		}
		h.driveChannels[i] = drive
		h.modules[i] = swervemodule.IO{
			Drive:   drive,
			Steer:   steer,
			Encoder: as5600.New(h.encoderBus, h.mux, m.EncoderPort),
		}
	}

	h.imu = bno08x.New(cfg.Bus.IMUPort, clock.New(), logger)
	return h, nil
}

func (h *Hardware) Start(ctx context.Context) error {
	ctx, h.cancel = context.WithCancel(ctx)
	start := time.Now()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.imu.LoopReadingReports(ctx)
	}()
	report, err := h.imu.WaitForReportAfter(start)
	if err != nil {
		return errors.Wrap(err, "waiting for IMU")
	}
	h.logger.Infow("IMU reporting", "report", report)
	return nil
}

func (h *Hardware) Modules() [4]swervemodule.IO {
	return h.modules
}

func (h *Hardware) Heading() HeadingSensor {
	return h.imu
}

func (h *Hardware) BatteryVolts() (float64, error) {
	if h.power != nil {
		return h.power.ReadBusVoltage()
	}
	return h.driveBoard.BattVolts()
}

func (h *Hardware) BatteryAmps() (float64, error) {
	if h.power != nil {
		return h.power.ReadCurrent()
	}
	return h.driveBoard.CurrentAmps()
}

func (h *Hardware) StopMotors() error {
	var err error
	for _, c := range h.driveChannels {
		err = multierr.Append(err, c.SetPercentOutput(0))
	}
	return err
}

func (h *Hardware) Shutdown() error {
	h.logger.Info("shutting down")
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	return h.close()
}

func (h *Hardware) close() error {
	var err error
	if h.driveBoard != nil {
		err = multierr.Append(err, h.driveBoard.Close())
	}
	if h.steerBoard != nil {
		err = multierr.Append(err, h.steerBoard.Close())
	}
	if h.power != nil {
		err = multierr.Append(err, h.power.Close())
	}
	if h.mux != nil {
		err = multierr.Append(err, h.mux.Close())
	}
	if h.encoderBus != nil {
		err = multierr.Append(err, h.encoderBus.Close())
	}
	return err
}
