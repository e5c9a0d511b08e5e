package hardware

import (
	"context"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

type Interface interface {
	// Start runs any background readers and returns once the sensors are reporting.
	Start(ctx context.Context) error

	// Modules returns each module's actuators and absolute encoder, in chassis order.
	Modules() [4]swervemodule.IO
	Heading() HeadingSensor

	BatteryVolts() (float64, error)
	// BatteryAmps is the current drawn from the battery.
	BatteryAmps() (float64, error)

	// StopMotors zeroes every drive output.  Steering is left where it is.
	StopMotors() error
	Shutdown() error
}

// HeadingSensor reports the robot's yaw in degrees, anti-clockwise positive, [0, 360).
type HeadingSensor interface {
	Yaw() (float64, error)
	// Zero makes the current yaw read as 0.
	Zero() error
}
