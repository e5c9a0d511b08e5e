// Package chassis holds the physical description of the robot: geometry, gearing, motor
// model and where each module's devices are wired.
package chassis

import (
	"io/ioutil"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/bno08x"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/headingholder"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

type ModuleConfig struct {
	Name string  `yaml:"name"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	// Absolute encoder reading, in degrees, when the wheel points straight ahead.
	AngleOffset float64 `yaml:"angle_offset"`

	DriveChannel int `yaml:"drive_channel"`
	SteerChannel int `yaml:"steer_channel"`
	EncoderPort  int `yaml:"encoder_port"`
}

func (m ModuleConfig) Position() r2.Point {
	return r2.Point{X: m.X, Y: m.Y}
}

type BusConfig struct {
	I2CDevice      string `yaml:"i2c_device"`
	DriveBoardAddr int    `yaml:"drive_board_addr"`
	SteerBoardAddr int    `yaml:"steer_board_addr"`
	MuxAddr        int    `yaml:"mux_addr"`
	// periph bus name for the absolute encoders, "" for the default bus.
	EncoderBus string `yaml:"encoder_bus"`
	IMUPort    string `yaml:"imu_port"`

	// Battery monitor; an address of 0 means read the battery from the drive board.
	PowerMonitorAddr int     `yaml:"power_monitor_addr"`
	PowerMonitorPort int     `yaml:"power_monitor_port"`
	ShuntOhms        float64 `yaml:"shunt_ohms"`
	MaxCurrent       float64 `yaml:"max_current"`
}

type Config struct {
	MaxSpeed           float64                  `yaml:"max_speed"`
	MaxAngularSpeed    float64                  `yaml:"max_angular_speed"`
	WheelCircumference float64                  `yaml:"wheel_circumference"`
	DriveGearRatio     float64                  `yaml:"drive_gear_ratio"`
	AngleGearRatio     float64                  `yaml:"angle_gear_ratio"`
	NominalVoltage     float64                  `yaml:"nominal_voltage"`
	InvertGyro         bool                     `yaml:"invert_gyro"`
	Feedforward        swervemodule.Feedforward `yaml:"drive_feedforward"`
	HeadingHold        headingholder.Gains      `yaml:"heading_hold"`
	Modules            []ModuleConfig           `yaml:"modules"`
	Bus                BusConfig                `yaml:"bus"`
}

func Default() Config {
	positions := DefaultPositions()
	offsets := [4]float64{37.35, 10.45, 38.75, 58.88}
	c := Config{
		MaxSpeed:           4.5,
		MaxAngularSpeed:    11.5,
		WheelCircumference: WheelCircumM,
		DriveGearRatio:     6.86,
		AngleGearRatio:     12.8,
		NominalVoltage:     12,
		Feedforward:        swervemodule.Feedforward{KS: 0.667, KV: 2.44, KA: 0.27},
		HeadingHold:        headingholder.Gains{Enabled: true, KP: 0.05, KI: 0.02, MaxIntegral: 5},
		Bus: BusConfig{
			I2CDevice:      "/dev/i2c-1",
			DriveBoardAddr: 0x5e,
			SteerBoardAddr: 0x5f,
			MuxAddr:        0x70,
			IMUPort:        bno08x.DefaultDevice,

			PowerMonitorAddr: 0x41,
			PowerMonitorPort: 6,
			ShuntOhms:        0.1,
			MaxCurrent:       2,
		},
	}
	for i := range positions {
		c.Modules = append(c.Modules, ModuleConfig{
			Name:         ModuleNames[i],
			X:            positions[i].X,
			Y:            positions[i].Y,
			AngleOffset:  offsets[i],
			DriveChannel: i,
			SteerChannel: i,
			EncoderPort:  i,
		})
	}
	return c
}

// Load reads the YAML file at path over the defaults.  A missing file is not an error;
// the defaults are used as they are.
func Load(path string) (Config, error) {
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		c := Default()
		return c, c.Validate()
	}
	if err != nil {
		return Config{}, errors.Wrap(err, "read chassis config")
	}
	return Parse(data)
}

// Parse overlays YAML data onto the defaults and validates the result.  A modules list,
// if present, replaces the default one entirely.
func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "parse chassis config")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// WriteInUse records the configuration actually in effect, for later inspection.
func (c Config) WriteInUse(path string) error {
	data, err := yaml.Marshal(&c)
	if err != nil {
		return errors.Wrap(err, "marshal chassis config")
	}
	return errors.Wrap(ioutil.WriteFile(path, data, 0666), "write chassis config")
}

// Validate reports every problem with the configuration, not just the first.
func (c Config) Validate() error {
	err := c.Limits().Validate()
	if !(c.MaxAngularSpeed > 0) {
		err = multierr.Append(err, errors.Wrapf(swervemodule.ErrInvalidConfiguration, "max angular speed %v", c.MaxAngularSpeed))
	}
	if len(c.Modules) != 4 {
		return multierr.Append(err, errors.Wrapf(swervemodule.ErrInvalidConfiguration, "need 4 modules, have %d", len(c.Modules)))
	}
	seen := map[r2.Point]string{}
	for i, m := range c.Modules {
		err = multierr.Append(err, errors.Wrapf(c.ModuleConstants(i).Validate(), "module %d (%s)", i, m.Name))
		if math.IsNaN(m.X) || math.IsNaN(m.Y) || math.IsInf(m.X, 0) || math.IsInf(m.Y, 0) {
			err = multierr.Append(err, errors.Wrapf(swervemodule.ErrInvalidConfiguration, "module %d (%s) position", i, m.Name))
		}
		if other, ok := seen[m.Position()]; ok {
			err = multierr.Append(err, errors.Wrapf(swervemodule.ErrInvalidConfiguration, "module %d (%s) at the same position as %s", i, m.Name, other))
		}
		seen[m.Position()] = m.Name
		// Each motor board has four channels; the mux has eight ports.
		for _, ch := range []int{m.DriveChannel, m.SteerChannel} {
			if ch < 0 || ch > 3 {
				err = multierr.Append(err, errors.Wrapf(swervemodule.ErrInvalidConfiguration, "module %d (%s) channel %d", i, m.Name, ch))
			}
		}
		if m.EncoderPort < 0 || m.EncoderPort > 7 {
			err = multierr.Append(err, errors.Wrapf(swervemodule.ErrInvalidConfiguration, "module %d (%s) encoder port %d", i, m.Name, m.EncoderPort))
		}
	}
	if b := c.Bus; b.PowerMonitorAddr != 0 {
		if b.PowerMonitorPort < 0 || b.PowerMonitorPort > 7 {
			err = multierr.Append(err, errors.Wrapf(swervemodule.ErrInvalidConfiguration, "power monitor port %d", b.PowerMonitorPort))
		}
		if !(b.ShuntOhms > 0) || !(b.MaxCurrent > 0) {
			err = multierr.Append(err, errors.Wrapf(swervemodule.ErrInvalidConfiguration, "power monitor shunt %v ohms, max current %v A", b.ShuntOhms, b.MaxCurrent))
		}
	}
	return err
}

// ModuleConstants derives module i's calibration from the shared gearing and its own
// encoder offset.
func (c Config) ModuleConstants(i int) swervemodule.Constants {
	return swervemodule.Constants{
		DriveGearRatio:     c.DriveGearRatio,
		AngleGearRatio:     c.AngleGearRatio,
		WheelCircumference: c.WheelCircumference,
		AngleOffset:        c.Modules[i].AngleOffset,
	}
}

func (c Config) Limits() swervemodule.Limits {
	return swervemodule.Limits{
		MaxSpeed:       c.MaxSpeed,
		NominalVoltage: c.NominalVoltage,
		Feedforward:    c.Feedforward,
	}
}

func (c Config) Positions() [4]r2.Point {
	var p [4]r2.Point
	for i := range p {
		p[i] = c.Modules[i].Position()
	}
	return p
}
