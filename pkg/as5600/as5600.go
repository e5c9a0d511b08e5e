// Package as5600 reads the AS5600 12-bit magnetic rotary encoder used as each swerve
// module's absolute steering sensor.  All four encoders share one address, so each sits
// behind its own mux port.
package as5600

import (
	"github.com/pkg/errors"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/mux"
)

const (
	Addr = 0x36

	RegStatus   = 0x0b
	RegRawAngle = 0x0c // 12 bits, big endian across 0x0c/0x0d
	RegAngle    = 0x0e

	StatusMagnetHigh     = 1 << 3
	StatusMagnetLow      = 1 << 4
	StatusMagnetDetected = 1 << 5

	countsPerRevolution = 4096
)

var ErrNoMagnet = errors.New("AS5600 magnet not detected")

// tx is the part of a periph I2C device the encoder needs.
type tx interface {
	Tx(w, r []byte) error
}

type Encoder struct {
	dev  tx
	mux  mux.Interface
	port int
}

// OpenBus initialises periph and opens the named I2C bus ("" for the first one found).
func OpenBus(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph init")
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open I2C bus %q", name)
	}
	return bus, nil
}

// New returns the encoder reached through port on m.
func New(bus i2c.Bus, m mux.Interface, port int) *Encoder {
	return &Encoder{
		dev:  &i2c.Dev{Addr: Addr, Bus: bus},
		mux:  m,
		port: port,
	}
}

// AbsoluteDegrees is the magnet's angle in [0, 360).
func (e *Encoder) AbsoluteDegrees() (float64, error) {
	var raw uint16
	err := e.mux.Do(e.port, func() error {
		status, err := e.read(RegStatus, 1)
		if err != nil {
			return err
		}
		if status[0]&StatusMagnetDetected == 0 {
			return ErrNoMagnet
		}
		b, err := e.read(RegRawAngle, 2)
		if err != nil {
			return err
		}
		raw = (uint16(b[0])<<8 | uint16(b[1])) & 0x0fff
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "AS5600 on mux port %d", e.port)
	}
	return float64(raw) * 360 / countsPerRevolution, nil
}

func (e *Encoder) read(reg byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := e.dev.Tx([]byte{reg}, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
