// Package ina219 reads battery voltage and current from an INA219 power monitor sitting
// behind the I2C multiplexer.
package ina219

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/mux"
)

const (
	Addr1 = 0x41
	Addr2 = 0x44

	RegConfig      = 0
	RegShuntV      = 1
	RegBusV        = 2
	RegPower       = 3
	RegCurrent     = 4
	RegCalibration = 5

	BusVoltageLSB = 0.004
)

type Interface interface {
	Configure(shuntOhms float64, maxCurrent float64) error
	ReadBusVoltage() (float64, error)
	ReadCurrent() (float64, error)
	ReadPower() (float64, error)
}

type port interface {
	// Read reads len(buf) bytes from the device.
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) (err error)
	Close() error
}

type INA219 struct {
	currentLSB float64
	dev        port
	mux        mux.Interface
	muxPort    int
	logger     golog.Logger
}

var _ Interface = (*INA219)(nil)

// NewI2C opens the monitor at addr, reached through port muxPort of m.
func NewI2C(deviceFile string, addr int, m mux.Interface, muxPort int, logger golog.Logger) (*INA219, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "open ina219 at %#x", addr)
	}
	return newINA219(dev, m, muxPort, logger), nil
}

func newINA219(dev port, m mux.Interface, muxPort int, logger golog.Logger) *INA219 {
	return &INA219{
		dev:     dev,
		mux:     m,
		muxPort: muxPort,
		logger:  logger.Named("ina219"),
	}
}

// Close releases the device.  The multiplexer belongs to the caller.
func (m *INA219) Close() error {
	return errors.Wrap(m.dev.Close(), "close ina219")
}

// Configure sets the calibration so that the current register reads in steps of
// maxCurrent/2^15.
func (m *INA219) Configure(shuntOhms float64, maxCurrent float64) error {
	if !(shuntOhms > 0) || !(maxCurrent > 0) {
		return errors.Errorf("bad ina219 calibration: shunt %v ohms, max current %v A", shuntOhms, maxCurrent)
	}
	m.currentLSB = maxCurrent / (1 << 15)
	cval := CalculateCalibrationValue(m.currentLSB, shuntOhms)
	m.logger.Debugw("calibrating", "value", cval)
	return m.mux.Do(m.muxPort, func() error {
		return errors.Wrap(m.dev.WriteReg(RegCalibration, []byte{byte(cval >> 8), byte(cval)}), "write ina219 calibration")
	})
}

func (m *INA219) ReadBusVoltage() (float64, error) {
	raw, err := m.Read16(RegBusV)
	shifted := raw >> 3
	return float64(shifted) * BusVoltageLSB, err
}

// ReadCurrent is negative while the battery is charging.
func (m *INA219) ReadCurrent() (float64, error) {
	raw, err := m.Read16(RegCurrent)
	return float64(int16(raw)) * m.currentLSB, err
}

func (m *INA219) ReadPower() (float64, error) {
	raw, err := m.Read16(RegPower)
	return float64(raw) * m.currentLSB * 20, err
}

func (m *INA219) Read16(reg byte) (uint16, error) {
	var buf [2]byte
	err := m.mux.Do(m.muxPort, func() error {
		return m.dev.ReadReg(reg, buf[:])
	})
	if err != nil {
		return 0, errors.Wrapf(err, "read ina219 register %d", reg)
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

func CalculateCalibrationValue(currentLSB float64, shuntOhms float64) int16 {
	return int16(0.04096 / (currentLSB * shuntOhms))
}
