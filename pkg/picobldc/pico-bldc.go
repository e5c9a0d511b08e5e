// Package picobldc drives the Pico-BLDC motor controller board over I2C.  Each board
// runs four motors; every channel can be driven as a raw output fraction, a velocity
// loop with feed-forward or a position loop, all in the motor encoder's native ticks.
package picobldc

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"
)

const NumChannels = 4

// PerChannel holds one value for each of the board's channels.
type PerChannel[T any] [NumChannels]T

type Register byte

const (
	RegCtrl Register = iota
	RegStatus
	RegWatchdogTimeout
	RegFaultCount

	RegCalib // non-zero once the board has been calibrated

	RegBattV // LSB=4mV
	RegCurrent
	RegTemperature // LSB = 0.01C
)

// Each channel has a block of registers starting at chanBase + ch*chanStride.
const (
	chanBase   = 0x10
	chanStride = 0x08
)

const (
	chanRegMode        = iota
	chanRegSetpoint    // two registers, signed 32-bit, high word first
	_
	chanRegFeedforward // signed, full scale 32767
	chanRegVelocity    // signed, ticks/100ms, read only
	chanRegPosition    // raw tick counter, wraps at 16 bits, read only
	chanRegPreset      // two registers; writing moves the position counter
)

func channelReg(ch int, offset int) Register {
	return Register(chanBase + ch*chanStride + offset)
}

type Mode uint16

const (
	ModeOff Mode = iota
	ModePercent
	ModeVelocity
	ModePosition
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModePercent:
		return "percent"
	case ModeVelocity:
		return "velocity"
	case ModePosition:
		return "position"
	}
	return "unknown"
}

const (
	BattVLSB       = 0.004
	CurrentLSB     = 0.0001831054688
	TemperatureLSB = 0.01

	fullScale = math.MaxInt16
)

const (
	RegCtrlEnableI2CControl uint16 = 1 << iota
	RegCtrlRun
	RegCtrlDoCalib
	RegCtrlReset
	RegCtrlWatchdogEnable
)

type StatusFlag uint16

const (
	RegStatusFault StatusFlag = 1 << iota
	RegStatusCalibDone
	RegStatusWatchdogExpired
)

func (s StatusFlag) Fault() bool           { return s&RegStatusFault != 0 }
func (s StatusFlag) WatchdogExpired() bool { return s&RegStatusWatchdogExpired != 0 }

var (
	ErrNotReady = errors.New("Pico-BLDC not ready")
	ErrChannel  = errors.New("no such Pico-BLDC channel")
)

// Bus is the part of an I2C device the board needs; *i2c.Device satisfies it.
type Bus interface {
	Write(buf []byte) error
	ReadReg(reg byte, buf []byte) error
	Close() error
}

type PicoBLDC struct {
	open   func() (Bus, error)
	dev    Bus
	clock  clock.Clock
	logger golog.Logger

	lastConfigWord  uint16
	lastConfigTime  time.Time
	watchdogEnabled bool

	modes    PerChannel[Mode]
	tracker  *DistanceTracker
	channels PerChannel[*Channel]
}

// New opens the board at addr on the given /dev/i2c-N device.
func New(device string, addr int, logger golog.Logger) (*PicoBLDC, error) {
	open := func() (Bus, error) {
		return i2c.Open(&i2c.Devfs{Dev: device}, addr)
	}
	return NewWithBus(open, clock.New(), logger.With("board", addr))
}

// NewWithBus builds a board on top of an arbitrary bus; open is called again to
// reconnect after write failures.
func NewWithBus(open func() (Bus, error), clk clock.Clock, logger golog.Logger) (*PicoBLDC, error) {
	dev, err := open()
	if err != nil {
		return nil, errors.Wrap(err, "open Pico-BLDC")
	}
	p := &PicoBLDC{
		open:   open,
		dev:    dev,
		clock:  clk,
		logger: logger.Named("picobldc"),
	}
	p.tracker = NewDistanceTracker(p)
	for ch := range p.channels {
		p.channels[ch] = &Channel{board: p, ch: ch}
	}
	return p, nil
}

// Channel returns the adapter for one motor channel.
func (p *PicoBLDC) Channel(ch int) (*Channel, error) {
	if ch < 0 || ch >= NumChannels {
		return nil, errors.Wrapf(ErrChannel, "channel %d", ch)
	}
	return p.channels[ch], nil
}

func (p *PicoBLDC) Reset() error {
	p.modes = PerChannel[Mode]{}
	return p.maybeConfigure(true, false)
}

// SetWatchdog makes the board stop its motors if it is not written to for timeout.  Zero
// disables the watchdog.
func (p *PicoBLDC) SetWatchdog(timeout time.Duration) error {
	if timeout == 0 {
		p.watchdogEnabled = false
		return p.maybeConfigure(false, false)
	}

	ms := timeout.Milliseconds()
	if ms > math.MaxUint16 {
		ms = math.MaxUint16
	}
	err := p.writeReg(RegWatchdogTimeout, uint16(ms))
	if err != nil {
		return err
	}

	p.watchdogEnabled = true
	return p.maybeConfigure(false, false)
}

func (p *PicoBLDC) Close() error {
	_ = p.Reset()
	return p.dev.Close()
}

// RawPosition reads one channel's wrapping 16-bit position counter.
func (p *PicoBLDC) RawPosition(ch int) (int16, error) {
	v, err := p.readReg(channelReg(ch, chanRegPosition))
	return int16(v), err
}

func (p *PicoBLDC) rawVelocity(ch int) (int16, error) {
	v, err := p.readReg(channelReg(ch, chanRegVelocity))
	return int16(v), err
}

// command sets a channel's mode, setpoint and feed-forward.  The mode register is only
// written when it changes.
func (p *PicoBLDC) command(ch int, mode Mode, setpoint int32, feedforward int16) error {
	if err := p.maybeConfigure(false, true); err != nil {
		return err
	}
	if p.modes[ch] != mode {
		if err := p.writeReg(channelReg(ch, chanRegMode), uint16(mode)); err != nil {
			return err
		}
		p.logger.Debugw("channel mode", "channel", ch, "from", p.modes[ch], "to", mode)
		p.modes[ch] = mode
	}
	return p.writeRegs(channelReg(ch, chanRegSetpoint),
		uint16(uint32(setpoint)>>16), uint16(uint32(setpoint)), uint16(feedforward))
}

func (p *PicoBLDC) preset(ch int, position int32) error {
	if err := p.writeRegs(channelReg(ch, chanRegPreset), uint16(uint32(position)>>16), uint16(uint32(position))); err != nil {
		return err
	}
	p.tracker.Set(ch, int64(position))
	return nil
}

func (p *PicoBLDC) writeWithRetries(data []byte) error {
	var err error
	for tries := 0; tries < 20; tries++ {
		err = p.dev.Write(data)
		if err == nil {
			if tries > 0 {
				p.logger.Infow("write succeeded after retries", "tries", tries)
			}
			return nil
		}
		p.logger.Warnw("failed to write to Pico-BLDC", "error", err)
		p.clock.Sleep(1 * time.Millisecond)
		_ = p.dev.Close()
		dev, openErr := p.open()
		if openErr != nil {
			continue
		}
		p.dev = dev
	}
	return errors.Wrap(err, "write to Pico-BLDC")
}

func (p *PicoBLDC) maybeConfigure(resetMotorSpeeds bool, enableMotors bool) error {
	// Figure out if the config word has changed.
	var configWord uint16 = RegCtrlEnableI2CControl
	if resetMotorSpeeds {
		configWord |= RegCtrlReset
	}
	if enableMotors {
		configWord |= RegCtrlRun
	}
	if p.watchdogEnabled {
		configWord |= RegCtrlWatchdogEnable
	}

	if configWord == p.lastConfigWord && p.clock.Since(p.lastConfigTime) < 100*time.Millisecond {
		// Skip writing config if we've done it recently.
		return nil
	}

	if p.lastConfigWord == 0 {
		calib, err := p.readReg(RegCalib)
		if err != nil {
			return err
		}
		if calib == 0 {
			// Calibration spins the motors; the robot needs to be on blocks.
			p.logger.Warn("Pico-BLDC not calibrated, running calibration")
			configWord |= RegCtrlDoCalib
		}
	}

	if err := p.writeReg(RegCtrl, configWord); err != nil {
		return err
	}

	if configWord&RegCtrlDoCalib != 0 {
		if err := p.waitForCalibration(10 * time.Second); err != nil {
			return err
		}
	}

	if err := p.writeReg(RegStatus, uint16(RegStatusCalibDone)); err != nil {
		return err
	}

	p.lastConfigTime = p.clock.Now()
	p.lastConfigWord = configWord & (^(RegCtrlReset | RegCtrlDoCalib)) /* not persistent */
	return nil
}

func (p *PicoBLDC) waitForCalibration(timeout time.Duration) error {
	deadline := p.clock.Now().Add(timeout)
	var lastLog time.Time
	for {
		status, err := p.Status()
		if err != nil {
			p.logger.Warnw("failed to read status register", "error", err)
		} else if status&RegStatusCalibDone != 0 {
			p.logger.Info("calibration done")
			return nil
		}
		now := p.clock.Now()
		if now.After(deadline) {
			return errors.Wrapf(ErrNotReady, "calibration still running after %v", timeout)
		}
		if now.Sub(lastLog) > time.Second {
			p.logger.Infow("waiting for calibration to finish", "status", status)
			lastLog = now
		}
		p.clock.Sleep(10 * time.Millisecond)
	}
}

func (p *PicoBLDC) BattVolts() (float64, error) {
	raw, err := p.readReg(RegBattV)
	if err != nil {
		return 0, err
	}
	return float64(raw) * BattVLSB, nil
}

func (p *PicoBLDC) CurrentAmps() (float64, error) {
	raw, err := p.readReg(RegCurrent)
	if err != nil {
		return 0, err
	}
	return float64(raw) * CurrentLSB, nil
}

func (p *PicoBLDC) TemperatureC() (float64, error) {
	raw, err := p.readReg(RegTemperature)
	if err != nil {
		return 0, err
	}
	return float64(int16(raw)) * TemperatureLSB, nil
}

func (p *PicoBLDC) Status() (StatusFlag, error) {
	raw, err := p.readReg(RegStatus)
	if err != nil {
		return 0, err
	}
	return StatusFlag(raw), nil
}

func (p *PicoBLDC) writeReg(reg Register, value uint16) error {
	return p.writeRegs(reg, value)
}

// writeRegs writes consecutive registers in one transaction; the board auto-increments.
func (p *PicoBLDC) writeRegs(reg Register, values ...uint16) error {
	buf := make([]byte, 1, 1+2*len(values))
	buf[0] = byte(reg)
	for _, v := range values {
		buf = binary.BigEndian.AppendUint16(buf, v)
	}
	return p.writeWithRetries(buf)
}

func (p *PicoBLDC) readReg(reg Register) (uint16, error) {
	var buf [2]byte
	err := p.dev.ReadReg(byte(reg), buf[:])
	if err != nil {
		return 0, errors.Wrapf(err, "read Pico-BLDC register %#x", byte(reg))
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}
