package picobldc

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

var errNack = errors.New("i2c: nack")

// fakeBus is a register file.  Presetting a channel moves its position counter, as the
// firmware does.
type fakeBus struct {
	regs       map[byte]uint16
	writes     map[byte]int
	failWrites int
	opens      int
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		regs:   map[byte]uint16{byte(RegCalib): 0x1234},
		writes: map[byte]int{},
	}
}

func (b *fakeBus) Write(buf []byte) error {
	if b.failWrites > 0 {
		b.failWrites--
		return errNack
	}
	reg := buf[0]
	for i := 1; i+1 < len(buf); i += 2 {
		v := binary.BigEndian.Uint16(buf[i:])
		b.regs[reg] = v
		b.writes[reg]++
		if reg >= chanBase && (reg-chanBase)%chanStride == chanRegPreset+1 {
			b.regs[reg-2] = v
		}
		reg++
	}
	return nil
}

func (b *fakeBus) ReadReg(reg byte, buf []byte) error {
	binary.BigEndian.PutUint16(buf, b.regs[reg])
	return nil
}

func (b *fakeBus) Close() error {
	return nil
}

func (b *fakeBus) reg(ch, offset int) uint16 {
	return b.regs[byte(channelReg(ch, offset))]
}

func newTestBoard(t *testing.T) (*PicoBLDC, *fakeBus) {
	t.Helper()
	bus := newFakeBus()
	p, err := NewWithBus(func() (Bus, error) {
		bus.opens++
		return bus, nil
	}, clock.New(), golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return p, bus
}

func channel(t *testing.T, p *PicoBLDC, ch int) *Channel {
	t.Helper()
	c, err := p.Channel(ch)
	test.That(t, err, test.ShouldBeNil)
	return c
}

func TestPercentOutput(t *testing.T) {
	p, bus := newTestBoard(t)
	c := channel(t, p, 2)

	test.That(t, c.SetPercentOutput(0.5), test.ShouldBeNil)
	test.That(t, bus.regs[byte(RegCtrl)], test.ShouldEqual, RegCtrlEnableI2CControl|RegCtrlRun)
	test.That(t, bus.reg(2, chanRegMode), test.ShouldEqual, uint16(ModePercent))
	test.That(t, bus.reg(2, chanRegSetpoint), test.ShouldEqual, 0)
	test.That(t, bus.reg(2, chanRegSetpoint+1), test.ShouldEqual, 16384)

	// Clamped, and sign extended into the high word.
	test.That(t, c.SetPercentOutput(-2), test.ShouldBeNil)
	test.That(t, bus.reg(2, chanRegSetpoint), test.ShouldEqual, 0xffff)
	test.That(t, int16(bus.reg(2, chanRegSetpoint+1)), test.ShouldEqual, -32767)

	test.That(t, bus.writes[byte(channelReg(2, chanRegMode))], test.ShouldEqual, 1)
	test.That(t, bus.writes[byte(RegCtrl)], test.ShouldEqual, 1)
}

func TestVelocityAndPosition(t *testing.T) {
	p, bus := newTestBoard(t)
	c := channel(t, p, 1)

	test.That(t, c.SetVelocity(-1200.4, 0.25), test.ShouldBeNil)
	test.That(t, bus.reg(1, chanRegMode), test.ShouldEqual, uint16(ModeVelocity))
	test.That(t, int16(bus.reg(1, chanRegSetpoint+1)), test.ShouldEqual, -1200)
	test.That(t, bus.reg(1, chanRegFeedforward), test.ShouldEqual, 8192)

	test.That(t, c.SetPosition(70000), test.ShouldBeNil)
	test.That(t, bus.reg(1, chanRegMode), test.ShouldEqual, uint16(ModePosition))
	test.That(t, bus.reg(1, chanRegSetpoint), test.ShouldEqual, 1)
	test.That(t, bus.reg(1, chanRegSetpoint+1), test.ShouldEqual, 70000-65536)
	test.That(t, bus.reg(1, chanRegFeedforward), test.ShouldEqual, 0)
	test.That(t, bus.writes[byte(channelReg(1, chanRegMode))], test.ShouldEqual, 2)

	bus.regs[byte(channelReg(1, chanRegVelocity))] = uint16(0xffff - 99) // -100
	v, err := c.Velocity()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldEqual, -100)
}

func TestPositionAccumulatesAcrossWrap(t *testing.T) {
	p, bus := newTestBoard(t)
	c := channel(t, p, 0)
	posReg := byte(channelReg(0, chanRegPosition))

	bus.regs[posReg] = 32000
	pos, err := c.Position()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 32000)

	// Forward 1536 ticks, through the int16 wrap.
	bus.regs[posReg] = uint16(32000 + 1536)
	pos, err = c.Position()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 33536)

	// And back again.
	bus.regs[posReg] = 31000
	pos, _ = c.Position()
	test.That(t, pos, test.ShouldEqual, 31000)
}

func TestSetSensorPosition(t *testing.T) {
	p, bus := newTestBoard(t)
	c := channel(t, p, 3)

	test.That(t, c.SetSensorPosition(100000), test.ShouldBeNil)
	test.That(t, bus.reg(3, chanRegPreset), test.ShouldEqual, 1)
	pos, err := c.Position()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 100000)

	test.That(t, c.SetSensorPosition(-5), test.ShouldBeNil)
	pos, _ = c.Position()
	test.That(t, pos, test.ShouldEqual, -5)
}

func TestWriteRetries(t *testing.T) {
	p, bus := newTestBoard(t)
	c := channel(t, p, 0)

	bus.failWrites = 3
	test.That(t, c.SetPercentOutput(0.1), test.ShouldBeNil)
	test.That(t, bus.opens, test.ShouldEqual, 4)

	bus.failWrites = 100
	err := c.SetPercentOutput(0.2)
	test.That(t, errors.Is(err, errNack), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "channel 0")
}

func TestWatchdogAndCalibration(t *testing.T) {
	p, bus := newTestBoard(t)
	bus.regs[byte(RegCalib)] = 0
	bus.regs[byte(RegStatus)] = uint16(RegStatusCalibDone)

	test.That(t, p.SetWatchdog(250*time.Millisecond), test.ShouldBeNil)
	test.That(t, bus.regs[byte(RegWatchdogTimeout)], test.ShouldEqual, 250)
	ctrl := bus.regs[byte(RegCtrl)]
	test.That(t, ctrl&RegCtrlWatchdogEnable, test.ShouldNotEqual, 0)
	test.That(t, ctrl&RegCtrlDoCalib, test.ShouldNotEqual, 0)

	bus.regs[byte(RegStatus)] = uint16(RegStatusFault)
	status, err := p.Status()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status.Fault(), test.ShouldBeTrue)
	test.That(t, status.WatchdogExpired(), test.ShouldBeFalse)
}

func TestTelemetry(t *testing.T) {
	p, bus := newTestBoard(t)
	bus.regs[byte(RegBattV)] = 3000
	bus.regs[byte(RegTemperature)] = 4150

	v, err := p.BattVolts()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldAlmostEqual, 12)
	temp, err := p.TemperatureC()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, temp, test.ShouldAlmostEqual, 41.5)
}

func TestBadChannel(t *testing.T) {
	p, _ := newTestBoard(t)
	_, err := p.Channel(4)
	test.That(t, errors.Is(err, ErrChannel), test.ShouldBeTrue)
}
