// Package bno08x reads yaw, pitch, roll and acceleration reports from a BNO08x IMU in
// UART-RVC mode, and offers the yaw as a heading that can be zeroed in software.
package bno08x

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.bug.st/serial"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/angle"
)

const DefaultDevice = "/dev/ttyS0"

const ReportFrequency = 100
const ReportInterval = time.Second / ReportFrequency

// A report older than this is not used as a heading.
const StaleAfter = 10 * ReportInterval

const packetLen = 19

var (
	ErrNoReport    = errors.New("no IMU report yet")
	ErrStale       = errors.New("IMU report is stale")
	ErrBadPacket   = errors.New("bad IMU packet")
	packetHeader   = []byte{0xaa, 0xaa}
	errLostSync    = errors.Wrap(ErrBadPacket, "lost sync")
	errBadChecksum = errors.Wrap(ErrBadPacket, "bad checksum")
)

type IMUReport struct {
	Time   time.Time
	Index  uint8
	Yaw    int16 // hundredths of a degree
	Pitch  int16
	Roll   int16
	XAccel int16 // mg
	YAccel int16
	ZAccel int16
}

func (i IMUReport) String() string {
	return fmt.Sprintf("[%02x] Y:%7.2f P:%7.2f R:%7.2f X:%7.2f Y:%7.2f Z:%7.2f",
		i.Index, float64(i.Yaw)/100.0, float64(i.Pitch)/100.0, float64(i.Roll)/100.0,
		float64(i.XAccel)/100.0, float64(i.YAccel)/100.0, float64(i.ZAccel)/100.0)
}

func (i IMUReport) YawDegrees() float64 {
	return (float64(i.Yaw)) / 100.0
}

// ParsePacket decodes one 19-byte RVC packet: header, index, six little-endian int16
// values, three reserved bytes and a checksum over everything after the header.
func ParsePacket(buf []byte) (IMUReport, error) {
	if len(buf) != packetLen {
		return IMUReport{}, errors.Wrapf(ErrBadPacket, "length %d", len(buf))
	}
	if !bytes.Equal(buf[:2], packetHeader) {
		return IMUReport{}, errLostSync
	}
	var checksum uint8
	for _, b := range buf[2 : packetLen-1] {
		checksum += b
	}
	if buf[packetLen-1] != checksum {
		return IMUReport{}, errors.Wrapf(errBadChecksum, "%x != %x", buf[packetLen-1], checksum)
	}
	return IMUReport{
		Index:  buf[2],
		Yaw:    int16(binary.LittleEndian.Uint16(buf[3:5])),
		Pitch:  int16(binary.LittleEndian.Uint16(buf[5:7])),
		Roll:   int16(binary.LittleEndian.Uint16(buf[7:9])),
		XAccel: int16(binary.LittleEndian.Uint16(buf[9:11])),
		YAccel: int16(binary.LittleEndian.Uint16(buf[11:13])),
		ZAccel: int16(binary.LittleEndian.Uint16(buf[13:15])),
	}, nil
}

type BNO08X struct {
	device string
	clock  clock.Clock
	logger golog.Logger

	lock       sync.Mutex
	cond       *sync.Cond
	lastReport IMUReport
	yawZero    float64
}

func New(device string, clk clock.Clock, logger golog.Logger) *BNO08X {
	b := &BNO08X{
		device: device,
		clock:  clk,
		logger: logger.Named("bno08x"),
	}
	b.cond = sync.NewCond(&b.lock)
	return b
}

func (b *BNO08X) CurrentReport() IMUReport {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.lastReport
}

// WaitForReportAfter blocks until a report newer than t arrives, or fails after a
// second without one.
func (b *BNO08X) WaitForReportAfter(t time.Time) (IMUReport, error) {
	deadline := b.clock.Now().Add(time.Second)
	// A silent port never signals, so wake ourselves at the deadline.
	timer := b.clock.AfterFunc(time.Second, func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		b.cond.Broadcast()
	})
	defer timer.Stop()

	b.lock.Lock()
	defer b.lock.Unlock()
	for b.lastReport.Time.Before(t) {
		if !b.clock.Now().Before(deadline) {
			return IMUReport{}, errors.Wrap(ErrStale, "IMU hasn't responded for >1s")
		}
		b.cond.Wait()
	}
	return b.lastReport, nil
}

// Yaw is the latest yaw in degrees, [0, 360), relative to the last Zero.
func (b *BNO08X) Yaw() (float64, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.lastReport.Time.IsZero() {
		return 0, ErrNoReport
	}
	if age := b.clock.Since(b.lastReport.Time); age > StaleAfter {
		return 0, errors.Wrapf(ErrStale, "last report %v ago", age)
	}
	return angle.Wrap360(b.lastReport.YawDegrees() - b.yawZero), nil
}

// Zero makes the current yaw read as 0.
func (b *BNO08X) Zero() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.lastReport.Time.IsZero() {
		return ErrNoReport
	}
	b.yawZero = b.lastReport.YawDegrees()
	b.logger.Infow("zeroed yaw", "raw", b.yawZero)
	return nil
}

// LoopReadingReports keeps the serial port open and the latest report current until ctx
// is done.
func (b *BNO08X) LoopReadingReports(ctx context.Context) {
	defer b.cond.Broadcast()
	for ctx.Err() == nil {
		err := b.openAndLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		b.logger.Warnw("loop stopped; will retry", "error", err)
		b.clock.Sleep(100 * time.Millisecond)
		b.cond.Broadcast()
	}
}

func (b *BNO08X) openAndLoop(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: 115200,
	}
	s, err := serial.Open(b.device, mode)
	if err != nil {
		return errors.Wrapf(err, "failed to open serial port %s", b.device)
	}
	defer s.Close()
	return b.readReports(ctx, s)
}

// readReports parses packets from r until it fails, resynchronising on the header after
// a corrupt packet.
func (b *BNO08X) readReports(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
resync:
	b.logger.Debug("resync")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		buf, err := br.Peek(2)
		if err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
		if bytes.Equal(buf, packetHeader) {
			break
		}
		_, err = br.Discard(1)
		if err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
	}
	b.logger.Debug("in sync with packet stream")

	buf := make([]byte, packetLen)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := io.ReadFull(br, buf)
		if err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
		report, err := ParsePacket(buf)
		if err != nil {
			b.logger.Warnw("dropping packet", "error", err)
			goto resync
		}
		report.Time = b.clock.Now()
		b.setReport(report)
	}
}

func (b *BNO08X) setReport(report IMUReport) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.lastReport = report
	b.cond.Broadcast()
}
