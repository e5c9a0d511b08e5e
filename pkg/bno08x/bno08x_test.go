package bno08x

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/kr/pty"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func packet(index uint8, yaw, pitch, roll int16) []byte {
	buf := []byte{0xaa, 0xaa, index}
	for _, v := range []int16{yaw, pitch, roll, 0, 0, 1000} {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(v))
	}
	buf = append(buf, 0, 0, 0)
	var sum uint8
	for _, b := range buf[2:] {
		sum += b
	}
	return append(buf, sum)
}

func TestParsePacket(t *testing.T) {
	r, err := ParsePacket(packet(7, -12345, 100, -200))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.Index, test.ShouldEqual, 7)
	test.That(t, r.Yaw, test.ShouldEqual, -12345)
	test.That(t, r.YawDegrees(), test.ShouldAlmostEqual, -123.45)
	test.That(t, r.Pitch, test.ShouldEqual, 100)
	test.That(t, r.Roll, test.ShouldEqual, -200)
	test.That(t, r.ZAccel, test.ShouldEqual, 1000)

	bad := packet(7, 1, 2, 3)
	bad[5]++
	_, err = ParsePacket(bad)
	test.That(t, errors.Is(err, ErrBadPacket), test.ShouldBeTrue)

	bad = packet(7, 1, 2, 3)
	bad[1] = 0
	_, err = ParsePacket(bad)
	test.That(t, errors.Is(err, ErrBadPacket), test.ShouldBeTrue)

	_, err = ParsePacket(bad[:10])
	test.That(t, errors.Is(err, ErrBadPacket), test.ShouldBeTrue)
}

func TestReadReportsResyncs(t *testing.T) {
	clk := clock.NewMock()
	b := New(DefaultDevice, clk, golog.NewTestLogger(t))

	corrupt := packet(2, 4500, 0, 0)
	corrupt[18]++
	var stream bytes.Buffer
	stream.Write([]byte{0x01, 0x02})
	stream.Write(packet(1, 9000, 0, 0))
	stream.Write(corrupt)
	stream.Write(packet(3, -4500, 0, 0))

	err := b.readReports(context.Background(), &stream)
	test.That(t, errors.Is(err, io.EOF), test.ShouldBeTrue)

	r := b.CurrentReport()
	test.That(t, r.Index, test.ShouldEqual, 3)
	test.That(t, r.Time, test.ShouldResemble, clk.Now())

	yaw, err := b.Yaw()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, yaw, test.ShouldAlmostEqual, 315)
}

func TestYawZeroAndStaleness(t *testing.T) {
	clk := clock.NewMock()
	b := New(DefaultDevice, clk, golog.NewTestLogger(t))

	_, err := b.Yaw()
	test.That(t, errors.Is(err, ErrNoReport), test.ShouldBeTrue)
	test.That(t, errors.Is(b.Zero(), ErrNoReport), test.ShouldBeTrue)

	b.setReport(IMUReport{Time: clk.Now(), Yaw: 3000})
	test.That(t, b.Zero(), test.ShouldBeNil)
	yaw, err := b.Yaw()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, yaw, test.ShouldAlmostEqual, 0)

	clk.Add(ReportInterval)
	b.setReport(IMUReport{Time: clk.Now(), Yaw: 1000})
	yaw, err = b.Yaw()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, yaw, test.ShouldAlmostEqual, 340)

	clk.Add(time.Second)
	_, err = b.Yaw()
	test.That(t, errors.Is(err, ErrStale), test.ShouldBeTrue)
}

func TestWaitForReportAfter(t *testing.T) {
	clk := clock.NewMock()
	b := New(DefaultDevice, clk, golog.NewTestLogger(t))
	start := clk.Now()

	done := make(chan IMUReport)
	go func() {
		r, err := b.WaitForReportAfter(start.Add(time.Millisecond))
		test.That(t, err, test.ShouldBeNil)
		done <- r
	}()

	clk.Add(2 * time.Millisecond)
	b.setReport(IMUReport{Time: clk.Now(), Index: 9})
	r := <-done
	test.That(t, r.Index, test.ShouldEqual, 9)
}

func TestWaitForReportAfterSilentPort(t *testing.T) {
	// The port opens but the IMU never sends anything.
	pr, pw := io.Pipe()
	b := New(DefaultDevice, clock.New(), golog.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		b.readReports(ctx, pr)
	}()

	errs := make(chan error, 1)
	go func() {
		_, err := b.WaitForReportAfter(time.Now())
		errs <- err
	}()

	select {
	case err := <-errs:
		test.That(t, errors.Is(err, ErrStale), test.ShouldBeTrue)
	case <-time.After(3 * time.Second):
		t.Fatal("WaitForReportAfter still blocked after 3s")
	}

	cancel()
	test.That(t, pw.Close(), test.ShouldBeNil)
	<-readDone
}

func TestWaitForReportAfterTimesOut(t *testing.T) {
	clk := clock.NewMock()
	b := New(DefaultDevice, clk, golog.NewTestLogger(t))

	errs := make(chan error, 1)
	go func() {
		_, err := b.WaitForReportAfter(clk.Now())
		errs <- err
	}()

	// Step past the deadline until the waiter has armed its timer and given up.
	for {
		clk.Add(time.Second)
		select {
		case err := <-errs:
			test.That(t, errors.Is(err, ErrStale), test.ShouldBeTrue)
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestLoopReadingReportsFromSerialPort(t *testing.T) {
	// A pseudo-terminal stands in for the UART.
	ptm, tty, err := pty.Open()
	if err != nil {
		t.Skipf("no pty: %v", err)
	}
	defer ptm.Close()
	name := tty.Name()
	test.That(t, tty.Close(), test.ShouldBeNil)

	b := New(name, clock.New(), golog.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.LoopReadingReports(ctx)
	}()

	start := time.Now()
	go func() {
		for i := uint8(0); ctx.Err() == nil; i++ {
			if _, err := ptm.Write(packet(i, 4500, 0, 0)); err != nil {
				return
			}
			time.Sleep(ReportInterval)
		}
	}()

	r, err := b.WaitForReportAfter(start)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.YawDegrees(), test.ShouldAlmostEqual, 45)

	cancel()
	test.That(t, ptm.Close(), test.ShouldBeNil)
	<-done
}
