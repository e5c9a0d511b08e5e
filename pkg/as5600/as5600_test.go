package as5600

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

type fakeTx struct {
	regs map[byte][]byte
}

func (f *fakeTx) Tx(w, r []byte) error {
	copy(r, f.regs[w[0]])
	return nil
}

type fakeMux struct {
	ports []int
}

func (m *fakeMux) DisableAllPorts() error         { return nil }
func (m *fakeMux) SelectSinglePort(num int) error { return nil }
func (m *fakeMux) Close() error                   { return nil }

func (m *fakeMux) Do(num int, f func() error) error {
	m.ports = append(m.ports, num)
	return f()
}

func TestAbsoluteDegrees(t *testing.T) {
	dev := &fakeTx{regs: map[byte][]byte{
		RegStatus:   {StatusMagnetDetected},
		RegRawAngle: {0xf4, 0x00}, // top nibble is not part of the angle
	}}
	m := &fakeMux{}
	e := &Encoder{dev: dev, mux: m, port: 2}

	deg, err := e.AbsoluteDegrees()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, deg, test.ShouldAlmostEqual, 360.0*1024/4096)
	test.That(t, m.ports, test.ShouldResemble, []int{2})

	dev.regs[RegRawAngle] = []byte{0x0f, 0xff}
	deg, err = e.AbsoluteDegrees()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, deg, test.ShouldAlmostEqual, 360.0*4095/4096)
}

func TestNoMagnet(t *testing.T) {
	dev := &fakeTx{regs: map[byte][]byte{RegStatus: {StatusMagnetLow}}}
	e := &Encoder{dev: dev, mux: &fakeMux{}, port: 1}

	_, err := e.AbsoluteDegrees()
	test.That(t, errors.Is(err, ErrNoMagnet), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "mux port 1")
}
