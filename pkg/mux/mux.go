// Package mux drives a TCA9548A I2C multiplexer, which lets several devices with the
// same fixed address (one absolute encoder per swerve module) share a bus.
package mux

import (
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"
)

const (
	MuxAddr  = 0x70
	NumPorts = 8
)

type Interface interface {
	DisableAllPorts() error
	SelectSinglePort(num int) error
	// Do runs f with port num selected and no other caller able to change the selection.
	Do(num int, f func() error) error
	Close() error
}

type writer interface {
	Write(buf []byte) error
	Close() error
}

type Mux struct {
	lock     sync.Mutex
	dev      writer
	selected int // -1 when unknown or nothing selected
	logger   golog.Logger
}

var _ Interface = (*Mux)(nil)

func New(deviceFile string, addr int, logger golog.Logger) (*Mux, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "open mux at %#x", addr)
	}
	return newMux(dev, logger), nil
}

func newMux(dev writer, logger golog.Logger) *Mux {
	return &Mux{
		dev:      dev,
		selected: -1,
		logger:   logger.Named("mux"),
	}
}

func (p *Mux) SelectSinglePort(num int) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.selectLocked(num)
}

func (p *Mux) selectLocked(num int) error {
	if num < 0 || num >= NumPorts {
		return errors.Errorf("mux port %d out of range", num)
	}
	if p.selected == num {
		return nil
	}
	if err := p.dev.Write([]byte{1 << uint(num)}); err != nil {
		p.selected = -1
		return errors.Wrapf(err, "select mux port %d", num)
	}
	p.logger.Debugw("selected port", "port", num)
	p.selected = num
	return nil
}

func (p *Mux) Do(num int, f func() error) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := p.selectLocked(num); err != nil {
		return err
	}
	return f()
}

func (p *Mux) DisableAllPorts() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.selected = -1
	return errors.Wrap(p.dev.Write([]byte{0}), "disable mux ports")
}

func (p *Mux) Close() error {
	return p.dev.Close()
}
