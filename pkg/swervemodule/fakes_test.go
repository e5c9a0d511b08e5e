package swervemodule

import "github.com/pkg/errors"

type fakeDrive struct {
	percent     float64
	velocity    float64
	feedforward float64
	lastMode    string
	measured    float64
	err         error
}

func (d *fakeDrive) SetPercentOutput(fraction float64) error {
	if d.err != nil {
		return d.err
	}
	d.percent = fraction
	d.lastMode = "percent"
	return nil
}

func (d *fakeDrive) SetVelocity(nativeVelocity, feedforward float64) error {
	if d.err != nil {
		return d.err
	}
	d.velocity = nativeVelocity
	d.feedforward = feedforward
	d.lastMode = "velocity"
	return nil
}

func (d *fakeDrive) Velocity() (float64, error) {
	return d.measured, d.err
}

type fakeSteer struct {
	position float64
	issued   []float64
}

func (s *fakeSteer) SetPosition(nativePosition float64) error {
	s.issued = append(s.issued, nativePosition)
	return nil
}

func (s *fakeSteer) Position() (float64, error) {
	return s.position, nil
}

func (s *fakeSteer) SetSensorPosition(nativePosition float64) error {
	s.position = nativePosition
	return nil
}

func (s *fakeSteer) lastIssued() float64 {
	return s.issued[len(s.issued)-1]
}

type fakeEncoder struct {
	degrees float64
	err     error
}

func (e *fakeEncoder) AbsoluteDegrees() (float64, error) {
	return e.degrees, e.err
}

var errBus = errors.New("bus fault")
