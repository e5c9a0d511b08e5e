// Package angle holds the one place where heading wraparound is done.  Everything that
// compares or stores a heading goes through here so that the optimizer, the kinematics
// and the odometry agree on what "the same angle" means.
package angle

import "math"

// PlusMinus180 is an angle in degrees, stored as a value in range (-180, 180].
// All operations clamp their output into range.
type PlusMinus180 struct {
	float64
}

func (a PlusMinus180) Add(b PlusMinus180) PlusMinus180 {
	return FromFloat(a.float64 + b.float64)
}

func (a PlusMinus180) Sub(b PlusMinus180) PlusMinus180 {
	return FromFloat(a.float64 - b.float64)
}

func (a PlusMinus180) AddFloat(f float64) PlusMinus180 {
	return FromFloat(a.float64 + f)
}

// Float returns the angle in degrees, range (-180, 180].
func (a PlusMinus180) Float() float64 {
	return a.float64
}

// Abs returns the magnitude of the angle in degrees, range [0, 180].
func (a PlusMinus180) Abs() float64 {
	return math.Abs(a.float64)
}

// FromFloat converts a float of any magnitude to a PlusMinus180 by calculating
// f mod 360 and shifting into range.
func FromFloat(f float64) PlusMinus180 {
	d := math.Mod(f, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return PlusMinus180{d}
}

// Delta returns the shortest signed rotation that takes from onto to.  A half turn is
// reported as +180.
func Delta(from, to float64) PlusMinus180 {
	return FromFloat(to - from)
}

// Wrap360 maps a heading of any magnitude into [0, 360).
func Wrap360(f float64) float64 {
	d := math.Mod(f, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		// -tiny + 360 rounds up to 360.
		d = 0
	}
	return d
}

// IsFinite is false for NaN and for either infinity.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
