package chassis

import (
	"math"

	"github.com/golang/geo/r2"
)

const (
	// SDS MK3 module with 4" wheels.
	WheelDiameterM float64 = 0.1016
	WheelCircumM           = WheelDiameterM * math.Pi

	// Distance between left and right wheel centres.
	TrackWidthM = 0.6
	// Distance between front and back wheel centres.
	WheelBaseM = 0.6
)

// Module order is fixed everywhere: front left, front right, back left, back right.
const (
	FrontLeft = iota
	FrontRight
	BackLeft
	BackRight
)

var ModuleNames = [4]string{"front-left", "front-right", "back-left", "back-right"}

// DefaultPositions are the module offsets from the chassis centre for a rectangular
// wheel layout.
func DefaultPositions() [4]r2.Point {
	x, y := WheelBaseM/2, TrackWidthM/2
	return [4]r2.Point{
		FrontLeft:  {X: x, Y: y},
		FrontRight: {X: x, Y: -y},
		BackLeft:   {X: -x, Y: y},
		BackRight:  {X: -x, Y: -y},
	}
}

// TurningRadius is the distance from the chassis centre to the furthest wheel.
func TurningRadius(positions [4]r2.Point) float64 {
	var r float64
	for _, p := range positions {
		r = math.Max(r, p.Norm())
	}
	return r
}
