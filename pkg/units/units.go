// Package units converts between physical units (metres, metres/second, degrees) and the
// native units of the integrated motor encoders (ticks and ticks per 100ms).
package units

// TicksPerRevolution is the integrated encoder resolution, counted at the motor shaft.
const TicksPerRevolution = 2048

// Velocities are reported by the motor controllers per 100ms.
const velocityPeriodsPerSecond = 10

// MPSToNative converts a wheel surface speed into motor ticks per 100ms.
func MPSToNative(mps, wheelCircumference, gearRatio float64) float64 {
	wheelRevsPerSec := mps / wheelCircumference
	return wheelRevsPerSec * gearRatio * TicksPerRevolution / velocityPeriodsPerSecond
}

// NativeToMPS is the inverse of MPSToNative.
func NativeToMPS(native, wheelCircumference, gearRatio float64) float64 {
	motorRevsPerSec := native * velocityPeriodsPerSecond / TicksPerRevolution
	return motorRevsPerSec / gearRatio * wheelCircumference
}

// DegreesToNative converts a steering angle into motor ticks.
func DegreesToNative(degrees, gearRatio float64) float64 {
	return degrees / 360 * gearRatio * TicksPerRevolution
}

// NativeToDegrees is the inverse of DegreesToNative.
func NativeToDegrees(native, gearRatio float64) float64 {
	return native / TicksPerRevolution / gearRatio * 360
}

// MetersToNative converts wheel travel into motor ticks.
func MetersToNative(meters, wheelCircumference, gearRatio float64) float64 {
	return meters / wheelCircumference * gearRatio * TicksPerRevolution
}

// NativeToMeters is the inverse of MetersToNative.
func NativeToMeters(native, wheelCircumference, gearRatio float64) float64 {
	return native / TicksPerRevolution / gearRatio * wheelCircumference
}
