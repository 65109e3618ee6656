// Package math provides the small vector, quaternion and scalar helpers used
// by the animation blend code.
package math

import "math"

// DegToRad converts degrees to radians.
func DegToRad(deg float32) float32 {
	return deg * (math.Pi / 180)
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float32) float32 {
	return rad * (180 / math.Pi)
}

// Lerp interpolates between a and b by t. t is not clamped.
func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 limits v to [0, 1].
func Clamp01(v float32) float32 {
	return Clamp(v, 0, 1)
}

// Abs returns |v|.
func Abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// Max returns the larger of a and b.
func Max(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

// IsClose reports whether a and b differ by at most eps.
func IsClose(a, b, eps float32) bool {
	return Abs(a-b) <= eps
}

// LerpScale maps v from [inLo, inHi] onto [outLo, outHi], clamping at the ends.
func LerpScale(inLo, inHi, outLo, outHi, v float32) float32 {
	if inHi == inLo {
		return outLo
	}
	t := Clamp01((v - inLo) / (inHi - inLo))
	return Lerp(outLo, outHi, t)
}

// SafeAcos is acos with its argument clamped to [-1, 1].
func SafeAcos(v float32) float32 {
	return float32(math.Acos(float64(Clamp(v, -1, 1))))
}
