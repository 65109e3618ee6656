// Package gesture implements the blend space of procedurally aimed gestures:
// spherical aim coordinates, the triangulation of a gesture's sample
// directions, nearest-triangle lookup with barycentric weights, island
// transitions and the spring that tracks the aim target.
//
// All blend-space angles are in degrees. X is theta (azimuth, positive to the
// left of +Z) and Y is phi (elevation, positive up).
package gesture

import (
	stdmath "math"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// SphericalCoords is an aim direction as azimuth and elevation in degrees.
type SphericalCoords struct {
	Theta float32
	Phi   float32
}

// FromThetaPhi builds coordinates from degrees.
func FromThetaPhi(theta, phi float32) SphericalCoords {
	return SphericalCoords{Theta: theta, Phi: phi}
}

// FromVec2 reads a blend-space point.
func FromVec2(v math.Vec2) SphericalCoords {
	return SphericalCoords{Theta: v.X, Phi: v.Y}
}

// AsVec2 returns the blend-space point.
func (c SphericalCoords) AsVec2() math.Vec2 {
	return math.Vec2{X: c.Theta, Y: c.Phi}
}

// Direction returns the unit vector for c in local space (+Z forward, +Y up).
func (c SphericalCoords) Direction() math.Vec3 {
	t := float64(math.DegToRad(c.Theta))
	p := float64(math.DegToRad(c.Phi))
	cp := stdmath.Cos(p)
	return math.Vec3{
		X: float32(cp * stdmath.Sin(t)),
		Y: float32(stdmath.Sin(p)),
		Z: float32(cp * stdmath.Cos(t)),
	}
}

// FromDirection converts a local-space vector into coordinates. Theta is in
// (-180, 180] and phi in [-90, 90]. A zero vector yields the zero value.
func FromDirection(v math.Vec3) SphericalCoords {
	l := v.Length()
	if l < 1e-6 {
		return SphericalCoords{}
	}
	n := v.Scale(1 / l)
	theta := stdmath.Atan2(float64(n.X), float64(n.Z))
	phi := stdmath.Asin(float64(math.Clamp(n.Y, -1, 1)))
	return SphericalCoords{
		Theta: math.RadToDeg(float32(theta)),
		Phi:   math.RadToDeg(float32(phi)),
	}
}

// FromRotation returns the aim of a reference rotation: the direction its
// forward axis points. Near the poles the azimuth of the forward axis is
// unstable, so between 80 and 85 degrees of elevation theta is taken over
// from the heading of the rotation's up axis, which leans away from the pole.
func FromRotation(q math.Quat, flipped bool) SphericalCoords {
	fwd := q.Rotate(math.Forward)
	c := FromDirection(fwd)

	up := q.Rotate(math.Vec3{Y: 1})
	if c.Phi > 0 {
		up = up.Scale(-1)
	}
	thetaUp := c.Theta
	if math.Abs(up.X) > 1e-6 || math.Abs(up.Z) > 1e-6 {
		thetaUp = FromDirection(math.Vec3{X: up.X, Z: up.Z}).Theta
	}
	c.Theta = math.LerpScale(80, 85, c.Theta, thetaUp, math.Abs(c.Phi))

	if flipped {
		c.Theta = -c.Theta
	}
	return c
}

// AngleBetween returns the angle in radians between two directions.
func AngleBetween(a, b SphericalCoords) float32 {
	return math.SafeAcos(a.Direction().Dot(b.Direction()))
}

// WrapDegrees maps an angle into (-180, 180].
func WrapDegrees(deg float32) float32 {
	d := float32(stdmath.Mod(float64(deg), 360))
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}
