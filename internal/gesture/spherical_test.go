package gesture

import (
	stdmath "math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

func TestDirectionRoundTrip(t *testing.T) {
	tests := []struct {
		theta, phi float32
	}{
		{0, 0},
		{30, 20},
		{-135, -45},
		{179, 80},
		{90, -10},
	}
	for _, tt := range tests {
		c := FromDirection(FromThetaPhi(tt.theta, tt.phi).Direction())
		assert.InDelta(t, tt.theta, c.Theta, 1e-3, "theta %v/%v", tt.theta, tt.phi)
		assert.InDelta(t, tt.phi, c.Phi, 1e-3, "phi %v/%v", tt.theta, tt.phi)
	}
}

func TestDirectionAxes(t *testing.T) {
	fwd := FromThetaPhi(0, 0).Direction()
	assert.InDelta(t, 1, fwd.Z, 1e-6)

	left := FromThetaPhi(90, 0).Direction()
	assert.InDelta(t, 1, left.X, 1e-6)

	up := FromThetaPhi(0, 90).Direction()
	assert.InDelta(t, 1, up.Y, 1e-6)
}

func TestFromDirectionZero(t *testing.T) {
	assert.Equal(t, SphericalCoords{}, FromDirection(math.Vec3{}))
}

func TestFromRotation(t *testing.T) {
	c := FromRotation(math.QuatIdentity(), false)
	assert.InDelta(t, 0, c.Theta, 1e-4)
	assert.InDelta(t, 0, c.Phi, 1e-4)

	yaw := math.QuatFromAxisAngle(math.Vec3{Y: 1}, stdmath.Pi/2)
	c = FromRotation(yaw, false)
	assert.InDelta(t, 90, c.Theta, 1e-3)
	assert.InDelta(t, 0, c.Phi, 1e-3)

	c = FromRotation(yaw, true)
	assert.InDelta(t, -90, c.Theta, 1e-3)
}

func TestAngleBetween(t *testing.T) {
	a := FromThetaPhi(0, 0)
	b := FromThetaPhi(90, 0)
	assert.InDelta(t, stdmath.Pi/2, AngleBetween(a, b), 1e-5)
	assert.InDelta(t, 0, AngleBetween(a, a), 1e-3)
}

func TestWrapDegrees(t *testing.T) {
	tests := []struct {
		in, want float32
	}{
		{0, 0},
		{190, -170},
		{-190, 170},
		{-180, 180},
		{540, 180},
		{720, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, WrapDegrees(tt.in), 1e-4, "wrap %v", tt.in)
	}
}
