package gesture

import (
	stdmath "math"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Spring is a damped spring tracking a scalar target. Ratio 1 is critical
// damping.
type Spring struct {
	K     float32
	Ratio float32

	Value    float32
	Velocity float32
}

// Track moves Value toward target over dt seconds.
func (s *Spring) Track(target, dt float32) float32 {
	if dt <= 0 {
		return s.Value
	}
	if s.K <= 0 {
		s.Value, s.Velocity = target, 0
		return s.Value
	}

	omega := float32(stdmath.Sqrt(float64(s.K)))
	if s.Ratio == 1 {
		x0 := s.Value - target
		e := float32(stdmath.Exp(float64(-omega * dt)))
		c := s.Velocity + omega*x0
		s.Value = target + (x0+c*dt)*e
		s.Velocity = (c - omega*(x0+c*dt)) * e
		return s.Value
	}

	accel := -s.K*(s.Value-target) - 2*s.Ratio*omega*s.Velocity
	s.Velocity += accel * dt
	s.Value += s.Velocity * dt
	return s.Value
}

// Reset snaps the spring to v.
func (s *Spring) Reset(v float32) {
	s.Value, s.Velocity = v, 0
}

// AngleTracker smooths a blend-space target with one spring per axis. The
// stiffness drops toward KReduced as the angular error grows so large swings
// ease in.
type AngleTracker struct {
	K        float32
	KReduced float32
	// Ratio is the damping ratio of both springs. Zero means critical.
	Ratio float32
	// Delay holds the previous target for this many seconds.
	Delay float32
	// WrapTheta tracks theta across the seam through the shortest arc.
	WrapTheta bool

	theta, phi Spring
	started    bool
	pending    SphericalCoords
	wait       float32
}

// Current returns the smoothed direction.
func (a *AngleTracker) Current() SphericalCoords {
	return FromThetaPhi(a.theta.Value, a.phi.Value)
}

// Snap jumps to target without easing.
func (a *AngleTracker) Snap(target SphericalCoords) {
	a.theta.Reset(target.Theta)
	a.phi.Reset(target.Phi)
	a.pending = target
	a.wait = 0
	a.started = true
}

// Update advances toward target. The first update snaps.
func (a *AngleTracker) Update(target SphericalCoords, dt float32) SphericalCoords {
	if !a.started {
		a.Snap(target)
		return target
	}

	if target != a.pending {
		a.pending = target
		a.wait = a.Delay
	}
	goal := a.Current()
	if a.wait > 0 {
		a.wait -= dt
	} else {
		goal = a.pending
	}

	diff := AngleBetween(a.Current(), goal)
	k := math.LerpScale(0, stdmath.Pi, a.K, a.KReduced, diff)
	ratio := a.Ratio
	if ratio <= 0 {
		ratio = 1
	}
	a.theta.K, a.theta.Ratio = k, ratio
	a.phi.K, a.phi.Ratio = k, ratio

	thetaGoal := goal.Theta
	if a.WrapTheta {
		thetaGoal = a.theta.Value + WrapDegrees(goal.Theta-a.theta.Value)
	}
	a.theta.Track(thetaGoal, dt)
	a.phi.Track(goal.Phi, dt)
	if a.WrapTheta {
		a.theta.Value = WrapDegrees(a.theta.Value)
	}
	return a.Current()
}
