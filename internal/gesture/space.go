package gesture

import "github.com/Faultbox/midgard-anim/pkg/math"

const (
	// PoleThreshold is the elevation beyond which a sample is padded.
	PoleThreshold = 85
	poleProximity = 45

	thetaLimit = 179.5
	phiLimit   = 89.5
)

// Sample is one point of a blend space and the authored entry behind it.
type Sample struct {
	Dir    SphericalCoords
	Source int
	// WrapAround marks the copy shifted by a full turn.
	WrapAround bool
	// Extra marks a synthesized pole sample.
	Extra bool
}

// ClampAuthored limits an authored direction to the open sphere and mirrors
// it when flipped.
func ClampAuthored(theta, phi float32, flipped bool) SphericalCoords {
	if flipped {
		theta = -theta
	}
	return FromThetaPhi(math.Clamp(theta, -thetaLimit, thetaLimit), math.Clamp(phi, -phiLimit, phiLimit))
}

// WrapTheta shifts a wrap-around copy by a full turn toward the far side.
func WrapTheta(theta float32) float32 {
	if theta < 0 {
		return theta + 360
	}
	return theta - 360
}

// PadPoles adds samples beside those near a pole so the mesh covers the
// heading range there. A pad is skipped when a sample other than its source
// already lies within 45 degrees of it on both axes.
func PadPoles(samples []Sample) []Sample {
	out := append([]Sample(nil), samples...)
	for i := range samples {
		s := samples[i]
		if s.Extra || math.Abs(s.Dir.Phi) <= PoleThreshold {
			continue
		}

		var thetas [2]float32
		switch {
		case math.Abs(s.Dir.Theta) < 45:
			thetas = [2]float32{-90, 90}
		case s.Dir.Theta >= 45:
			thetas = [2]float32{-90, 0}
		default:
			thetas = [2]float32{90, 0}
		}

		for _, theta := range thetas {
			if len(out) >= MaxAnims {
				return out
			}
			pad := FromThetaPhi(theta, s.Dir.Phi)
			if nearAny(out, i, pad) {
				continue
			}
			out = append(out, Sample{Dir: pad, Source: s.Source, Extra: true})
		}
	}
	return out
}

func nearAny(samples []Sample, skip int, d SphericalCoords) bool {
	for i, o := range samples {
		if i == skip {
			continue
		}
		if math.Abs(o.Dir.Theta-d.Theta) < poleProximity && math.Abs(o.Dir.Phi-d.Phi) < poleProximity {
			return true
		}
	}
	return false
}

// Points returns the (theta, phi) plane position of every sample.
func Points(samples []Sample) []math.Vec2 {
	pts := make([]math.Vec2, len(samples))
	for i, s := range samples {
		pts[i] = s.Dir.AsVec2()
	}
	return pts
}

// HyperRange reports whether the samples reach past the wrap seam or a pole.
func HyperRange(samples []Sample) bool {
	for _, s := range samples {
		if s.Dir.Theta < -179 || s.Dir.Theta > 179 || s.Dir.Phi < -89 || s.Dir.Phi > 89 {
			return true
		}
	}
	return false
}
