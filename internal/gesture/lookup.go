package gesture

import (
	stdmath "math"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Nearest is the result of FindNearestBlendTriangle.
type Nearest struct {
	Triangle int
	// Inside is set when the target lies within Triangle.
	Inside bool
	// Closest is the target, or its projection onto Triangle when outside.
	Closest math.Vec2
}

// FindNearestBlendTriangle returns the triangle containing target, or the one
// with the nearest edge. island limits the search; -1 searches all islands.
// Triangle is -1 when there is nothing to search.
func (t *Triangulation) FindNearestBlendTriangle(target math.Vec2, island int) Nearest {
	res := Nearest{Triangle: -1, Closest: target}
	if len(t.Points) < 3 || len(t.Triangles) == 0 {
		return res
	}
	if len(t.Points) == 3 && island < 0 {
		res.Triangle = 0
		res.Inside, res.Closest = t.closestOnTriangle(0, target)
		return res
	}

	best := float32(stdmath.MaxFloat32)
	for i, tri := range t.Triangles {
		if island >= 0 && int(tri.Island) != island {
			continue
		}
		inside, closest := t.closestOnTriangle(i, target)
		if inside {
			return Nearest{Triangle: i, Inside: true, Closest: target}
		}
		if d := closest.Distance(target); d < best {
			best = d
			res.Triangle = i
			res.Closest = closest
		}
	}
	return res
}

func (t *Triangulation) closestOnTriangle(tri int, target math.Vec2) (bool, math.Vec2) {
	v := t.Triangles[tri].V
	inside := true
	best := float32(stdmath.MaxFloat32)
	closest := target
	for e := 0; e < 3; e++ {
		a, b := t.Points[v[e]], t.Points[v[(e+1)%3]]
		if b.Sub(a).Cross(target.Sub(a)) >= 0 {
			continue
		}
		inside = false
		p := math.ClosestPointOnSegment(target, a, b)
		if d := p.Distance(target); d < best {
			best = d
			closest = p
		}
	}
	if inside {
		return true, target
	}
	return false, closest
}

// GetBlendValues returns barycentric weights of target within triangle tri.
// Weights are clamped to [0, 1] and sum to one. A degenerate triangle gives
// all weight to its nearest vertex.
func (t *Triangulation) GetBlendValues(tri int, target math.Vec2) [3]float32 {
	v := t.Triangles[tri].V
	p1, p2, p3 := t.Points[v[0]], t.Points[v[1]], t.Points[v[2]]

	x1, y1 := float64(p1.X), float64(p1.Y)
	x2, y2 := float64(p2.X), float64(p2.Y)
	x3, y3 := float64(p3.X), float64(p3.Y)
	x, y := float64(target.X), float64(target.Y)

	den := (y2-y3)*(x1-x3) + (x3-x2)*(y1-y3)
	if stdmath.Abs(den) < 1e-9 {
		var w [3]float32
		d1, d2, d3 := target.Distance(p1), target.Distance(p2), target.Distance(p3)
		switch {
		case d1 <= d2 && d1 <= d3:
			w[0] = 1
		case d2 <= d3:
			w[1] = 1
		default:
			w[2] = 1
		}
		return w
	}

	u := ((y2-y3)*(x-x3) + (x3-x2)*(y-y3)) / den
	vv := ((y3-y1)*(x-x3) + (x1-x3)*(y-y3)) / den
	w := 1 - u - vv

	u = stdmath.Max(0, stdmath.Min(1, u))
	vv = stdmath.Max(0, stdmath.Min(1, vv))
	w = stdmath.Max(0, stdmath.Min(1, w))
	sum := u + vv + w
	if sum <= 0 {
		return [3]float32{1, 0, 0}
	}
	return [3]float32{float32(u / sum), float32(vv / sum), float32(w / sum)}
}

// NestedBlend converts barycentric weights into the two factors of a nested
// blend: lerp(lerp(p1, p2, a), p3, b).
func NestedBlend(w [3]float32) (a, b float32) {
	if s := w[0] + w[1]; s > 0 {
		a = w[1] / s
	} else {
		a = 1
	}
	return a, w[2]
}

// SelectLinear picks the consecutive pair of samples, ordered by theta,
// nearest to target and the blend factor along that segment.
func (t *Triangulation) SelectLinear(target math.Vec2, island int) (first, second int, blend float32) {
	order := sortedByTheta(t.Points)
	if island >= 0 {
		kept := order[:0]
		for _, i := range order {
			if int(t.Islands[i]) == island {
				kept = append(kept, i)
			}
		}
		order = kept
	}

	switch len(order) {
	case 0:
		return -1, -1, 0
	case 1:
		return order[0], -1, 0
	}

	best := float32(stdmath.MaxFloat32)
	for k := 0; k+1 < len(order); k++ {
		a, b := t.Points[order[k]], t.Points[order[k+1]]
		ab := b.Sub(a)
		l := ab.Length()
		if l == 0 {
			continue
		}
		proj := math.Clamp(ab.Scale(1/l).Dot(target.Sub(a)), 0, l)
		d := a.Add(ab.Scale(proj / l)).Distance(target)
		if d < best {
			best = d
			first, second, blend = order[k], order[k+1], proj/l
		}
	}
	if best == float32(stdmath.MaxFloat32) {
		return order[0], -1, 0
	}
	return first, second, blend
}

// Selection is the set of samples and weights for one target.
type Selection struct {
	Anims   [3]int
	Weights [3]float32
	Count   int
	Inside  bool
	Closest math.Vec2
	// Triangle is -1 for linear selections.
	Triangle int
}

// Select resolves target into up to three weighted samples.
func (t *Triangulation) Select(target math.Vec2, island int) Selection {
	sel := Selection{Anims: [3]int{-1, -1, -1}, Triangle: -1, Closest: target}
	if len(t.Points) == 0 {
		return sel
	}

	if !t.Linear {
		if near := t.FindNearestBlendTriangle(target, island); near.Triangle >= 0 {
			v := t.Triangles[near.Triangle].V
			sel.Anims = [3]int{int(v[0]), int(v[1]), int(v[2])}
			sel.Weights = t.GetBlendValues(near.Triangle, near.Closest)
			sel.Count = 3
			sel.Inside = near.Inside
			sel.Closest = near.Closest
			sel.Triangle = near.Triangle
			return sel
		}
	}

	first, second, blend := t.SelectLinear(target, island)
	switch {
	case first < 0:
	case second < 0:
		sel.Anims[0], sel.Weights[0], sel.Count = first, 1, 1
		sel.Closest = t.Points[first]
	default:
		sel.Anims[0], sel.Anims[1] = first, second
		sel.Weights[0], sel.Weights[1] = 1-blend, blend
		sel.Count = 2
		sel.Closest = t.Points[first].Lerp(t.Points[second], blend)
	}
	return sel
}
