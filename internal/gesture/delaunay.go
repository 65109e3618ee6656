package gesture

import stdmath "math"

// delaunay triangulates pts with Bowyer-Watson insertion. The returned
// triangles index pts and may have either winding.
func delaunay(pts [][2]float64) [][3]int {
	n := len(pts)
	if n < 3 {
		return nil
	}

	minX, minY := pts[0][0], pts[0][1]
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = stdmath.Min(minX, p[0])
		minY = stdmath.Min(minY, p[1])
		maxX = stdmath.Max(maxX, p[0])
		maxY = stdmath.Max(maxY, p[1])
	}
	d := stdmath.Max(stdmath.Max(maxX-minX, maxY-minY), 1)
	mx, my := (minX+maxX)/2, (minY+maxY)/2

	all := make([][2]float64, n, n+3)
	copy(all, pts)
	all = append(all,
		[2]float64{mx - 50*d, my - 50*d},
		[2]float64{mx, my + 50*d},
		[2]float64{mx + 50*d, my - 50*d},
	)

	tris := []circumTri{newCircumTri(all, n, n+1, n+2)}
	for i := 0; i < n; i++ {
		p := all[i]

		var edges [][2]int
		keep := tris[:0:0]
		for _, t := range tris {
			if t.contains(p) {
				edges = append(edges, [2]int{t.v[0], t.v[1]}, [2]int{t.v[1], t.v[2]}, [2]int{t.v[2], t.v[0]})
			} else {
				keep = append(keep, t)
			}
		}

		for a, e := range edges {
			shared := false
			for b, o := range edges {
				if a != b && ((e[0] == o[0] && e[1] == o[1]) || (e[0] == o[1] && e[1] == o[0])) {
					shared = true
					break
				}
			}
			if !shared {
				keep = append(keep, newCircumTri(all, e[0], e[1], i))
			}
		}
		tris = keep
	}

	out := make([][3]int, 0, len(tris))
	for _, t := range tris {
		if t.v[0] >= n || t.v[1] >= n || t.v[2] >= n {
			continue
		}
		out = append(out, t.v)
	}
	return out
}

type circumTri struct {
	v          [3]int
	cx, cy, r2 float64
	degenerate bool
}

func newCircumTri(pts [][2]float64, a, b, c int) circumTri {
	ax, ay := pts[a][0], pts[a][1]
	bx, by := pts[b][0], pts[b][1]
	cx, cy := pts[c][0], pts[c][1]

	t := circumTri{v: [3]int{a, b, c}}
	d := 2 * (ax*(by-cy) + bx*(cy-ay) + cx*(ay-by))
	if stdmath.Abs(d) < 1e-12 {
		t.degenerate = true
		return t
	}

	a2 := ax*ax + ay*ay
	b2 := bx*bx + by*by
	c2 := cx*cx + cy*cy
	t.cx = (a2*(by-cy) + b2*(cy-ay) + c2*(ay-by)) / d
	t.cy = (a2*(cx-bx) + b2*(ax-cx) + c2*(bx-ax)) / d
	t.r2 = (ax-t.cx)*(ax-t.cx) + (ay-t.cy)*(ay-t.cy)
	return t
}

// contains reports whether p lies strictly inside the circumcircle.
// Cocircular points are outside so square grids split into two triangles.
func (t circumTri) contains(p [2]float64) bool {
	if t.degenerate {
		return false
	}
	dx, dy := p[0]-t.cx, p[1]-t.cy
	return dx*dx+dy*dy < t.r2*(1-1e-9)
}
