package gesture

import (
	"errors"
	"fmt"
	stdmath "math"
	"sort"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

const (
	// MaxAnims is the most samples a gesture blend space holds.
	MaxAnims = 32
	// MaxBlendTriangles bounds the triangles kept for MaxAnims samples.
	MaxBlendTriangles = 2*MaxAnims - 2
	// DefaultLinearThreshold is the phi range, in degrees, at or under which
	// a blend space is treated as a line.
	DefaultLinearThreshold = 3
)

var (
	// ErrTooManySamples is returned for more than MaxAnims samples.
	ErrTooManySamples = errors.New("gesture blend space: too many samples")
	// ErrBadMeshIndex is returned when a manual mesh names a missing sample.
	ErrBadMeshIndex = errors.New("gesture blend space: manual mesh index out of range")
)

// Triangle is one blend triangle: three sample indices, counter-clockwise in
// (theta, phi), and the island it belongs to.
type Triangle struct {
	V      [3]uint8
	Island uint8
}

// Options tunes ConstructBlendTriangles.
type Options struct {
	// IslandLinkThreshold cuts Delaunay edges longer than this many degrees
	// when grouping samples into islands. Zero or less keeps every edge.
	IslandLinkThreshold float32
	// NoBlendTheta, when HasNoBlendDir is set, splits the samples into a
	// left island (theta below it) and a right island. Samples on opposite
	// sides are never linked.
	HasNoBlendDir bool
	NoBlendTheta  float32
	// MinTriangleArea rejects slivers, in square degrees.
	MinTriangleArea float32
	// ForceLinear skips triangulation.
	ForceLinear bool
	// DuplicateTolerance is the distance under which two samples coincide.
	DuplicateTolerance float32
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		MinTriangleArea:    0.1,
		DuplicateTolerance: 0.0001,
	}
}

// Triangulation is the derived blend mesh of a gesture.
type Triangulation struct {
	Points    []math.Vec2
	Triangles []Triangle
	// Islands holds the island id of every point.
	Islands    []uint8
	NumIslands int

	Linear        bool
	HasDuplicates bool
	Manual        bool
}

// IslandOf returns the island of triangle tri.
func (t *Triangulation) IslandOf(tri int) int {
	if tri < 0 || tri >= len(t.Triangles) {
		return -1
	}
	return int(t.Triangles[tri].Island)
}

// IsLinear reports whether points should blend along theta only: fewer than
// three samples or a phi range within threshold degrees.
func IsLinear(points []math.Vec2, threshold float32) bool {
	if len(points) < 3 {
		return true
	}
	return phiRange(points) <= threshold
}

// ConstructBlendTriangles partitions points into islands and triangulates
// each island independently. Fewer than three points or ForceLinear produce
// a linear space of one island without triangles.
func ConstructBlendTriangles(points []math.Vec2, opts Options) (*Triangulation, error) {
	if len(points) > MaxAnims {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManySamples, len(points), MaxAnims)
	}

	t := &Triangulation{Points: append([]math.Vec2(nil), points...)}
	if opts.ForceLinear || len(points) < 3 {
		t.Linear = true
		t.Islands = make([]uint8, len(points))
		t.NumIslands = min(len(points), 1)
		return t, nil
	}
	t.Islands, t.NumIslands = partitionIslands(points, opts)

	limit := min(2*len(points)-2, MaxBlendTriangles)
	for island := 0; island < t.NumIslands; island++ {
		var members []int
		for i, id := range t.Islands {
			if int(id) != island {
				continue
			}
			if duplicateOf(points, members, i, opts.DuplicateTolerance) >= 0 {
				t.HasDuplicates = true
				continue
			}
			members = append(members, i)
		}
		if len(members) < 3 {
			continue
		}

		for _, tri := range delaunay(planePoints(points, members)) {
			if len(t.Triangles) >= limit {
				return t, nil
			}
			a, b, c := members[tri[0]], members[tri[1]], members[tri[2]]
			area := signedArea(points[a], points[b], points[c])
			if math.Abs(area) < opts.MinTriangleArea {
				continue
			}
			if area < 0 {
				b, c = c, b
			}
			t.Triangles = append(t.Triangles, Triangle{
				V:      [3]uint8{uint8(a), uint8(b), uint8(c)},
				Island: uint8(island),
			})
		}
	}
	return t, nil
}

// ManualTriangles builds a single-island mesh from authored index triples.
// Winding is normalized like generated triangles.
func ManualTriangles(points []math.Vec2, mesh [][3]int) (*Triangulation, error) {
	if len(points) > MaxAnims {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManySamples, len(points), MaxAnims)
	}
	t := &Triangulation{
		Points:     append([]math.Vec2(nil), points...),
		Islands:    make([]uint8, len(points)),
		NumIslands: 1,
		Manual:     true,
	}
	for k, tri := range mesh {
		for _, i := range tri {
			if i < 0 || i >= len(points) {
				return nil, fmt.Errorf("%w: triangle %d index %d", ErrBadMeshIndex, k, i)
			}
		}
		if len(t.Triangles) >= MaxBlendTriangles {
			break
		}
		a, b, c := tri[0], tri[1], tri[2]
		if signedArea(points[a], points[b], points[c]) < 0 {
			b, c = c, b
		}
		t.Triangles = append(t.Triangles, Triangle{V: [3]uint8{uint8(a), uint8(b), uint8(c)}})
	}
	return t, nil
}

type unionFind []int

func newUnionFind(n int) unionFind {
	u := make(unionFind, n)
	for i := range u {
		u[i] = i
	}
	return u
}

func (u unionFind) find(i int) int {
	for u[i] != i {
		u[i] = u[u[i]]
		i = u[i]
	}
	return i
}

func (u unionFind) union(a, b int) {
	if ra, rb := u.find(a), u.find(b); ra != rb {
		u[rb] = ra
	}
}

// partitionIslands labels the connected components of the Delaunay graph of
// each no-blend side. Edges longer than IslandLinkThreshold are cut; a
// component of fewer than three distinct samples joins its nearest neighbour
// on the same side. Labels are assigned in order of the first point of each
// component.
func partitionIslands(points []math.Vec2, opts Options) ([]uint8, int) {
	u := newUnionFind(len(points))

	sides := [][]int{nil, nil}
	for i, p := range points {
		side := 0
		if opts.HasNoBlendDir && p.X >= opts.NoBlendTheta {
			side = 1
		}
		sides[side] = append(sides[side], i)
	}

	for _, side := range sides {
		var distinct []int
		for _, i := range side {
			if j := duplicateOf(points, distinct, i, opts.DuplicateTolerance); j >= 0 {
				u.union(j, i)
				continue
			}
			distinct = append(distinct, i)
		}

		for _, tri := range delaunay(planePoints(points, distinct)) {
			for e := 0; e < 3; e++ {
				a, b := distinct[tri[e]], distinct[tri[(e+1)%3]]
				if opts.IslandLinkThreshold <= 0 || points[a].Distance(points[b]) <= opts.IslandLinkThreshold {
					u.union(a, b)
				}
			}
		}
		mergeSmallIslands(points, distinct, u)
	}

	labels := make([]uint8, len(points))
	ids := map[int]uint8{}
	for i := range points {
		r := u.find(i)
		id, ok := ids[r]
		if !ok {
			id = uint8(len(ids))
			ids[r] = id
		}
		labels[i] = id
	}
	return labels, len(ids)
}

// mergeSmallIslands joins every component of distinct holding fewer than
// three samples to the component owning its nearest sample, until one
// component is left or all have three.
func mergeSmallIslands(points []math.Vec2, distinct []int, u unionFind) {
	for {
		size := map[int]int{}
		for _, i := range distinct {
			size[u.find(i)]++
		}
		if len(size) < 2 {
			return
		}

		small := -1
		for _, i := range distinct {
			if r := u.find(i); size[r] < 3 {
				small = r
				break
			}
		}
		if small < 0 {
			return
		}

		best, nearest := float32(stdmath.MaxFloat32), -1
		for _, i := range distinct {
			if u.find(i) != small {
				continue
			}
			for _, j := range distinct {
				if u.find(j) == small {
					continue
				}
				if d := points[i].Distance(points[j]); d < best {
					best, nearest = d, j
				}
			}
		}
		u.union(nearest, small)
	}
}

// duplicateOf returns the member of members within tol of point i, or -1.
func duplicateOf(points []math.Vec2, members []int, i int, tol float32) int {
	for _, m := range members {
		if points[m].Distance(points[i]) <= tol {
			return m
		}
	}
	return -1
}

func planePoints(points []math.Vec2, idx []int) [][2]float64 {
	pts := make([][2]float64, len(idx))
	for k, i := range idx {
		pts[k] = [2]float64{float64(points[i].X), float64(points[i].Y)}
	}
	return pts
}

func phiRange(points []math.Vec2) float32 {
	if len(points) == 0 {
		return 0
	}
	lo, hi := points[0].Y, points[0].Y
	for _, p := range points[1:] {
		lo = min(lo, p.Y)
		hi = max(hi, p.Y)
	}
	return hi - lo
}

// signedArea is positive for counter-clockwise a, b, c.
func signedArea(a, b, c math.Vec2) float32 {
	return 0.5 * b.Sub(a).Cross(c.Sub(a))
}

// sortedByTheta returns point indices ordered by theta.
func sortedByTheta(points []math.Vec2) []int {
	idx := make([]int, len(points))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return points[idx[a]].X < points[idx[b]].X })
	return idx
}
