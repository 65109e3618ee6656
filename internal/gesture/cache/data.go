package cache

import (
	"sync"
	"sync/atomic"

	"github.com/Faultbox/midgard-anim/internal/anim/clip"
	"github.com/Faultbox/midgard-anim/internal/gesture"
	"github.com/Faultbox/midgard-anim/internal/gesture/library"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// CachedAnim is one sample of a built blend space.
type CachedAnim struct {
	Partial  clip.Lookup
	Additive clip.Lookup

	// Source is the authored pair this sample came from.
	Source int
	// Authored is the clamped direction from the definition. Dir is the
	// direction in use, read from the clip's gesture channel when present.
	Authored gesture.SphericalCoords
	Dir      gesture.SphericalCoords

	// Frame is the authored frame for frame-range samples, or -1.
	Frame float32
	// Phase is the sampling phase, or -1 when the clip is missing.
	Phase float32

	Extra      bool
	WrapAround bool
}

// Clip returns the clip whose timing drives the sample.
func (a *CachedAnim) Clip() *clip.Clip {
	if a.Partial.Clip != nil {
		return a.Partial.Clip
	}
	return a.Additive.Clip
}

// Data is one built blend space. Fields are written only under the entry
// lock; readers go through the accessor methods.
type Data struct {
	key  Key
	name string

	mu   sync.RWMutex
	refs atomic.Int32

	createdFrame uint64
	generation   uint64

	def        *library.Def
	anims      []CachedAnim
	mesh       *gesture.Triangulation
	bad        bool
	hyperRange bool
	noBlend    bool
	noBlendDir float32
	lowLod     clip.Lookup
}

// Key returns the entry key.
func (d *Data) Key() Key { return d.key }

// Name returns the gesture name.
func (d *Data) Name() string { return d.name }

// Refs returns the number of holders.
func (d *Data) Refs() int32 { return d.refs.Load() }

// IsBad reports whether construction failed, usually for a missing clip.
// Bad entries are still handed out so callers can degrade.
func (d *Data) IsBad() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bad
}

// View runs fn with the entry read-locked. fn must not keep v.
func (d *Data) View(fn func(v *View)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(&View{d: d})
}

// Select resolves a blend-space target into weighted samples.
func (d *Data) Select(target math.Vec2, island int) gesture.Selection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.mesh == nil {
		return gesture.Selection{Anims: [3]int{-1, -1, -1}, Triangle: -1}
	}
	return d.mesh.Select(target, island)
}

// ClosestIsland returns the island nearest target, or -1 for an empty mesh.
func (d *Data) ClosestIsland(target math.Vec2) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m := d.mesh
	if m == nil || len(m.Points) == 0 {
		return -1
	}
	if !m.Linear {
		if near := m.FindNearestBlendTriangle(target, -1); near.Triangle >= 0 {
			return m.IslandOf(near.Triangle)
		}
	}
	if first, _, _ := m.SelectLinear(target, -1); first >= 0 && first < len(m.Islands) {
		return int(m.Islands[first])
	}
	return -1
}

// NumIslands returns the island count of the mesh.
func (d *Data) NumIslands() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.mesh == nil {
		return 0
	}
	return d.mesh.NumIslands
}

// View is a read-locked window on a Data.
type View struct {
	d *Data
}

func (v *View) Def() *library.Def            { return v.d.def }
func (v *View) NumAnims() int                { return len(v.d.anims) }
func (v *View) Anim(i int) *CachedAnim       { return &v.d.anims[i] }
func (v *View) Mesh() *gesture.Triangulation { return v.d.mesh }
func (v *View) Bad() bool                    { return v.d.bad }
func (v *View) HyperRange() bool             { return v.d.hyperRange }
func (v *View) LowLod() clip.Lookup          { return v.d.lowLod }
func (v *View) NoBlendDir() (float32, bool)  { return v.d.noBlendDir, v.d.noBlend }

// DetachedPhase reports whether samples ignore the state phase.
func (v *View) DetachedPhase() bool {
	return v.d.def != nil && v.d.def.DetachedPhase
}

// Wrap360 reports whether samples were duplicated across the seam.
func (v *View) Wrap360() bool {
	return v.d.def != nil && v.d.def.Wrap360
}

// FeatherBlend names the weapon-IK feather curve of the played anims.
func (v *View) FeatherBlend() string {
	if v.d.def == nil {
		return ""
	}
	return v.d.def.AnimsFor(v.d.key.AltIndex).FeatherBlend
}

// NumIslands returns the island count of the mesh.
func (v *View) NumIslands() int {
	if v.d.mesh == nil {
		return 0
	}
	return v.d.mesh.NumIslands
}
