package cache

import (
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/anim/clip"
	"github.com/Faultbox/midgard-anim/internal/gesture"
	"github.com/Faultbox/midgard-anim/internal/gesture/library"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Channels read from gesture clips.
const (
	// ChannelGestureDir carries the aim direction a clip was authored for.
	ChannelGestureDir clip.ChannelID = 0x67646972
	// ChannelNoBlend carries the heading that must not be blended across.
	ChannelNoBlend clip.ChannelID = 0x6e626c64
)

// lookupMemo reuses the previous resolution when consecutive pairs name the
// same clip.
type lookupMemo struct {
	name   string
	lookup clip.Lookup
}

func (c *Cache) resolve(m *lookupMemo, name string) clip.Lookup {
	if name == "" {
		return clip.Lookup{}
	}
	if m.name == name {
		return m.lookup
	}
	l := clip.Lookup{Name: name, Clip: c.table.LookupAnim(name), Generation: c.table.Generation()}
	m.name, m.lookup = name, l
	return l
}

// construct builds d from def. d must be write-locked.
func (c *Cache) construct(d *Data, def *library.Def) {
	c.built.Add(1)
	c.m.constructions.Inc()

	d.def = def
	d.name = def.Name
	d.generation = c.table.Generation()
	d.bad = false
	d.anims = d.anims[:0]
	d.mesh = nil
	d.noBlend = false
	d.lowLod = clip.Lookup{}

	anims := def.AnimsFor(d.key.AltIndex)
	var memo [2]lookupMemo
	for i := range anims.Pairs {
		c.cacheAnim(d, &memo, i, &anims.Pairs[i])
		if len(d.anims) >= gesture.MaxAnims || d.bad {
			break
		}
	}

	if def.LowLodAnim != "" && !d.bad {
		d.lowLod = c.resolve(&lookupMemo{}, def.LowLodAnim)
	}
	if d.bad {
		for i := range d.anims {
			d.anims[i].Partial.Clip = nil
			d.anims[i].Additive.Clip = nil
		}
	}

	c.addPoleSamplesLocked(d)
	c.refreshPhasesAndDirectionsLocked(d)
	c.refreshNoBlendDirLocked(d)
	c.buildMeshLocked(d)

	if d.bad {
		c.m.bad.Inc()
		c.log.Debug("gesture cache entry is bad", zap.String("gesture", def.Name), zap.Stringer("key", d.key))
	}
}

// cacheAnim appends the samples of one authored pair.
func (c *Cache) cacheAnim(d *Data, memo *[2]lookupMemo, src int, pair *library.AnimPair) {
	var partial, additive clip.Lookup
	t := d.key.AnimType
	if t == library.AnimSlerp || t == library.AnimCombo {
		if partial = c.resolve(&memo[0], pair.Partial); !partial.Valid() {
			d.bad = true
			return
		}
	}
	if t == library.AnimAdditive || t == library.AnimCombo {
		if additive = c.resolve(&memo[1], pair.Additive); !additive.Valid() {
			d.bad = true
			return
		}
	}

	ref := partial.Clip
	if ref == nil {
		ref = additive.Clip
	}

	dir := gesture.ClampAuthored(pair.H, pair.V, d.key.Flipped)
	for _, frame := range framesForPair(ref, pair.FrameRange, gesture.MaxAnims-len(d.anims)) {
		if len(d.anims) >= gesture.MaxAnims {
			return
		}
		a := CachedAnim{
			Partial:  partial,
			Additive: additive,
			Source:   src,
			Authored: dir,
			Dir:      dir,
			Frame:    frame,
			Phase:    -1,
		}
		d.anims = append(d.anims, a)

		if d.def.Wrap360 && len(d.anims) < gesture.MaxAnims {
			a.WrapAround = true
			d.anims = append(d.anims, a)
		}
	}
}

// framesForPair returns the authored frame of each sample a pair expands
// into: -1 once without a frame range, or one per frame of the range.
func framesForPair(ref *clip.Clip, frameRange []int, limit int) []float32 {
	if limit <= 0 || ref == nil {
		return nil
	}
	if len(frameRange) != 2 {
		return []float32{-1}
	}

	last := ref.NumFrames
	start := min(last, max(frameRange[0], 0))
	n := min(min(last+1, frameRange[1])-start, limit)
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func (d *Data) samples() []gesture.Sample {
	out := make([]gesture.Sample, len(d.anims))
	for i := range d.anims {
		a := &d.anims[i]
		out[i] = gesture.Sample{Dir: a.Dir, Source: i, WrapAround: a.WrapAround, Extra: a.Extra}
	}
	return out
}

func (c *Cache) addPoleSamplesLocked(d *Data) {
	padded := gesture.PadPoles(d.samples())
	for _, s := range padded[len(d.anims):] {
		a := d.anims[s.Source]
		a.Dir = s.Dir
		a.Extra = true
		a.WrapAround = false
		d.anims = append(d.anims, a)
	}
}

// refreshAnimsLocked re-resolves clip handles, marking d bad when a clip has
// gone missing.
func (c *Cache) refreshAnimsLocked(d *Data) {
	for i := range d.anims {
		a := &d.anims[i]
		if a.Partial.Name != "" {
			a.Partial = c.table.LookupAnimCached(a.Partial)
			if !a.Partial.Valid() {
				d.bad = true
			}
		}
		if a.Additive.Name != "" {
			a.Additive = c.table.LookupAnimCached(a.Additive)
			if !a.Additive.Valid() {
				d.bad = true
			}
		}
	}
	if d.lowLod.Name != "" {
		d.lowLod = c.table.LookupAnimCached(d.lowLod)
	}
}

func (c *Cache) refreshPhasesAndDirectionsLocked(d *Data) {
	for i := range d.anims {
		a := &d.anims[i]
		ref := a.Clip()

		a.Phase = -1
		if ref != nil && a.Frame >= 0 {
			a.Phase = clip.PhaseForFrame(ref, a.Frame)
		}

		if a.Extra {
			continue
		}
		a.Dir = a.Authored
		if ref != nil {
			if pose, ok := c.table.EvaluateChannel(ref, math.Clamp01(a.Phase), ChannelGestureDir); ok {
				a.Dir = gesture.FromRotation(pose.Rotation, d.key.Flipped)
			}
		}
		if a.WrapAround {
			a.Dir.Theta = gesture.WrapTheta(a.Dir.Theta)
		}
	}
	d.hyperRange = gesture.HyperRange(d.samples())
}

func (c *Cache) refreshNoBlendDirLocked(d *Data) {
	d.noBlend = false
	if d.def != nil && d.def.NoBlendTheta != nil {
		d.noBlend = true
		d.noBlendDir = *d.def.NoBlendTheta
		if d.key.Flipped {
			d.noBlendDir = -d.noBlendDir
		}
		return
	}
	for i := range d.anims {
		ref := d.anims[i].Clip()
		if ref == nil {
			continue
		}
		if pose, ok := c.table.EvaluateChannel(ref, 0, ChannelNoBlend); ok {
			d.noBlend = true
			d.noBlendDir = gesture.FromRotation(pose.Rotation, d.key.Flipped).Theta
			return
		}
	}
}

func (c *Cache) buildMeshLocked(d *Data) {
	pts := gesture.Points(d.samples())
	anims := d.def.AnimsFor(d.key.AltIndex)

	if len(anims.ManualMesh) > 0 {
		tris := make([][3]int, len(anims.ManualMesh))
		for i, t := range anims.ManualMesh {
			copy(tris[i][:], t)
		}
		mesh, err := gesture.ManualTriangles(pts, tris)
		if err == nil {
			d.mesh = mesh
			return
		}
		d.bad = true
		c.log.Debug("gesture manual mesh rejected", zap.String("gesture", d.name), zap.Error(err))
		d.mesh, _ = gesture.ConstructBlendTriangles(pts, gesture.Options{ForceLinear: true})
		return
	}

	opts := c.opts.Triangulation
	opts.ForceLinear = d.def.ForceLinear || gesture.IsLinear(pts, c.opts.LinearThreshold)
	opts.HasNoBlendDir = d.noBlend
	opts.NoBlendTheta = d.noBlendDir

	mesh, err := gesture.ConstructBlendTriangles(pts, opts)
	if err != nil {
		d.bad = true
		c.log.Debug("gesture triangulation failed", zap.String("gesture", d.name), zap.Error(err))
		d.mesh, _ = gesture.ConstructBlendTriangles(nil, gesture.Options{ForceLinear: true})
		return
	}
	d.mesh = mesh
}
