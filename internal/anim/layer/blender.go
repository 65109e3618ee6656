package layer

import "github.com/Faultbox/midgard-anim/pkg/math"

// InstanceBlender folds per-instance data across a pool.
type InstanceBlender[D any] interface {
	// Default is the value when nothing contributes.
	Default() D
	// DataForInstance returns the instance's data, or false to skip it.
	DataForInstance(inst *Instance) (D, bool)
	// Blend lays right over left with weight fade.
	Blend(left, right D, fade float32) D
}

// BlendForward folds the pool old to new starting from b.Default(). Each
// contributing instance is blended over the accumulator by its fade; a zero
// fade is skipped without querying the instance and a full fade replaces the
// accumulator.
func BlendForward[D any](p *Pool, b InstanceBlender[D]) D {
	acc := b.Default()
	p.ForEachOldToNew(func(inst *Instance) bool {
		acc = fold(acc, inst, b)
		return true
	})
	return acc
}

// BlendBackward produces the same value as BlendForward but walks new to old
// and stops at the first fully faded instance, so older instances are never
// queried.
func BlendBackward[D any](p *Pool, b InstanceBlender[D]) D {
	var live []*Instance
	p.ForEachNewToOld(func(inst *Instance) bool {
		live = append(live, inst)
		return inst.Fade < 1
	})

	acc := b.Default()
	for i := len(live) - 1; i >= 0; i-- {
		acc = fold(acc, live[i], b)
	}
	return acc
}

func fold[D any](acc D, inst *Instance, b InstanceBlender[D]) D {
	if inst.Fade <= 0 {
		return acc
	}
	d, ok := b.DataForInstance(inst)
	if !ok {
		return acc
	}
	if inst.Fade >= 1 {
		return d
	}
	return b.Blend(acc, d, inst.Fade)
}

// FoldMode selects how layer values are combined.
type FoldMode uint8

const (
	// LerpByFade blends each layer over the accumulator by its fade.
	LerpByFade FoldMode = iota
	// MaxByFade keeps max(acc, value*fade), for flag-like data.
	MaxByFade
)

// Combiner is the arithmetic FoldLayers needs from D.
type Combiner[D any] interface {
	Lerp(a, b D, t float32) D
	Max(a, b D) D
	Scale(v D, s float32) D
}

// FoldLayers combines one value per active layer, bottom to top.
func FoldLayers[D any](s *Stack, initial D, mode FoldMode, c Combiner[D], data func(*Layer) (D, bool)) D {
	acc := initial
	for _, l := range s.Layers {
		if !l.Active() {
			continue
		}
		v, ok := data(l)
		if !ok {
			continue
		}
		switch mode {
		case MaxByFade:
			acc = c.Max(acc, c.Scale(v, l.Fade))
		default:
			if l.Fade >= 1 {
				acc = v
			} else {
				acc = c.Lerp(acc, v, l.Fade)
			}
		}
	}
	return acc
}

// Float32 implements Combiner and, with Extract set, InstanceBlender for
// scalars.
type Float32 struct {
	DefaultValue float32
	Extract      func(*Instance) (float32, bool)
}

func (f Float32) Default() float32 { return f.DefaultValue }

func (f Float32) DataForInstance(inst *Instance) (float32, bool) {
	if f.Extract == nil {
		return 0, false
	}
	return f.Extract(inst)
}

func (Float32) Blend(left, right float32, fade float32) float32 {
	return math.Lerp(left, right, fade)
}

func (Float32) Lerp(a, b float32, t float32) float32 { return math.Lerp(a, b, t) }
func (Float32) Max(a, b float32) float32             { return math.Max(a, b) }
func (Float32) Scale(v float32, s float32) float32   { return v * s }
