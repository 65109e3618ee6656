package controller

import (
	"github.com/Faultbox/midgard-anim/internal/anim/blend"
	"github.com/Faultbox/midgard-anim/internal/anim/layer"
	"github.com/Faultbox/midgard-anim/internal/anim/snapshot"
	"github.com/Faultbox/midgard-anim/internal/gesture/library"
	"github.com/Faultbox/midgard-anim/internal/gesture/node"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// FlagBlend holds the gameplay flags of everything playing on a character
// as weights in [0,1].
type FlagBlend struct {
	Aiming           float32
	Looking          float32
	LookDisabled     float32
	AimDisabled      float32
	WeaponIkDisabled float32
	FeedbackDisabled float32
}

// WeaponIkBlend is how much weapon IK may apply.
func (f FlagBlend) WeaponIkBlend() float32 {
	return 1 - f.WeaponIkDisabled
}

func flagsOf(f library.Flags) FlagBlend {
	return FlagBlend{
		Aiming:           weight(f.Aiming),
		Looking:          weight(f.Looking),
		LookDisabled:     weight(f.LookDisabled),
		AimDisabled:      weight(f.AimDisabled),
		WeaponIkDisabled: weight(f.WeaponIkDisabled),
		FeedbackDisabled: weight(f.FeedbackDisabled),
	}
}

func weight(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func (f FlagBlend) zip(o FlagBlend, fn func(a, b float32) float32) FlagBlend {
	return FlagBlend{
		Aiming:           fn(f.Aiming, o.Aiming),
		Looking:          fn(f.Looking, o.Looking),
		LookDisabled:     fn(f.LookDisabled, o.LookDisabled),
		AimDisabled:      fn(f.AimDisabled, o.AimDisabled),
		WeaponIkDisabled: fn(f.WeaponIkDisabled, o.WeaponIkDisabled),
		FeedbackDisabled: fn(f.FeedbackDisabled, o.FeedbackDisabled),
	}
}

func lerpFlags(a, b FlagBlend, t float32) FlagBlend {
	return a.zip(b, func(x, y float32) float32 { return math.Lerp(x, y, t) })
}

func maxFlags(a, b FlagBlend) FlagBlend {
	return a.zip(b, math.Max)
}

// flagReducer reads gesture flags out of one snapshot tree.
type flagReducer struct{}

func (flagReducer) Default() FlagBlend { return FlagBlend{} }

func (flagReducer) Extract(n *snapshot.Node) (FlagBlend, bool) {
	if n.Kind != snapshot.KindGesture {
		return FlagBlend{}, false
	}
	g, ok := n.Gesture.(*node.Node)
	if !ok || g.Bad() {
		return FlagBlend{}, false
	}
	return flagsOf(g.Flags()), true
}

func (flagReducer) Lerp(left, right FlagBlend, t float32, _ bool) FlagBlend {
	return lerpFlags(left, right, t)
}

func (flagReducer) Max(left, right FlagBlend) FlagBlend {
	return maxFlags(left, right)
}

// flagFold folds instance trees across a pool and pools across layers.
// Walk failures are collected for reporting.
type flagFold struct {
	walk blend.Options
	errs []error
}

func (*flagFold) Default() FlagBlend { return FlagBlend{} }

func (f *flagFold) DataForInstance(inst *layer.Instance) (FlagBlend, bool) {
	if inst.Snapshot == nil || inst.Snapshot.Root == snapshot.InvalidIndex {
		return FlagBlend{}, false
	}
	d, _, err := blend.Walk[FlagBlend](inst.Snapshot, flagReducer{}, f.walk)
	if err != nil {
		f.errs = append(f.errs, err)
		return FlagBlend{}, false
	}
	return d, true
}

func (*flagFold) Blend(left, right FlagBlend, fade float32) FlagBlend {
	return lerpFlags(left, right, fade)
}

func (*flagFold) Lerp(a, b FlagBlend, t float32) FlagBlend { return lerpFlags(a, b, t) }
func (*flagFold) Max(a, b FlagBlend) FlagBlend             { return maxFlags(a, b) }

func (*flagFold) Scale(v FlagBlend, s float32) FlagBlend {
	return v.zip(FlagBlend{}, func(x, _ float32) float32 { return x * s })
}

// foldFlags computes the character-wide flags: a tree walk per instance,
// lerped by fade along each pool, then the max across layers weighted by
// layer fade.
func foldFlags(s *layer.Stack, walk blend.Options) (FlagBlend, []error) {
	f := &flagFold{walk: walk}
	out := layer.FoldLayers[FlagBlend](s, FlagBlend{}, layer.MaxByFade, f,
		func(l *layer.Layer) (FlagBlend, bool) {
			return layer.BlendForward[FlagBlend](l.Pool, f), true
		})
	return out, f.errs
}

// featherRequest is the weapon-IK feather weight of one instance: the
// strongest requesting gesture node, scaled by its weight in the tree.
func featherRequest(inst *layer.Instance) (float32, bool) {
	if inst.Snapshot == nil || inst.Snapshot.Root == snapshot.InvalidIndex {
		return 0, false
	}
	var best float32
	found := false
	err := inst.Snapshot.VisitNodesOfKind(snapshot.KindGesture, func(n *snapshot.Node, combined float32) bool {
		g, ok := n.Gesture.(*node.Node)
		if !ok {
			return true
		}
		if w, ok := g.FeatherWeight(); ok {
			best = math.Max(best, w*combined)
			found = true
		}
		return true
	})
	if err != nil {
		return 0, false
	}
	return best, found
}
