package blend

import (
	"github.com/Faultbox/midgard-anim/internal/anim/snapshot"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Funcs adapts plain functions to a Reducer. Nil LerpFn and MaxFn fall back
// to returning the left value.
type Funcs[D any] struct {
	DefaultValue D
	ExtractFn    func(n *snapshot.Node) (D, bool)
	LerpFn       func(left, right D, t float32, flipped bool) D
	MaxFn        func(left, right D) D
}

func (f Funcs[D]) Default() D { return f.DefaultValue }

func (f Funcs[D]) Extract(n *snapshot.Node) (D, bool) {
	if f.ExtractFn == nil {
		return f.DefaultValue, false
	}
	return f.ExtractFn(n)
}

func (f Funcs[D]) Lerp(left, right D, t float32, flipped bool) D {
	if f.LerpFn == nil {
		return left
	}
	return f.LerpFn(left, right, t, flipped)
}

func (f Funcs[D]) Max(left, right D) D {
	if f.MaxFn == nil {
		return left
	}
	return f.MaxFn(left, right)
}

// Float is a scalar reducer: lerp for interpolated blends, max for additive.
type Float struct {
	DefaultValue float32
	ExtractFn    func(n *snapshot.Node) (float32, bool)
}

func (f Float) Default() float32 { return f.DefaultValue }

func (f Float) Extract(n *snapshot.Node) (float32, bool) {
	if f.ExtractFn == nil {
		return 0, false
	}
	return f.ExtractFn(n)
}

func (Float) Lerp(left, right float32, t float32, _ bool) float32 {
	return math.Lerp(left, right, t)
}

func (Float) Max(left, right float32) float32 {
	return math.Max(left, right)
}
