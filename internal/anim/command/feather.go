package command

import (
	"errors"

	"github.com/Faultbox/midgard-anim/internal/anim/layer"
)

// PluginWeaponIkFeather is the plugin name of the weapon IK feather pass.
const PluginWeaponIkFeather = "weapon-ik-feather"

// FeatherData is the payload of a weapon IK feather plugin command.
type FeatherData struct {
	// Factor is the character-wide feather factor for this frame.
	Factor float32
	// InstanceWeight is the requesting instance's own feather weight.
	InstanceWeight float32
}

// WeaponIkFeatherBlender aggregates weapon IK feathering across a layer
// stack and emits the feather pass after every requesting instance.
type WeaponIkFeatherBlender struct {
	Stack *layer.Stack
	// Request returns an instance's feather weight, or false when the
	// instance does not feather.
	Request func(inst *layer.Instance) (float32, bool)

	factor float32
}

// Compute folds the per-instance requests: lerp by fade across each pool,
// then max weighted by layer fade across layers.
func (b *WeaponIkFeatherBlender) Compute() float32 {
	src := layer.Float32{Extract: b.Request}
	b.factor = layer.FoldLayers[float32](b.Stack, 0, layer.MaxByFade, layer.Float32{},
		func(l *layer.Layer) (float32, bool) {
			return layer.BlendForward[float32](l.Pool, src), true
		})
	return b.factor
}

// Factor returns the value of the last Compute.
func (b *WeaponIkFeatherBlender) Factor() float32 {
	return b.factor
}

// Hooks returns generator callbacks bound to b.
func (b *WeaponIkFeatherBlender) Hooks() Hooks {
	return Hooks{PostBlend: b.postBlend, UserData: b}
}

func (b *WeaponIkFeatherBlender) postBlend(l *List, slot, layerIndex, instanceIndex int, userData any) error {
	if b.Request == nil || b.Stack == nil {
		return nil
	}
	if layerIndex < 0 || layerIndex >= len(b.Stack.Layers) {
		return errors.New("weapon ik feather: layer index out of range")
	}
	pool := b.Stack.Layers[layerIndex].Pool
	if instanceIndex < 0 || instanceIndex >= pool.Len() {
		return errors.New("weapon ik feather: instance index out of range")
	}

	w, ok := b.Request(pool.At(instanceIndex))
	if !ok {
		return nil
	}
	return l.AddPlugin(PluginWeaponIkFeather, slot, layerIndex, instanceIndex, FeatherData{
		Factor:         b.factor,
		InstanceWeight: w,
	})
}
