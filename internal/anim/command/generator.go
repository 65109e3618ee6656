package command

import (
	"fmt"

	"github.com/Faultbox/midgard-anim/internal/anim/blend"
	"github.com/Faultbox/midgard-anim/internal/anim/layer"
	"github.com/Faultbox/midgard-anim/internal/anim/snapshot"
)

// GestureEmitter is implemented by gesture runtimes that emit their own
// commands.
type GestureEmitter interface {
	GenerateCommands(l *List, slot int, flipped bool) error
}

// HookFunc is called around each instance of a layer.
type HookFunc func(l *List, slot, layerIndex, instanceIndex int, userData any) error

// Hooks are the callback points of the generator.
type Hooks struct {
	// PreBlend runs before an instance's tree is emitted.
	PreBlend HookFunc
	// PostBlend runs after the instance is blended into the layer slot.
	PostBlend HookFunc
	UserData  any
}

// Generator emits commands. The zero value is usable.
type Generator struct {
	MaxDepth int
	Hooks    []Hooks
}

// AddHooks registers another set of callbacks.
func (g *Generator) AddHooks(h Hooks) {
	g.Hooks = append(g.Hooks, h)
}

// GenerateStack emits the whole character: an empty base pose with every
// active layer blended over it by its fade. The result lands in slot 0.
func (g *Generator) GenerateStack(l *List, s *layer.Stack) error {
	if err := l.AddEvaluateEmptyPose(0); err != nil {
		return err
	}
	for i, ly := range s.Layers {
		if !ly.Active() {
			continue
		}
		if err := g.GenerateLayer(l, i, ly, 1); err != nil {
			return fmt.Errorf("layer %s: %w", ly.Name, err)
		}
		if err := l.AddBlend(0, 1, ly.Fade, false); err != nil {
			return err
		}
	}
	return nil
}

// GenerateLayer emits the layer's instances old to new into slot. Instances
// older than the newest fully faded one are skipped.
func (g *Generator) GenerateLayer(l *List, layerIndex int, ly *layer.Layer, slot int) error {
	first := 0
	for i := ly.Pool.Len() - 1; i >= 0; i-- {
		if ly.Pool.At(i).Fade >= 1 {
			first = i
			break
		}
	}

	emitted := false
	for i := first; i < ly.Pool.Len(); i++ {
		inst := ly.Pool.At(i)
		if inst.Fade <= 0 || inst.Snapshot == nil {
			continue
		}

		target := slot
		if emitted {
			target = slot + 1
		}
		if err := g.runHooks(l, true, slot, layerIndex, i); err != nil {
			return err
		}
		if err := g.GenerateSnapshot(l, inst.Snapshot, target); err != nil {
			return fmt.Errorf("instance %d: %w", inst.ID, err)
		}
		if emitted {
			if err := l.AddBlend(slot, target, inst.Fade, false); err != nil {
				return err
			}
		}
		emitted = true
		if err := g.runHooks(l, false, slot, layerIndex, i); err != nil {
			return err
		}
	}

	if !emitted {
		return l.AddEvaluateEmptyPose(slot)
	}
	return nil
}

func (g *Generator) runHooks(l *List, pre bool, slot, layerIndex, instanceIndex int) error {
	for _, h := range g.Hooks {
		fn := h.PostBlend
		if pre {
			fn = h.PreBlend
		}
		if fn == nil {
			continue
		}
		if err := fn(l, slot, layerIndex, instanceIndex, h.UserData); err != nil {
			return err
		}
	}
	return nil
}

// GenerateSnapshot emits one tree into slot, using slot+1 and up as scratch.
// Blend skipping follows the same rules as blend.Walk.
func (g *Generator) GenerateSnapshot(l *List, s *snapshot.Snapshot, slot int) error {
	limit := g.MaxDepth
	if limit <= 0 {
		limit = blend.DefaultMaxDepth
	}
	return g.node(l, s, s.Root, slot, 0, limit)
}

func (g *Generator) node(l *List, s *snapshot.Snapshot, i snapshot.Index, slot, depth, limit int) error {
	if depth >= limit {
		return fmt.Errorf("%w: %d at node %d", blend.ErrDepthExceeded, limit, i)
	}
	n := s.Node(i)
	if n == nil {
		return fmt.Errorf("%w: %d", blend.ErrBadIndex, i)
	}

	switch n.Kind {
	case snapshot.KindLeaf:
		if !n.Leaf.Clip.Valid() {
			return l.AddEvaluateEmptyPose(slot)
		}
		return l.AddEvaluateClip(slot, n.Leaf.Clip.Clip, n.Leaf.Phase, s.Flipped)

	case snapshot.KindGesture:
		if em, ok := n.Gesture.(GestureEmitter); ok {
			return em.GenerateCommands(l, slot, s.Flipped)
		}
		return l.AddEvaluateEmptyPose(slot)

	case snapshot.KindUnary:
		if n.Unary.Child == snapshot.InvalidIndex {
			if err := l.AddEvaluateEmptyPose(slot); err != nil {
				return err
			}
		} else if err := g.node(l, s, n.Unary.Child, slot, depth+1, limit); err != nil {
			return err
		}
		return l.AddPlugin(n.Unary.Tag, slot, -1, -1, nil)

	case snapshot.KindBlend:
		b := &n.Blend
		f := b.EffectiveFactor()
		switch {
		case b.LeftOnly:
			return g.node(l, s, b.Left, slot, depth+1, limit)
		case !b.Additive && f <= 0:
			return g.node(l, s, b.Left, slot, depth+1, limit)
		case !b.Additive && f >= 1:
			return g.node(l, s, b.Right, slot, depth+1, limit)
		}
		if err := g.node(l, s, b.Left, slot, depth+1, limit); err != nil {
			return err
		}
		if err := g.node(l, s, b.Right, slot+1, depth+1, limit); err != nil {
			return err
		}
		return l.AddBlend(slot, slot+1, f, b.Additive)
	}

	return fmt.Errorf("%w: unknown kind %s", blend.ErrBadIndex, n.Kind)
}
