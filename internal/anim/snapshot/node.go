// Package snapshot holds the per-instance blend tree taken when an animation
// state is entered.
//
// Nodes live in a fixed-capacity Heap and refer to each other only by Index,
// so a whole tree can be copied or reset in bulk. The root is Snapshot.Root.
package snapshot

import (
	"fmt"

	"github.com/Faultbox/midgard-anim/internal/anim/clip"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Kind tags a node variant.
type Kind uint8

const (
	KindLeaf Kind = iota
	KindBlend
	KindUnary
	KindGesture
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindBlend:
		return "blend"
	case KindUnary:
		return "unary"
	case KindGesture:
		return "gesture"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Index addresses a node within its Heap.
type Index uint16

// InvalidIndex marks an absent child.
const InvalidIndex Index = 0xFFFF

// Leaf plays a single clip.
type Leaf struct {
	Clip  clip.Lookup
	Phase float32
	Rate  float32
}

// Blend combines two children.
type Blend struct {
	Left, Right Index
	// Factor is the authored weight in [0,1].
	Factor float32
	// External scales Factor without changing it. Defaults to 1.
	External float32
	Additive bool
	// LeftOnly evaluates the left child and never touches the right.
	LeftOnly bool
}

// EffectiveFactor is Factor * External clamped to [0,1].
func (b *Blend) EffectiveFactor() float32 {
	return math.Clamp01(b.Factor * b.External)
}

// Unary decorates a single child, e.g. a procedural IK pass.
type Unary struct {
	Child Index
	Tag   string
}

// GestureRuntime is the behaviour a gesture node plugs into the tree.
type GestureRuntime interface {
	// Step advances the gesture by dt seconds.
	Step(dt float32)
	// RefreshPhases re-resolves clips after the clip table changed.
	RefreshPhases(table clip.Table)
	// Release drops any external references held by the gesture.
	Release()
}

// Node is one tagged tree node. Only the field matching Kind is meaningful.
type Node struct {
	Kind  Kind
	Index Index
	Name  string

	Leaf    Leaf
	Blend   Blend
	Unary   Unary
	Gesture GestureRuntime
}
