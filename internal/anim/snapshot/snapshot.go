package snapshot

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-anim/internal/anim/clip"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// ErrCycle is returned when a walk revisits more nodes than the heap holds.
var ErrCycle = errors.New("snapshot tree is cyclic")

// ErrDangling is returned when a node refers to an unallocated index.
var ErrDangling = errors.New("snapshot tree has a dangling index")

// zeroBlend is the factor under which a right subtree is left idle.
const zeroBlend = 0.0001

// Snapshot is the blend tree of one animation state instance.
type Snapshot struct {
	Heap    *Heap
	Root    Index
	Flipped bool
	// Phase is the state phase in [0,1], driven by the root leaf.
	Phase float32

	marks []walkMark
}

// walkMark tracks a node during a walk so a subtree shared by two parents
// is visited once and a node reached from its own subtree is a cycle.
type walkMark uint8

const (
	markNone walkMark = iota
	markOpen
	markDone
)

// New creates an empty snapshot with its own heap.
func New(capacity int) *Snapshot {
	return &Snapshot{Heap: NewHeap(capacity), Root: InvalidIndex}
}

// Node returns the node at i, or nil.
func (s *Snapshot) Node(i Index) *Node {
	if i == InvalidIndex {
		return nil
	}
	return s.Heap.Get(i)
}

// AddLeaf allocates a leaf playing lookup.
func (s *Snapshot) AddLeaf(name string, lookup clip.Lookup) (Index, error) {
	n, err := s.Heap.Alloc(KindLeaf)
	if err != nil {
		return InvalidIndex, err
	}
	n.Name = name
	n.Leaf = Leaf{Clip: lookup, Rate: 1}
	return n.Index, nil
}

// AddBlend allocates a blend of left and right.
func (s *Snapshot) AddBlend(left, right Index, factor float32, additive bool) (Index, error) {
	n, err := s.Heap.Alloc(KindBlend)
	if err != nil {
		return InvalidIndex, err
	}
	n.Blend = Blend{
		Left:     left,
		Right:    right,
		Factor:   math.Clamp01(factor),
		External: 1,
		Additive: additive,
	}
	return n.Index, nil
}

// AddUnary allocates a decorator over child.
func (s *Snapshot) AddUnary(tag string, child Index) (Index, error) {
	n, err := s.Heap.Alloc(KindUnary)
	if err != nil {
		return InvalidIndex, err
	}
	n.Name = tag
	n.Unary = Unary{Child: child, Tag: tag}
	return n.Index, nil
}

// AddGesture allocates a gesture node driven by rt.
func (s *Snapshot) AddGesture(name string, rt GestureRuntime) (Index, error) {
	n, err := s.Heap.Alloc(KindGesture)
	if err != nil {
		return InvalidIndex, err
	}
	n.Name = name
	n.Gesture = rt
	return n.Index, nil
}

// Step advances leaf phases and gesture nodes by dt seconds. The right side
// of a blend whose factor is effectively zero is not stepped. A node shared
// by several parents is stepped once.
func (s *Snapshot) Step(dt float32) error {
	s.resetMarks()
	return s.walk(s.Root, 0, func(n *Node) bool {
		switch n.Kind {
		case KindLeaf:
			stepLeaf(&n.Leaf, dt)
			if n.Index == s.Root {
				s.Phase = n.Leaf.Phase
			}
		case KindGesture:
			if n.Gesture != nil {
				n.Gesture.Step(dt)
			}
		}
		return true
	})
}

// RefreshPhases re-resolves every clip lookup against table.
func (s *Snapshot) RefreshPhases(table clip.Table) error {
	s.resetMarks()
	return s.walkAll(s.Root, 0, func(n *Node) {
		switch n.Kind {
		case KindLeaf:
			n.Leaf.Clip = table.LookupAnimCached(n.Leaf.Clip)
		case KindGesture:
			if n.Gesture != nil {
				n.Gesture.RefreshPhases(table)
			}
		}
	})
}

// VisitFunc receives a node and the product of the blend factors on the
// right-hand edges leading to it. Returning false stops the visit.
type VisitFunc func(n *Node, combinedBlend float32) bool

// VisitNodesOfKind calls fn for every node of kind reachable from the root.
func (s *Snapshot) VisitNodesOfKind(kind Kind, fn VisitFunc) error {
	_, err := s.visit(s.Root, kind, 1, 0, fn)
	return err
}

func (s *Snapshot) visit(i Index, kind Kind, combined float32, depth int, fn VisitFunc) (bool, error) {
	if depth > s.Heap.Len() {
		return false, ErrCycle
	}
	n := s.Node(i)
	if n == nil {
		return false, fmt.Errorf("%w: %d", ErrDangling, i)
	}
	if n.Kind == kind && !fn(n, combined) {
		return false, nil
	}

	switch n.Kind {
	case KindBlend:
		ok, err := s.visit(n.Blend.Left, kind, combined, depth+1, fn)
		if !ok || err != nil {
			return ok, err
		}
		if n.Blend.Right == InvalidIndex {
			return true, nil
		}
		return s.visit(n.Blend.Right, kind, combined*n.Blend.EffectiveFactor(), depth+1, fn)
	case KindUnary:
		if n.Unary.Child == InvalidIndex {
			return true, nil
		}
		return s.visit(n.Unary.Child, kind, combined, depth+1, fn)
	}
	return true, nil
}

func (s *Snapshot) resetMarks() {
	n := s.Heap.Len()
	if cap(s.marks) < n {
		s.marks = make([]walkMark, n)
		return
	}
	s.marks = s.marks[:n]
	clear(s.marks)
}

// enter marks n open. It reports false when n was already walked.
func (s *Snapshot) enter(n *Node) (bool, error) {
	switch s.marks[n.Index] {
	case markDone:
		return false, nil
	case markOpen:
		return false, fmt.Errorf("%w: node %d", ErrCycle, n.Index)
	}
	s.marks[n.Index] = markOpen
	return true, nil
}

// walk visits the live part of the tree pre-order.
func (s *Snapshot) walk(i Index, depth int, fn func(*Node) bool) error {
	if depth > s.Heap.Len() {
		return ErrCycle
	}
	n := s.Node(i)
	if n == nil {
		return fmt.Errorf("%w: %d", ErrDangling, i)
	}
	if ok, err := s.enter(n); !ok {
		return err
	}
	defer func() { s.marks[n.Index] = markDone }()
	if !fn(n) {
		return nil
	}

	switch n.Kind {
	case KindBlend:
		if err := s.walk(n.Blend.Left, depth+1, fn); err != nil {
			return err
		}
		if n.Blend.LeftOnly || n.Blend.Right == InvalidIndex || n.Blend.EffectiveFactor() < zeroBlend {
			return nil
		}
		return s.walk(n.Blend.Right, depth+1, fn)
	case KindUnary:
		if n.Unary.Child == InvalidIndex {
			return nil
		}
		return s.walk(n.Unary.Child, depth+1, fn)
	}
	return nil
}

// walkAll visits every reachable node once regardless of blend factors.
func (s *Snapshot) walkAll(i Index, depth int, fn func(*Node)) error {
	if depth > s.Heap.Len() {
		return ErrCycle
	}
	n := s.Node(i)
	if n == nil {
		return fmt.Errorf("%w: %d", ErrDangling, i)
	}
	if ok, err := s.enter(n); !ok {
		return err
	}
	defer func() { s.marks[n.Index] = markDone }()
	fn(n)

	switch n.Kind {
	case KindBlend:
		if err := s.walkAll(n.Blend.Left, depth+1, fn); err != nil {
			return err
		}
		if n.Blend.Right == InvalidIndex {
			return nil
		}
		return s.walkAll(n.Blend.Right, depth+1, fn)
	case KindUnary:
		if n.Unary.Child == InvalidIndex {
			return nil
		}
		return s.walkAll(n.Unary.Child, depth+1, fn)
	}
	return nil
}

// Release drops gesture references and frees every node.
func (s *Snapshot) Release() {
	for i := 0; i < s.Heap.Len(); i++ {
		n := s.Heap.Get(Index(i))
		if n.Kind == KindGesture && n.Gesture != nil {
			n.Gesture.Release()
		}
	}
	s.Heap.Reset()
	s.Root = InvalidIndex
	s.Phase = 0
}

func stepLeaf(l *Leaf, dt float32) {
	d := l.Clip.Clip.Duration()
	if d <= 0 {
		return
	}
	l.Phase += dt * l.Rate / d
	if l.Clip.Clip.Looping {
		for l.Phase > 1 {
			l.Phase -= 1
		}
		for l.Phase < 0 {
			l.Phase += 1
		}
		return
	}
	l.Phase = math.Clamp01(l.Phase)
}
