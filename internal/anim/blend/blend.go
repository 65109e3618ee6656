// Package blend folds a snapshot tree into a single value.
//
// Walk recurses from the root. Leaves, gestures and unary nodes are asked for
// data through a Reducer; blend nodes combine their children:
//
//   - LeftOnly: the left value, right subtree untouched
//   - additive: Max(left, right)
//   - effective factor <= 0: the left value, right subtree untouched
//   - effective factor >= 1: the right value, left subtree untouched
//   - otherwise Lerp(left, right, factor)
package blend

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-anim/internal/anim/snapshot"
)

var (
	// ErrBadIndex is returned when a node refers to an unallocated index.
	ErrBadIndex = errors.New("blend tree: bad node index")
	// ErrDepthExceeded is returned when recursion passes the depth limit.
	ErrDepthExceeded = errors.New("blend tree: depth limit exceeded")
)

// DefaultMaxDepth is used when Options.MaxDepth is zero.
const DefaultMaxDepth = 64

// Reducer supplies per-node data and the combine operations for Walk.
type Reducer[D any] interface {
	// Default is returned for leaves that decline to produce data.
	Default() D
	// Extract returns the node's data, or false to decline. A declining
	// unary node recurses into its child.
	Extract(n *snapshot.Node) (D, bool)
	// Lerp interpolates for a non-additive blend.
	Lerp(left, right D, t float32, flipped bool) D
	// Max combines the children of an additive blend.
	Max(left, right D) D
}

// Options tunes a walk.
type Options struct {
	MaxDepth int
}

// Stats describes a finished walk.
type Stats struct {
	Visits   int
	MaxDepth int
}

// Walk folds the tree under s.Root with r.
func Walk[D any](s *snapshot.Snapshot, r Reducer[D], opts Options) (D, Stats, error) {
	w := walker[D]{s: s, r: r, limit: opts.MaxDepth}
	if w.limit <= 0 {
		w.limit = DefaultMaxDepth
	}
	d, err := w.node(s.Root, 0)
	if err != nil {
		return r.Default(), w.stats, err
	}
	return d, w.stats, nil
}

// WalkFrom folds the subtree under root.
func WalkFrom[D any](s *snapshot.Snapshot, root snapshot.Index, r Reducer[D], opts Options) (D, Stats, error) {
	sub := *s
	sub.Root = root
	return Walk(&sub, r, opts)
}

type walker[D any] struct {
	s     *snapshot.Snapshot
	r     Reducer[D]
	limit int
	stats Stats
}

func (w *walker[D]) node(i snapshot.Index, depth int) (D, error) {
	w.stats.Visits++
	if depth > w.stats.MaxDepth {
		w.stats.MaxDepth = depth
	}
	if depth >= w.limit {
		return w.r.Default(), fmt.Errorf("%w: %d at node %d", ErrDepthExceeded, w.limit, i)
	}

	n := w.s.Node(i)
	if n == nil {
		return w.r.Default(), fmt.Errorf("%w: %d", ErrBadIndex, i)
	}

	switch n.Kind {
	case snapshot.KindBlend:
		return w.blend(n, depth)
	case snapshot.KindUnary:
		if d, ok := w.r.Extract(n); ok {
			return d, nil
		}
		if n.Unary.Child == snapshot.InvalidIndex {
			return w.r.Default(), nil
		}
		return w.node(n.Unary.Child, depth+1)
	default:
		if d, ok := w.r.Extract(n); ok {
			return d, nil
		}
		return w.r.Default(), nil
	}
}

func (w *walker[D]) blend(n *snapshot.Node, depth int) (D, error) {
	b := &n.Blend
	if b.LeftOnly {
		return w.node(b.Left, depth+1)
	}

	if b.Additive {
		left, err := w.node(b.Left, depth+1)
		if err != nil {
			return left, err
		}
		right, err := w.node(b.Right, depth+1)
		if err != nil {
			return right, err
		}
		return w.r.Max(left, right), nil
	}

	f := b.EffectiveFactor()
	if f <= 0 {
		return w.node(b.Left, depth+1)
	}
	if f >= 1 {
		return w.node(b.Right, depth+1)
	}

	left, err := w.node(b.Left, depth+1)
	if err != nil {
		return left, err
	}
	right, err := w.node(b.Right, depth+1)
	if err != nil {
		return right, err
	}
	return w.r.Lerp(left, right, f, w.s.Flipped), nil
}
