package snapshot

import "errors"

// ErrHeapFull is returned when a snapshot has no room for another node.
var ErrHeapFull = errors.New("snapshot node heap full")

// Heap is a fixed-capacity node arena.
type Heap struct {
	nodes []Node
	used  int
}

// NewHeap creates a heap holding at most capacity nodes.
func NewHeap(capacity int) *Heap {
	if capacity > int(InvalidIndex) {
		capacity = int(InvalidIndex)
	}
	return &Heap{nodes: make([]Node, capacity)}
}

// Alloc reserves the next node. It never grows the arena.
func (h *Heap) Alloc(kind Kind) (*Node, error) {
	if h.used >= len(h.nodes) {
		return nil, ErrHeapFull
	}
	idx := Index(h.used)
	h.used++

	n := &h.nodes[idx]
	*n = Node{Kind: kind, Index: idx}
	return n, nil
}

// Get returns the node at i, or nil for an unallocated index.
func (h *Heap) Get(i Index) *Node {
	if int(i) >= h.used {
		return nil
	}
	return &h.nodes[i]
}

// Len returns the number of allocated nodes.
func (h *Heap) Len() int { return h.used }

// Cap returns the arena capacity.
func (h *Heap) Cap() int { return len(h.nodes) }

// Reset releases every node at once.
func (h *Heap) Reset() {
	for i := 0; i < h.used; i++ {
		h.nodes[i] = Node{}
	}
	h.used = 0
}
