// Package layer holds the animation layers of a character and the folds that
// aggregate per-instance data across them.
//
// A Layer owns a fixed-size Pool of state instances ordered old to new. Each
// instance fades in over its blend time; once a newer instance is fully faded
// in, every older one is retired and its snapshot released.
package layer

import (
	"errors"

	"github.com/Faultbox/midgard-anim/internal/anim/snapshot"
)

// ErrNoFreeInstance is returned when a pool has no room for a new instance.
var ErrNoFreeInstance = errors.New("no free animation instance")

// Instance is one animation state playing on a layer.
type Instance struct {
	ID       uint64
	State    string
	Snapshot *snapshot.Snapshot

	// Fade is the instance's transition weight in [0,1].
	Fade float32
	// BlendTime is the fade-in duration in seconds.
	BlendTime float32

	// Data is caller-owned per-instance state.
	Data any
}

// Update advances the fade.
func (i *Instance) Update(dt float32) {
	if i.Fade >= 1 {
		return
	}
	if i.BlendTime <= 0 {
		i.Fade = 1
		return
	}
	i.Fade += dt / i.BlendTime
	if i.Fade > 1 {
		i.Fade = 1
	}
}

// Pool is a fixed-capacity list of instances, oldest first.
type Pool struct {
	slots []*Instance
	cap   int
}

// NewPool creates a pool holding at most capacity instances.
func NewPool(capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{slots: make([]*Instance, 0, capacity), cap: capacity}
}

// Push appends inst as the newest instance.
func (p *Pool) Push(inst *Instance) error {
	if len(p.slots) >= p.cap {
		p.prune()
	}
	if len(p.slots) >= p.cap {
		return ErrNoFreeInstance
	}
	p.slots = append(p.slots, inst)
	return nil
}

// Len returns the number of live instances.
func (p *Pool) Len() int { return len(p.slots) }

// Cap returns the pool capacity.
func (p *Pool) Cap() int { return p.cap }

// At returns the i-th instance, 0 being the oldest.
func (p *Pool) At(i int) *Instance { return p.slots[i] }

// Newest returns the most recent instance or nil.
func (p *Pool) Newest() *Instance {
	if len(p.slots) == 0 {
		return nil
	}
	return p.slots[len(p.slots)-1]
}

// ForEachOldToNew calls fn from the oldest instance to the newest.
func (p *Pool) ForEachOldToNew(fn func(*Instance) bool) {
	for _, inst := range p.slots {
		if !fn(inst) {
			return
		}
	}
}

// ForEachNewToOld calls fn from the newest instance to the oldest.
func (p *Pool) ForEachNewToOld(fn func(*Instance) bool) {
	for i := len(p.slots) - 1; i >= 0; i-- {
		if !fn(p.slots[i]) {
			return
		}
	}
}

// Update advances every fade and retires covered instances.
func (p *Pool) Update(dt float32) []*Instance {
	for _, inst := range p.slots {
		inst.Update(dt)
	}
	return p.prune()
}

// Clear retires every instance.
func (p *Pool) Clear() []*Instance {
	retired := append([]*Instance(nil), p.slots...)
	for _, inst := range retired {
		release(inst)
	}
	p.slots = p.slots[:0]
	return retired
}

// prune drops every instance older than the newest fully faded one.
func (p *Pool) prune() []*Instance {
	top := -1
	for i := len(p.slots) - 1; i >= 0; i-- {
		if p.slots[i].Fade >= 1 {
			top = i
			break
		}
	}
	if top <= 0 {
		return nil
	}

	retired := make([]*Instance, top)
	copy(retired, p.slots[:top])
	for _, inst := range retired {
		release(inst)
	}
	n := copy(p.slots, p.slots[top:])
	for i := n; i < len(p.slots); i++ {
		p.slots[i] = nil
	}
	p.slots = p.slots[:n]
	return retired
}

func release(inst *Instance) {
	if inst.Snapshot != nil {
		inst.Snapshot.Release()
	}
}
