package clip

import (
	"sync"
	"sync/atomic"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

// MemTable is a concurrency-safe in-memory Table.
type MemTable struct {
	mu       sync.RWMutex
	clips    map[string]*Clip
	overlays map[string]string

	generation atomic.Uint64
	lookups    atomic.Uint64
}

// NewMemTable creates an empty table.
func NewMemTable() *MemTable {
	return &MemTable{
		clips:    make(map[string]*Clip),
		overlays: make(map[string]string),
	}
}

// Add registers or replaces a clip.
func (t *MemTable) Add(c *Clip) {
	t.mu.Lock()
	t.clips[c.Name] = c
	t.mu.Unlock()
	t.generation.Add(1)
}

// Remove deletes a clip by name.
func (t *MemTable) Remove(name string) {
	t.mu.Lock()
	delete(t.clips, name)
	t.mu.Unlock()
	t.generation.Add(1)
}

// SetOverlay remaps lookups of from to to. An empty to clears the overlay.
func (t *MemTable) SetOverlay(from, to string) {
	t.mu.Lock()
	if to == "" {
		delete(t.overlays, from)
	} else {
		t.overlays[from] = to
	}
	t.mu.Unlock()
	t.generation.Add(1)
}

// LookupAnim implements Table.
func (t *MemTable) LookupAnim(name string) *Clip {
	t.lookups.Add(1)

	t.mu.RLock()
	defer t.mu.RUnlock()

	if to, ok := t.overlays[name]; ok {
		if c, ok := t.clips[to]; ok {
			return c
		}
	}
	return t.clips[name]
}

// LookupAnimCached implements Table.
func (t *MemTable) LookupAnimCached(prev Lookup) Lookup {
	gen := t.generation.Load()
	if prev.Generation == gen && prev.Generation != 0 {
		return prev
	}
	return Lookup{Name: prev.Name, Clip: t.LookupAnim(prev.Name), Generation: gen}
}

// Generation implements Table.
func (t *MemTable) Generation() uint64 {
	return t.generation.Load()
}

// Lookups counts uncached name resolutions.
func (t *MemTable) Lookups() uint64 {
	return t.lookups.Load()
}

// EvaluateChannel implements Table.
func (t *MemTable) EvaluateChannel(c *Clip, phase float32, ch ChannelID) (JointPose, bool) {
	if c == nil {
		return IdentityPose(), false
	}
	frames, ok := c.Channels[ch]
	if !ok || len(frames) == 0 {
		return IdentityPose(), false
	}
	if len(frames) == 1 {
		return frames[0], true
	}

	f := math.Clamp01(phase) * float32(len(frames)-1)
	i := int(f)
	if i >= len(frames)-1 {
		return frames[len(frames)-1], true
	}
	return frames[i].Lerp(frames[i+1], f-float32(i)), true
}
