package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/anim/clip"
	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/gesture"
	"github.com/Faultbox/midgard-anim/internal/gesture/library"
	"github.com/Faultbox/midgard-anim/internal/logger"
)

var (
	// ErrNoDef is returned for a request without a definition.
	ErrNoDef = errors.New("gesture cache: no definition")
	// ErrFull is returned when every entry is referenced.
	ErrFull = errors.New("gesture cache: full")
)

// Defs resolves definitions when a bad entry retries construction.
type Defs interface {
	Lookup(name string) *library.Def
}

// Options configures a Cache.
type Options struct {
	MaxEntries int
	// Eviction starts when occupancy reaches EvictionTriggerMax and stops
	// once it falls to EvictionTriggerMin.
	EvictionTriggerMin float32
	EvictionTriggerMax float32
	// MinEntryAgeFrames protects entries created in the last few frames.
	MinEntryAgeFrames uint64
	AlwaysTryEviction bool

	Triangulation   gesture.Options
	LinearThreshold float32

	Registerer prometheus.Registerer
	Logger     *zap.Logger
}

// DefaultOptions returns the stock cache tuning.
func DefaultOptions() Options {
	return Options{
		MaxEntries:         128,
		EvictionTriggerMin: 0.75,
		EvictionTriggerMax: 0.9,
		MinEntryAgeFrames:  3,
		Triangulation:      gesture.DefaultOptions(),
		LinearThreshold:    gesture.DefaultLinearThreshold,
	}
}

// OptionsFromConfig maps runtime configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	o := DefaultOptions()
	o.MaxEntries = cfg.GestureCache.MaxEntries
	o.EvictionTriggerMin = cfg.GestureCache.EvictionTriggerMin
	o.EvictionTriggerMax = cfg.GestureCache.EvictionTriggerMax
	o.MinEntryAgeFrames = cfg.GestureCache.MinEntryAgeFrames
	o.AlwaysTryEviction = cfg.GestureCache.AlwaysTryEviction
	o.Triangulation.IslandLinkThreshold = cfg.Gesture.IslandLinkThresholdDeg
	o.Triangulation.MinTriangleArea = cfg.Gesture.MinTriangleArea
	o.Triangulation.DuplicateTolerance = cfg.Gesture.DuplicatePointTolerance
	o.LinearThreshold = cfg.Gesture.LinearAngleThresholdDeg
	return o
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Entries       int
	Capacity      int
	Evicting      bool
	Constructions int64
	Frame         uint64
	Epoch         uint64
}

// Cache owns every built blend space.
type Cache struct {
	opts  Options
	table clip.Table
	defs  Defs
	log   *zap.Logger
	m     *metrics

	mu       sync.RWMutex
	entries  map[Key]*Data
	evicting bool

	frame      atomic.Uint64
	generation atomic.Uint64
	rebuild    atomic.Bool
	epoch      atomic.Uint64
	built      atomic.Int64
}

// New creates a cache reading clips from table. defs may be nil, in which
// case bad entries retry with the definition they were built from.
func New(table clip.Table, defs Defs, opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1
	}
	c := &Cache{
		opts:    opts,
		table:   table,
		defs:    defs,
		log:     logger.OrNop(opts.Logger).Named("gesture-cache"),
		m:       newMetrics(opts.Registerer),
		entries: make(map[Key]*Data, opts.MaxEntries),
	}
	c.generation.Store(table.Generation())
	return c
}

// TryCacheData returns the entry for key, building it from def on first
// use. Concurrent requests for the same key build it once; later callers
// wait for the build to finish. Every successful call must be paired with
// ReleaseData. A bad entry is returned without error.
func (c *Cache) TryCacheData(key Key, def *library.Def) (*Data, error) {
	if def == nil {
		return nil, ErrNoDef
	}

	c.mu.RLock()
	d := c.entries[key]
	if d != nil {
		d.refs.Add(1)
	}
	c.mu.RUnlock()

	if d == nil {
		c.mu.Lock()
		if d = c.entries[key]; d != nil {
			d.refs.Add(1)
			c.mu.Unlock()
		} else {
			if len(c.entries) >= c.opts.MaxEntries && !c.reclaimBadLocked() {
				c.mu.Unlock()
				c.m.full.Inc()
				c.log.Warn("gesture cache full", zap.Stringer("key", key), zap.String("gesture", def.Name))
				return nil, fmt.Errorf("%w: %d entries in use", ErrFull, c.opts.MaxEntries)
			}

			d = &Data{key: key, name: def.Name, createdFrame: c.frame.Load()}
			d.refs.Add(1)
			// Publish locked so other requesters block until the build is done.
			d.mu.Lock()
			c.entries[key] = d
			c.m.entries.Set(float64(len(c.entries)))
			c.mu.Unlock()

			c.m.misses.Inc()
			c.construct(d, def)
			d.mu.Unlock()
			return d, nil
		}
	}

	c.m.hits.Inc()
	// Wait out a build started by another requester.
	d.mu.RLock()
	d.mu.RUnlock()
	return d, nil
}

// ReleaseData drops a reference taken by TryCacheData. The entry stays
// cached until eviction.
func (c *Cache) ReleaseData(d *Data) {
	if d == nil {
		return
	}
	if n := d.refs.Add(-1); n < 0 {
		d.refs.Store(0)
		c.log.Warn("gesture cache entry released too often", zap.Stringer("key", d.key))
	}
}

// RequestRebuild drops every entry at the next Update. Holders keep their
// detached entries until they release them and should reacquire when Epoch
// moves.
func (c *Cache) RequestRebuild() {
	c.rebuild.Store(true)
}

// Epoch counts completed rebuilds.
func (c *Cache) Epoch() uint64 {
	return c.epoch.Load()
}

// Update runs once per frame: one eviction step, a refresh of every entry
// when the clip table changed, and any requested rebuild.
func (c *Cache) Update() {
	c.mu.Lock()
	fill := float32(len(c.entries)) / float32(c.opts.MaxEntries)
	if fill >= c.opts.EvictionTriggerMax {
		c.evicting = true
	} else if fill <= c.opts.EvictionTriggerMin {
		c.evicting = false
	}
	if c.evicting || c.opts.AlwaysTryEviction {
		if victim := c.findUnusedLocked(); victim != nil {
			c.eraseLocked(victim)
			c.m.evictions.Inc()
		} else {
			c.evicting = false
		}
	}
	c.mu.Unlock()

	if gen := c.table.Generation(); gen != c.generation.Load() {
		for _, d := range c.snapshotEntries() {
			c.RefreshData(d)
		}
		c.generation.Store(gen)
	}

	if c.rebuild.Swap(false) {
		c.mu.Lock()
		n := len(c.entries)
		c.entries = make(map[Key]*Data, c.opts.MaxEntries)
		c.evicting = false
		c.m.entries.Set(0)
		c.mu.Unlock()
		c.epoch.Add(1)
		c.log.Info("gesture cache rebuilt", zap.Int("dropped", n))
	}

	c.frame.Add(1)
}

// RefreshData brings an entry up to date with the clip table. Handles and
// phases are re-resolved and the mesh is rebuilt only when sample directions
// moved. A bad entry retries a full construction.
func (c *Cache) RefreshData(d *Data) {
	if d == nil {
		return
	}
	gen := c.table.Generation()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.generation == gen {
		return
	}
	c.m.refreshes.Inc()

	if d.bad {
		def := d.def
		if c.defs != nil {
			if fresh := c.defs.Lookup(d.name); fresh != nil {
				def = fresh
			}
		}
		if def != nil {
			c.construct(d, def)
		}
		return
	}

	before := make([]gesture.SphericalCoords, len(d.anims))
	for i := range d.anims {
		before[i] = d.anims[i].Dir
	}

	c.refreshAnimsLocked(d)
	c.refreshPhasesAndDirectionsLocked(d)
	d.generation = gen

	moved := d.bad
	for i := range d.anims {
		if d.anims[i].Dir != before[i] {
			moved = true
			break
		}
	}
	if moved {
		c.refreshNoBlendDirLocked(d)
		c.buildMeshLocked(d)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns current occupancy and counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries:       len(c.entries),
		Capacity:      c.opts.MaxEntries,
		Evicting:      c.evicting,
		Constructions: c.built.Load(),
		Frame:         c.frame.Load(),
		Epoch:         c.epoch.Load(),
	}
}

func (c *Cache) snapshotEntries() []*Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Data, 0, len(c.entries))
	for _, d := range c.entries {
		out = append(out, d)
	}
	return out
}

// findUnusedLocked returns the oldest unreferenced entry past the minimum
// age.
func (c *Cache) findUnusedLocked() *Data {
	now := c.frame.Load()
	var victim *Data
	for _, d := range c.entries {
		if d.refs.Load() != 0 || now-d.createdFrame < c.opts.MinEntryAgeFrames {
			continue
		}
		if victim == nil || d.createdFrame < victim.createdFrame {
			victim = d
		}
	}
	return victim
}

// reclaimBadLocked frees one unreferenced bad entry.
func (c *Cache) reclaimBadLocked() bool {
	for _, d := range c.entries {
		if d.refs.Load() != 0 || !d.mu.TryRLock() {
			continue
		}
		bad := d.bad
		d.mu.RUnlock()
		if bad {
			c.eraseLocked(d)
			return true
		}
	}
	return false
}

func (c *Cache) eraseLocked(d *Data) {
	if cur, ok := c.entries[d.key]; ok && cur == d {
		delete(c.entries, d.key)
		c.m.entries.Set(float64(len(c.entries)))
	}
}
