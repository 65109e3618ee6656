package cache

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-anim/internal/anim/clip"
	"github.com/Faultbox/midgard-anim/internal/gesture"
	"github.com/Faultbox/midgard-anim/internal/gesture/library"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

func newTable(names ...string) *clip.MemTable {
	t := clip.NewMemTable()
	for _, n := range names {
		t.Add(&clip.Clip{Name: n, NumFrames: 11, FrameRate: 30})
	}
	return t
}

func pointDef() *library.Def {
	return &library.Def{
		Name: "point",
		Anims: library.Anims{Pairs: []library.AnimPair{
			{Partial: "point-l", H: 45, V: 0},
			{Partial: "point-c", H: 0, V: 0},
			{Partial: "point-r", H: -45, V: 0},
			{Partial: "point-u", H: 0, V: 40},
		}},
	}
}

func pointTable() *clip.MemTable {
	return newTable("point-l", "point-c", "point-r", "point-u")
}

func newCache(t *testing.T, table clip.Table, mutate func(*Options)) *Cache {
	t.Helper()
	opts := DefaultOptions()
	opts.Registerer = prometheus.NewRegistry()
	if mutate != nil {
		mutate(&opts)
	}
	return New(table, nil, opts)
}

func keyFor(def *library.Def) Key {
	return NewKey(def, 1, false, library.AltNone)
}

func TestKeyIsSixteenBytes(t *testing.T) {
	assert.Equal(t, uintptr(16), unsafe.Sizeof(Key{}))

	a := NewKey(pointDef(), 7, true, 2)
	b := NewKey(pointDef(), 7, true, 2)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, NewKey(pointDef(), 7, false, 2))
	assert.Equal(t, GestureID("point"), a.GestureID)
}

func TestTryCacheDataBuildsOnce(t *testing.T) {
	c := newCache(t, pointTable(), nil)
	def := pointDef()
	key := keyFor(def)

	const n = 32
	got := make([]*Data, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			d, err := c.TryCacheData(key, def)
			assert.NoError(t, err)
			got[i] = d
		}(i)
	}
	close(start)
	wg.Wait()

	require.NotNil(t, got[0])
	for i := range got {
		assert.Same(t, got[0], got[i])
	}
	assert.Equal(t, int64(1), c.Stats().Constructions)
	assert.Equal(t, int32(n), got[0].Refs())

	for _, d := range got {
		c.ReleaseData(d)
	}
	assert.Equal(t, int32(0), got[0].Refs())
}

func TestReferenceCountBlocksEviction(t *testing.T) {
	c := newCache(t, pointTable(), func(o *Options) {
		o.MinEntryAgeFrames = 0
		o.AlwaysTryEviction = true
	})
	def := pointDef()
	key := keyFor(def)

	d, err := c.TryCacheData(key, def)
	require.NoError(t, err)
	again, err := c.TryCacheData(key, def)
	require.NoError(t, err)
	assert.Equal(t, int32(2), d.Refs())
	c.ReleaseData(again)
	assert.Equal(t, int32(1), d.Refs())

	for i := 0; i < 5; i++ {
		c.Update()
	}
	assert.Equal(t, 1, c.Len(), "held entry survives eviction")

	c.ReleaseData(d)
	assert.Equal(t, int32(0), d.Refs())
	c.Update()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.m.evictions))
}

func TestFullCacheRecoversAfterEviction(t *testing.T) {
	c := newCache(t, newTable("point-l", "point-c", "point-r", "point-u", "wave"), func(o *Options) {
		o.MaxEntries = 1
	})
	k1def := pointDef()
	k2def := &library.Def{Name: "wave", Anims: library.Anims{Pairs: []library.AnimPair{{Partial: "wave"}}}}

	d1, err := c.TryCacheData(keyFor(k1def), k1def)
	require.NoError(t, err)
	require.NotNil(t, d1)

	d2, err := c.TryCacheData(keyFor(k2def), k2def)
	assert.ErrorIs(t, err, ErrFull)
	assert.Nil(t, d2)

	c.ReleaseData(d1)
	for i := 0; i < 3; i++ {
		c.Update()
		_, err = c.TryCacheData(keyFor(k2def), k2def)
		assert.ErrorIs(t, err, ErrFull, "young entry kept at update %d", i)
	}

	c.Update()
	d2, err = c.TryCacheData(keyFor(k2def), k2def)
	require.NoError(t, err)
	assert.Equal(t, "wave", d2.Name())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.m.evictions))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.m.full))
}

func TestEvictionHysteresis(t *testing.T) {
	table := newTable("a", "b", "c", "d")
	c := newCache(t, table, func(o *Options) {
		o.MaxEntries = 4
		o.EvictionTriggerMin = 0.5
		o.EvictionTriggerMax = 1
		o.MinEntryAgeFrames = 0
	})

	for _, n := range []string{"a", "b", "c", "d"} {
		def := &library.Def{Name: n, Anims: library.Anims{Pairs: []library.AnimPair{{Partial: n}}}}
		d, err := c.TryCacheData(keyFor(def), def)
		require.NoError(t, err)
		c.ReleaseData(d)
	}

	c.Update()
	assert.Equal(t, 3, c.Len())
	assert.True(t, c.Stats().Evicting)
	c.Update()
	assert.Equal(t, 2, c.Len())
	c.Update()
	assert.Equal(t, 2, c.Len(), "stops at the low watermark")
	assert.False(t, c.Stats().Evicting)
}

func TestBadEntryReturnedAndReclaimed(t *testing.T) {
	table := newTable("point-l", "point-c", "point-r", "wave")
	c := newCache(t, table, func(o *Options) { o.MaxEntries = 1 })
	def := pointDef()

	d, err := c.TryCacheData(keyFor(def), def)
	require.NoError(t, err)
	assert.True(t, d.IsBad())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.m.bad))
	c.ReleaseData(d)

	wave := &library.Def{Name: "wave", Anims: library.Anims{Pairs: []library.AnimPair{{Partial: "wave"}}}}
	w, err := c.TryCacheData(keyFor(wave), wave)
	require.NoError(t, err, "unreferenced bad entry is reclaimed when full")
	assert.False(t, w.IsBad())
}

func TestBadEntryRebuildsWhenClipArrives(t *testing.T) {
	table := newTable("point-l", "point-c", "point-r")
	c := newCache(t, table, nil)
	def := pointDef()

	d, err := c.TryCacheData(keyFor(def), def)
	require.NoError(t, err)
	require.True(t, d.IsBad())

	table.Add(&clip.Clip{Name: "point-u", NumFrames: 11, FrameRate: 30})
	c.Update()

	assert.False(t, d.IsBad())
	assert.Equal(t, int64(2), c.Stats().Constructions)
	d.View(func(v *View) {
		assert.Equal(t, 4, v.NumAnims())
		assert.NotEmpty(t, v.Mesh().Triangles)
	})
}

func TestRefreshFollowsOverlayWithoutRemeshing(t *testing.T) {
	table := pointTable()
	table.Add(&clip.Clip{Name: "point-c-alt", NumFrames: 11, FrameRate: 30})
	c := newCache(t, table, nil)
	def := pointDef()

	d, err := c.TryCacheData(keyFor(def), def)
	require.NoError(t, err)

	var before *gesture.Triangulation
	d.View(func(v *View) { before = v.Mesh() })

	table.SetOverlay("point-c", "point-c-alt")
	c.Update()

	d.View(func(v *View) {
		assert.Equal(t, "point-c-alt", v.Anim(1).Partial.Clip.Name)
		assert.Same(t, before, v.Mesh())
	})
	assert.Equal(t, int64(1), c.Stats().Constructions)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.m.refreshes))
}

func TestDirectionFromChannel(t *testing.T) {
	yaw := func(deg float32) map[clip.ChannelID][]clip.JointPose {
		q := math.QuatFromAxisAngle(math.Vec3{Y: 1}, math.DegToRad(deg))
		return map[clip.ChannelID][]clip.JointPose{ChannelGestureDir: {{Rotation: q}}}
	}
	table := pointTable()
	table.Add(&clip.Clip{Name: "point-l", NumFrames: 11, FrameRate: 30, Channels: yaw(30)})
	c := newCache(t, table, nil)
	def := pointDef()

	d, err := c.TryCacheData(keyFor(def), def)
	require.NoError(t, err)

	var before *gesture.Triangulation
	d.View(func(v *View) {
		a := v.Anim(0)
		assert.Equal(t, float32(45), a.Authored.Theta)
		assert.InDelta(t, 30, a.Dir.Theta, 1e-3)
		before = v.Mesh()
	})

	table.Add(&clip.Clip{Name: "point-l", NumFrames: 11, FrameRate: 30, Channels: yaw(60)})
	c.Update()

	d.View(func(v *View) {
		assert.InDelta(t, 60, v.Anim(0).Dir.Theta, 1e-3)
		assert.NotSame(t, before, v.Mesh(), "moved samples rebuild the mesh")
	})
}

func TestRequestRebuild(t *testing.T) {
	c := newCache(t, pointTable(), nil)
	def := pointDef()

	d, err := c.TryCacheData(keyFor(def), def)
	require.NoError(t, err)

	c.RequestRebuild()
	c.Update()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, uint64(1), c.Epoch())

	sel := d.Select(math.Vec2{}, -1)
	assert.Positive(t, sel.Count, "detached entry stays readable")
	c.ReleaseData(d)

	fresh, err := c.TryCacheData(keyFor(def), def)
	require.NoError(t, err)
	assert.NotSame(t, d, fresh)
}

func TestConstructionShapes(t *testing.T) {
	frameTable := newTable("nod", "look-l", "look-r", "look-u", "a", "b", "up")

	tests := []struct {
		name  string
		def   *library.Def
		check func(t *testing.T, v *View)
	}{
		{
			name: "frame range",
			def: &library.Def{Name: "nod", Anims: library.Anims{Pairs: []library.AnimPair{
				{Partial: "nod", FrameRange: []int{2, 5}},
			}}},
			check: func(t *testing.T, v *View) {
				require.Equal(t, 3, v.NumAnims())
				for i, want := range []float32{0.2, 0.3, 0.4} {
					assert.InDelta(t, want, v.Anim(i).Phase, 1e-6)
					assert.Equal(t, float32(2+i), v.Anim(i).Frame)
				}
				assert.True(t, v.Mesh().Linear)
			},
		},
		{
			name: "wrap360",
			def: &library.Def{Name: "look", Wrap360: true, Anims: library.Anims{Pairs: []library.AnimPair{
				{Partial: "look-l", H: 90}, {Partial: "look-r", H: -90}, {Partial: "look-u", V: 45},
			}}},
			check: func(t *testing.T, v *View) {
				require.Equal(t, 6, v.NumAnims())
				assert.True(t, v.Anim(1).WrapAround)
				assert.Equal(t, float32(-270), v.Anim(1).Dir.Theta)
				assert.Equal(t, float32(270), v.Anim(3).Dir.Theta)
				assert.True(t, v.HyperRange())
				assert.True(t, v.Wrap360())
				assert.Equal(t, float32(-1), v.Anim(0).Phase)

				m := v.Mesh()
				assert.False(t, m.Linear)
				assert.Equal(t, 1, v.NumIslands())
				assert.GreaterOrEqual(t, len(m.Triangles), 3)

				for _, theta := range []float32{179, -179} {
					sel := m.Select(math.Vec2{X: theta, Y: 10}, 0)
					require.True(t, sel.Inside, "theta %v", theta)
					require.Equal(t, 3, sel.Count)
					names := map[string]bool{}
					for _, i := range sel.Anims {
						names[v.Anim(i).Partial.Name] = true
					}
					assert.Equal(t, map[string]bool{"look-l": true, "look-r": true, "look-u": true}, names, "theta %v", theta)
				}
			},
		},
		{
			name: "sparse look",
			def: &library.Def{Name: "look", Anims: library.Anims{Pairs: []library.AnimPair{
				{Partial: "look-l", H: 90}, {Partial: "look-r", H: -90}, {Partial: "look-u", V: 45},
			}}},
			check: func(t *testing.T, v *View) {
				m := v.Mesh()
				assert.False(t, m.Linear)
				assert.Equal(t, 1, v.NumIslands())
				require.Len(t, m.Triangles, 1)

				sel := m.Select(math.Vec2{X: 20, Y: 20}, 0)
				assert.True(t, sel.Inside)
				assert.Equal(t, 3, sel.Count)
			},
		},
		{
			name: "pole padding",
			def: &library.Def{Name: "up", Anims: library.Anims{Pairs: []library.AnimPair{
				{Partial: "a", H: 0, V: 0}, {Partial: "up", H: 0, V: 88},
			}}},
			check: func(t *testing.T, v *View) {
				require.Equal(t, 4, v.NumAnims())
				assert.True(t, v.Anim(2).Extra)
				assert.Equal(t, 1, v.Anim(2).Source)
				assert.Equal(t, float32(-90), v.Anim(2).Dir.Theta)
				assert.Equal(t, float32(90), v.Anim(3).Dir.Theta)
				assert.NotEmpty(t, v.Mesh().Triangles)
			},
		},
		{
			name: "linear",
			def: &library.Def{Name: "sweep", Anims: library.Anims{Pairs: []library.AnimPair{
				{Partial: "a", H: -45}, {Partial: "b", H: 0}, {Partial: "nod", H: 45, V: 2},
			}}},
			check: func(t *testing.T, v *View) {
				assert.True(t, v.Mesh().Linear)
				assert.Empty(t, v.Mesh().Triangles)
			},
		},
		{
			name: "no blend split",
			def: func() *library.Def {
				split := float32(0)
				return &library.Def{Name: "split", NoBlendTheta: &split, Anims: library.Anims{Pairs: []library.AnimPair{
					{Partial: "a", H: -60}, {Partial: "b", H: -20}, {Partial: "nod", H: -40, V: 30},
					{Partial: "look-l", H: 20}, {Partial: "look-r", H: 60}, {Partial: "look-u", H: 40, V: 30},
				}}}
			}(),
			check: func(t *testing.T, v *View) {
				dir, ok := v.NoBlendDir()
				assert.True(t, ok)
				assert.Equal(t, float32(0), dir)
				assert.Equal(t, 2, v.NumIslands())
				assert.Len(t, v.Mesh().Triangles, 2)
			},
		},
		{
			name: "manual mesh",
			def: &library.Def{Name: "manual", Anims: library.Anims{
				Pairs:      []library.AnimPair{{Partial: "a", H: 0}, {Partial: "b", H: 0, V: 30}, {Partial: "nod", H: 30}},
				ManualMesh: [][]int{{0, 1, 2}},
			}},
			check: func(t *testing.T, v *View) {
				assert.False(t, v.Bad())
				assert.True(t, v.Mesh().Manual)
				assert.Len(t, v.Mesh().Triangles, 1)
			},
		},
		{
			name: "manual mesh bad index",
			def: &library.Def{Name: "manual-bad", Anims: library.Anims{
				Pairs:      []library.AnimPair{{Partial: "a"}, {Partial: "b", V: 30}, {Partial: "nod", H: 30}},
				ManualMesh: [][]int{{0, 1, 5}},
			}},
			check: func(t *testing.T, v *View) {
				assert.True(t, v.Bad())
				assert.Empty(t, v.Mesh().Triangles)
			},
		},
		{
			name: "additive",
			def: &library.Def{Name: "add", AnimType: library.AnimAdditive, Anims: library.Anims{Pairs: []library.AnimPair{
				{Additive: "a"}, {Additive: "b", H: 30},
			}}},
			check: func(t *testing.T, v *View) {
				assert.False(t, v.Bad())
				assert.False(t, v.Anim(0).Partial.Valid())
				assert.True(t, v.Anim(0).Additive.Valid())
				assert.Equal(t, "a", v.Anim(0).Clip().Name)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCache(t, frameTable, nil)
			d, err := c.TryCacheData(keyFor(tt.def), tt.def)
			require.NoError(t, err)
			d.View(func(v *View) { tt.check(t, v) })
			c.ReleaseData(d)
		})
	}
}

func TestFlippedKeyMirrors(t *testing.T) {
	c := newCache(t, pointTable(), nil)
	def := pointDef()

	d, err := c.TryCacheData(NewKey(def, 1, true, library.AltNone), def)
	require.NoError(t, err)
	d.View(func(v *View) {
		assert.Equal(t, float32(-45), v.Anim(0).Dir.Theta)
	})
}

func TestAlternativeAnims(t *testing.T) {
	def := pointDef()
	def.Alternatives = []library.Alternative{{
		When:  map[string]string{"stance": "crouch"},
		Anims: library.Anims{Pairs: []library.AnimPair{{Partial: "point-c"}}, FeatherBlend: "crouch-feather"},
	}}
	c := newCache(t, pointTable(), nil)

	d, err := c.TryCacheData(NewKey(def, 1, false, 0), def)
	require.NoError(t, err)
	d.View(func(v *View) {
		assert.Equal(t, 1, v.NumAnims())
		assert.Equal(t, "crouch-feather", v.FeatherBlend())
	})
}

func TestLookupsReuseConsecutiveNames(t *testing.T) {
	table := newTable("a", "b")
	c := newCache(t, table, nil)
	def := &library.Def{Name: "same", Anims: library.Anims{Pairs: []library.AnimPair{
		{Partial: "a", H: -30}, {Partial: "a", H: 0}, {Partial: "b", H: 30},
	}}}

	before := table.Lookups()
	_, err := c.TryCacheData(keyFor(def), def)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), table.Lookups()-before)
}

func TestMisuse(t *testing.T) {
	c := newCache(t, pointTable(), nil)

	_, err := c.TryCacheData(Key{}, nil)
	assert.ErrorIs(t, err, ErrNoDef)

	def := pointDef()
	d, err := c.TryCacheData(keyFor(def), def)
	require.NoError(t, err)
	c.ReleaseData(d)
	c.ReleaseData(d)
	assert.Equal(t, int32(0), d.Refs())
	c.ReleaseData(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.m.misses))
}
