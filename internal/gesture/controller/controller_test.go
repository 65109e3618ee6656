package controller

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-anim/internal/anim/blend"
	"github.com/Faultbox/midgard-anim/internal/anim/clip"
	"github.com/Faultbox/midgard-anim/internal/anim/command"
	"github.com/Faultbox/midgard-anim/internal/anim/layer"
	"github.com/Faultbox/midgard-anim/internal/anim/snapshot"
	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/diag"
	"github.com/Faultbox/midgard-anim/internal/gesture"
	"github.com/Faultbox/midgard-anim/internal/gesture/library"
	"github.com/Faultbox/midgard-anim/internal/gesture/node"
)

func fan(name string, flags library.Flags) *library.Def {
	return &library.Def{
		Name:  name,
		Flags: flags,
		Anims: library.Anims{Pairs: []library.AnimPair{
			{Partial: name + "-l", H: 45},
			{Partial: name + "-c"},
			{Partial: name + "-r", H: -45},
			{Partial: name + "-u", V: 40},
		}},
	}
}

type fixture struct {
	cfg   *config.Config
	table *clip.MemTable
	lib   *library.Library
	svc   *Service
}

func newFixture(t *testing.T, mutate func(*config.Config), defs ...*library.Def) *fixture {
	t.Helper()
	f := &fixture{cfg: config.Default(), table: clip.NewMemTable(), lib: library.New("", nil)}
	if mutate != nil {
		mutate(f.cfg)
	}
	for _, d := range defs {
		for _, p := range d.Anims.Pairs {
			f.table.Add(&clip.Clip{Name: p.Partial, NumFrames: 11, FrameRate: 10, Looping: true})
		}
	}
	require.NoError(t, f.lib.Set(defs...))

	svc, err := NewService(f.cfg, Deps{Table: f.table, Library: f.lib, Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewServiceNeedsTable(t *testing.T) {
	_, err := NewService(nil, Deps{})
	assert.ErrorIs(t, err, ErrNoTable)

	bad := config.Default()
	bad.GestureCache.MaxEntries = 0
	_, err = NewService(bad, Deps{Table: clip.NewMemTable()})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestPlayFailures(t *testing.T) {
	missing := fan("broken", library.Flags{})
	f := newFixture(t, nil, fan("point", library.Flags{}))
	require.NoError(t, f.lib.Set(missing))
	c := f.svc.NewController("hero", 1)

	tests := []struct {
		name   string
		setup  func()
		req    PlayRequest
		reason diag.Reason
	}{
		{"unknown gesture", nil, PlayRequest{Gesture: "nope"}, diag.ReasonGestureNotFound},
		{"missing clips", nil, PlayRequest{Gesture: "broken"}, diag.ReasonClipMissing},
		{"locked out", func() { c.LockOut("cutscene") }, PlayRequest{Gesture: "point"}, diag.ReasonLockedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			h, err := c.Play(tt.req)
			require.Error(t, err)
			assert.Equal(t, uuid.Nil, h)
			assert.True(t, diag.HasReason(err, tt.reason), "got %v", err)

			var de *diag.Error
			require.True(t, errors.As(err, &de))
			assert.Equal(t, "hero", de.Character)
			assert.Equal(t, tt.req.Gesture, de.Gesture)
		})
	}

	recent := f.svc.Reporter().Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, diag.ReasonLockedOut, recent[2].Err.Reason)
	assert.Zero(t, c.Playing())

	c.Unlock("cutscene")
	_, err := c.Play(PlayRequest{Gesture: "point"})
	assert.NoError(t, err)

	_, err = c.Play(PlayRequest{Gesture: "point", Layer: "face"})
	assert.ErrorIs(t, err, ErrUnknownLayer)
}

func TestBadEntryReleasedOnFailure(t *testing.T) {
	f := newFixture(t, nil, fan("point", library.Flags{}))
	f.table.Remove("point-u")
	c := f.svc.NewController("hero", 1)

	_, err := c.Play(PlayRequest{Gesture: "point"})
	require.True(t, diag.HasReason(err, diag.ReasonClipMissing))
	assert.Equal(t, 1, f.svc.Cache().Len())
	assert.Zero(t, c.Playing())
}

func TestNoFreeInstance(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Anim.InstancePoolSize = 1 }, fan("point", library.Flags{}), fan("wave", library.Flags{}))
	c := f.svc.NewController("hero", 1)

	_, err := c.Play(PlayRequest{Gesture: "point"})
	require.NoError(t, err)
	_, err = c.Play(PlayRequest{Gesture: "wave", BlendTime: 0.2})
	require.True(t, diag.HasReason(err, diag.ReasonNoFreeInstance), "got %v", err)
	assert.ErrorIs(t, err, layer.ErrNoFreeInstance)
	assert.Equal(t, 1, c.Playing())
}

func TestFlagsFollowLayerFade(t *testing.T) {
	f := newFixture(t, nil, fan("aim", library.Flags{Aiming: true, WeaponIkDisabled: true}))
	c := f.svc.NewController("hero", 1)

	_, err := c.Play(PlayRequest{Gesture: "aim", BlendTime: 0.2})
	require.NoError(t, err)

	c.Update(0.1)
	assert.InDelta(t, 0.5, c.Flags().Aiming, 1e-5)
	assert.InDelta(t, 0.5, c.Flags().WeaponIkBlend(), 1e-5)
	assert.Zero(t, c.Flags().Looking)

	c.Update(0.1)
	assert.InDelta(t, 1, c.Flags().Aiming, 1e-5)
	assert.InDelta(t, 0, c.Flags().WeaponIkBlend(), 1e-5)
}

func TestCrossFadeRetiresOlderGesture(t *testing.T) {
	f := newFixture(t, nil, fan("point", library.Flags{}), fan("aim", library.Flags{Aiming: true}))
	c := f.svc.NewController("hero", 1)

	first, err := c.Play(PlayRequest{Gesture: "point"})
	require.NoError(t, err)
	c.Update(0.1)
	old := c.Node(first).Data()

	second, err := c.Play(PlayRequest{Gesture: "aim", BlendTime: 0.2})
	require.NoError(t, err)
	c.Update(0.1)
	assert.InDelta(t, 0.5, c.Flags().Aiming, 1e-5)
	assert.Equal(t, 2, c.Playing())

	c.Update(0.1)
	assert.InDelta(t, 1, c.Flags().Aiming, 1e-5)
	assert.Equal(t, 1, c.Playing())
	assert.Nil(t, c.Node(first))
	assert.NotNil(t, c.Node(second))
	assert.Equal(t, int32(0), old.Refs())
}

func TestStopFadesOutAndReleases(t *testing.T) {
	f := newFixture(t, nil, fan("point", library.Flags{}))
	c := f.svc.NewController("hero", 1)

	h, err := c.Play(PlayRequest{Gesture: "point"})
	require.NoError(t, err)
	c.Update(0.1)
	d := c.Node(h).Data()
	require.Equal(t, int32(1), d.Refs())

	require.NoError(t, c.Stop(h, 0.1))
	c.Update(0.1)
	assert.Zero(t, c.Playing())
	assert.Equal(t, int32(0), d.Refs())

	assert.ErrorIs(t, c.Stop(h, 0), ErrUnknownHandle)
	assert.ErrorIs(t, c.SetTarget(h, gesture.SphericalCoords{}), ErrUnknownHandle)
}

func TestCommandsAndFeather(t *testing.T) {
	f := newFixture(t, nil, fan("point", library.Flags{WeaponIkFeather: true}))
	c := f.svc.NewController("hero", 1)

	h, err := c.Play(PlayRequest{Gesture: "point", Target: gesture.FromThetaPhi(10, 10)})
	require.NoError(t, err)
	require.NoError(t, c.SetTarget(h, gesture.FromThetaPhi(-10, 10)))
	c.Update(0.1)

	assert.InDelta(t, 1, c.WeaponIkFeather(), 1e-5)
	assert.InDelta(t, -10, c.Node(h).Tracked().Theta, 1e-3)

	l := command.NewList(0)
	require.NoError(t, c.GenerateCommands(l))
	assert.Equal(t, 3, l.Count(command.OpEvaluateClip))
	require.Equal(t, 1, l.Count(command.OpPlugin))
	for _, cmd := range l.Cmds() {
		if cmd.Op == command.OpPlugin {
			assert.Equal(t, command.PluginWeaponIkFeather, cmd.Plugin)
			data, ok := cmd.Data.(command.FeatherData)
			require.True(t, ok)
			assert.InDelta(t, 1, data.Factor, 1e-5)
		}
	}
}

func TestAlternativeSelection(t *testing.T) {
	def := fan("point", library.Flags{})
	def.Alternatives = []library.Alternative{{
		When:  map[string]string{"stance": "crouch"},
		Anims: library.Anims{Pairs: []library.AnimPair{{Partial: "point-c"}}},
	}}
	f := newFixture(t, nil, def)
	c := f.svc.NewController("hero", 1)

	stand, err := c.Play(PlayRequest{Gesture: "point"})
	require.NoError(t, err)
	assert.Equal(t, library.AltNone, c.Node(stand).Key().AltIndex)

	crouch, err := c.Play(PlayRequest{Gesture: "point", Facts: library.Facts{"stance": "crouch"}})
	require.NoError(t, err)
	assert.Equal(t, uint8(0), c.Node(crouch).Key().AltIndex)
	assert.Equal(t, 2, f.svc.Cache().Len())
}

func TestLibraryChangeRebuildsCache(t *testing.T) {
	f := newFixture(t, nil, fan("point", library.Flags{}))
	c := f.svc.NewController("hero", 1)

	h, err := c.Play(PlayRequest{Gesture: "point"})
	require.NoError(t, err)
	old := c.Node(h).Data()

	changed := fan("point", library.Flags{Looking: true})
	require.NoError(t, f.lib.Set(changed))
	f.svc.BeginFrame()
	assert.Equal(t, uint64(1), f.svc.Cache().Epoch())

	c.Update(0.1)
	assert.NotSame(t, old, c.Node(h).Data())
	assert.Equal(t, int32(0), old.Refs())
}

func TestFoldFlagsThroughBlendTree(t *testing.T) {
	f := newFixture(t, nil, fan("look", library.Flags{Looking: true, WeaponIkFeather: true}))
	n := node.New(f.svc.Cache(), node.DefaultOptions())
	require.NoError(t, n.Snapshot(f.lib.Lookup("look"), false, library.AltNone))

	s := snapshot.New(4)
	idle, err := s.AddLeaf("idle", clip.Lookup{})
	require.NoError(t, err)
	g, err := s.AddGesture("look", n)
	require.NoError(t, err)
	s.Root, err = s.AddBlend(idle, g, 0.4, false)
	require.NoError(t, err)

	ly := layer.NewLayer("upper", 2)
	ly.FadeTo(0.5, 0)
	require.NoError(t, ly.Pool.Push(&layer.Instance{Snapshot: s, Fade: 1}))
	stack := &layer.Stack{}
	stack.Add(ly)

	flags, errs := foldFlags(stack, blend.Options{MaxDepth: 8})
	assert.Empty(t, errs)
	assert.InDelta(t, 0.2, flags.Looking, 1e-5)

	w, ok := featherRequest(ly.Pool.At(0))
	require.True(t, ok)
	assert.InDelta(t, 0.4, w, 1e-5)
	s.Release()
}

func TestSchedulerRunsEveryCharacter(t *testing.T) {
	f := newFixture(t, nil, fan("point", library.Flags{}))
	reg := prometheus.NewRegistry()
	s := NewScheduler(f.svc, 4, reg)

	for i := 0; i < 16; i++ {
		c := f.svc.NewController(fmt.Sprintf("npc-%d", i), 7)
		_, err := c.Play(PlayRequest{Gesture: "point", Target: gesture.FromThetaPhi(float32(i), 5)})
		require.NoError(t, err)
		s.Add(c)
	}
	require.Equal(t, 16, s.Len())

	const frames = 3
	for i := 0; i < frames; i++ {
		require.NoError(t, s.RunFrame(context.Background(), 1.0/30))
	}
	assert.Equal(t, uint64(frames), f.svc.Frame())
	assert.Equal(t, int64(1), f.svc.Cache().Stats().Constructions)

	for _, c := range s.controllers {
		assert.Equal(t, 3, c.Commands().Count(command.OpEvaluateClip), c.Character())
	}

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var samples uint64
	for _, mf := range mfs {
		if mf.GetName() == "gesture_frame_seconds" {
			samples = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(frames), samples)

	s.Remove("npc-0")
	assert.Equal(t, 15, s.Len())
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil, fan("point", library.Flags{}))
	s := NewScheduler(f.svc, 2, nil)
	s.Add(f.svc.NewController("hero", 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.RunFrame(ctx, 1.0/30), context.Canceled)
}

func TestSchedulerReleasesRemovedOnNextFrame(t *testing.T) {
	f := newFixture(t, nil, fan("point", library.Flags{}))
	s := NewScheduler(f.svc, 2, nil)
	hero := f.svc.NewController("hero", 1)
	s.Add(hero)

	_, err := hero.Play(PlayRequest{Gesture: "point"})
	require.NoError(t, err)
	require.NoError(t, s.RunFrame(context.Background(), 1.0/30))

	s.Remove("hero")
	assert.Zero(t, s.Len())
	assert.Nil(t, s.Controller("hero"))
	assert.Equal(t, 1, hero.Playing(), "released only once the next frame starts")

	require.NoError(t, s.RunFrame(context.Background(), 1.0/30))
	assert.Zero(t, hero.Playing())

	s.Remove("nobody")
	require.NoError(t, s.RunFrame(context.Background(), 1.0/30))
}

func TestLoadClipsFillsPlaceholders(t *testing.T) {
	lib := library.New("", nil)
	require.NoError(t, lib.Set(fan("point", library.Flags{})))

	table, err := LoadClips("", lib, nil)
	require.NoError(t, err)
	for _, name := range []string{"point-l", "point-c", "point-r", "point-u"} {
		c := table.LookupAnim(name)
		require.NotNil(t, c, name)
		assert.InDelta(t, 1, c.Duration(), 1e-5)
	}

	_, err = LoadClips(t.TempDir()+"/missing", lib, nil)
	assert.Error(t, err)
}
