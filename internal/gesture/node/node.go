// Package node is the runtime of a gesture node inside a snapshot tree.
//
// A Node acquires its blend space from the gesture cache when snapshotted,
// spring-tracks an aim target while stepping, resolves the samples and
// weights to play every frame and emits them as pose commands. Release hands
// the cache reference back.
package node

import (
	"errors"
	"fmt"
	"time"

	"github.com/Faultbox/midgard-anim/internal/anim/clip"
	"github.com/Faultbox/midgard-anim/internal/anim/command"
	"github.com/Faultbox/midgard-anim/internal/anim/snapshot"
	"github.com/Faultbox/midgard-anim/internal/config"
	"github.com/Faultbox/midgard-anim/internal/diag"
	"github.com/Faultbox/midgard-anim/internal/gesture"
	"github.com/Faultbox/midgard-anim/internal/gesture/cache"
	"github.com/Faultbox/midgard-anim/internal/gesture/library"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// ErrReleased is returned when snapshotting a node that was released.
var ErrReleased = errors.New("gesture node released")

var (
	_ snapshot.GestureRuntime = (*Node)(nil)
	_ command.GestureEmitter  = (*Node)(nil)
)

// State is the lifecycle position of a node.
type State uint8

const (
	StateUninitialized State = iota
	StateSnapshotted
	StateStepping
	StateEvaluated
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSnapshotted:
		return "snapshotted"
	case StateStepping:
		return "stepping"
	case StateEvaluated:
		return "evaluated"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Options tunes target tracking.
type Options struct {
	Skeleton uint32

	SpringConstant        float32
	AimSpringConstant     float32
	ReducedSpringConstant float32
	DampingRatio          float32
	SpringDelay           time.Duration

	IslandDwell      time.Duration
	IslandTransition time.Duration
}

// DefaultOptions returns the stock tracking tuning.
func DefaultOptions() Options {
	return Options{
		SpringConstant:        8,
		AimSpringConstant:     20,
		ReducedSpringConstant: 2,
		DampingRatio:          1,
		IslandDwell:           gesture.DefaultIslandDwell,
		IslandTransition:      gesture.DefaultIslandTransition,
	}
}

// OptionsFromConfig maps runtime configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SpringConstant:        cfg.Gesture.SpringConstant,
		AimSpringConstant:     cfg.Gesture.AimSpringConstant,
		ReducedSpringConstant: cfg.Gesture.ReducedSpringConstant,
		DampingRatio:          cfg.Gesture.SpringDampingRatio,
		SpringDelay:           cfg.Gesture.SpringDelay,
		IslandDwell:           cfg.Gesture.IslandDwell,
		IslandTransition:      cfg.Gesture.IslandTransition,
	}
}

// Node plays one gesture. It is driven by a single character job and is not
// safe for concurrent use; the cache entry it reads is.
type Node struct {
	cache *cache.Cache
	opts  Options

	state State
	def   *library.Def
	key   cache.Key
	data  *cache.Data
	epoch uint64

	goal    gesture.SphericalCoords
	tracker gesture.AngleTracker
	islands *gesture.IslandTransition

	phase float32
	sel   gesture.Selection
	next  gesture.Selection
	fade  float32
}

// New creates an uninitialized node reading from c.
func New(c *cache.Cache, opts Options) *Node {
	return &Node{cache: c, opts: opts}
}

// Snapshot acquires the blend space of def. A bad entry is kept so the node
// can be released normally; it plays the bind pose.
func (n *Node) Snapshot(def *library.Def, flipped bool, alt uint8) error {
	if n.state == StateReleased {
		return ErrReleased
	}
	if def == nil {
		return diag.New(diag.ReasonGestureNotFound, diag.SeverityNormal, cache.ErrNoDef)
	}
	if n.data != nil {
		n.cache.ReleaseData(n.data)
		n.data = nil
	}

	key := cache.NewKey(def, n.opts.Skeleton, flipped, alt)
	d, err := n.cache.TryCacheData(key, def)
	if err != nil {
		return diag.New(diag.ReasonCapacityExhausted, diag.SeverityNormal, err).WithGesture("", def.Name)
	}

	n.def, n.key, n.data = def, key, d
	n.epoch = n.cache.Epoch()
	n.state = StateSnapshotted
	n.phase = 0
	n.islands = nil
	n.sel, n.next, n.fade = gesture.Selection{}, gesture.Selection{}, 0

	k := n.opts.SpringConstant
	if def.Flags.Aiming {
		k = n.opts.AimSpringConstant
	}
	n.tracker = gesture.AngleTracker{
		K:         k,
		KReduced:  min(n.opts.ReducedSpringConstant, k),
		Ratio:     n.opts.DampingRatio,
		Delay:     float32(n.opts.SpringDelay.Seconds()),
		WrapTheta: def.Wrap360,
	}
	return nil
}

// SetTarget sets the aim goal in blend-space degrees.
func (n *Node) SetTarget(dir gesture.SphericalCoords) {
	n.goal = dir
}

// SetPhase overrides the playback phase.
func (n *Node) SetPhase(phase float32) {
	n.phase = math.Clamp01(phase)
}

// Step advances the phase and the tracked target, then resolves this
// frame's samples.
func (n *Node) Step(dt float32) {
	if n.data == nil || n.state == StateReleased {
		return
	}
	n.state = StateStepping
	n.advancePhase(dt)
	n.tracker.Update(n.goal, dt)
	n.evaluate(time.Duration(float64(dt) * float64(time.Second)))
}

func (n *Node) advancePhase(dt float32) {
	var ref *clip.Clip
	n.data.View(func(v *cache.View) {
		if v.NumAnims() > 0 {
			ref = v.Anim(0).Clip()
		}
	})
	d := ref.Duration()
	if d <= 0 {
		return
	}
	n.phase += dt / d
	if ref.Looping {
		for n.phase > 1 {
			n.phase--
		}
		return
	}
	n.phase = math.Clamp01(n.phase)
}

func (n *Node) evaluate(dt time.Duration) {
	target := n.tracker.Current().AsVec2()
	n.fade = 0

	if n.data.NumIslands() <= 1 {
		n.sel = n.data.Select(target, -1)
		n.state = StateEvaluated
		return
	}

	closest := n.data.ClosestIsland(target)
	if n.islands == nil {
		n.islands = gesture.NewIslandTransition(closest, n.opts.IslandDwell, n.opts.IslandTransition)
	}
	n.islands.Step(closest, dt)

	n.sel = n.data.Select(target, n.islands.Current())
	if n.islands.Active() {
		n.next = n.data.Select(target, n.islands.Target())
		n.fade = n.islands.Parameter()
	}
	n.state = StateEvaluated
}

// RefreshPhases follows clip table changes. After a cache rebuild the node
// reacquires its entry; until that succeeds it keeps the detached one.
func (n *Node) RefreshPhases(clip.Table) {
	if n.data == nil {
		return
	}
	if n.cache.Epoch() == n.epoch {
		n.cache.RefreshData(n.data)
		return
	}
	d, err := n.cache.TryCacheData(n.key, n.def)
	if err != nil {
		return
	}
	n.cache.ReleaseData(n.data)
	n.data = d
	n.epoch = n.cache.Epoch()
	n.islands = nil
}

// Release drops the cache reference. Safe to call more than once.
func (n *Node) Release() {
	if n.data != nil {
		n.cache.ReleaseData(n.data)
		n.data = nil
	}
	n.state = StateReleased
}

// GenerateCommands emits the selected samples into slot, using the slots
// above it as scratch. A node that has nothing to play emits the bind pose.
func (n *Node) GenerateCommands(l *command.List, slot int, flipped bool) error {
	if n.state != StateEvaluated || n.data == nil || n.sel.Count == 0 {
		return l.AddEvaluateEmptyPose(slot)
	}

	var err error
	n.data.View(func(v *cache.View) {
		if v.Bad() {
			err = l.AddEvaluateEmptyPose(slot)
			return
		}
		if err = n.emitSelection(l, v, slot, n.sel, flipped); err != nil {
			return
		}
		if n.fade <= 0 || n.next.Count == 0 {
			return
		}
		if err = n.emitSelection(l, v, slot+1, n.next, flipped); err != nil {
			return
		}
		err = l.AddBlend(slot, slot+1, n.fade, false)
	})
	return err
}

func (n *Node) emitSelection(l *command.List, v *cache.View, slot int, sel gesture.Selection, flipped bool) error {
	switch sel.Count {
	case 1:
		return n.emitAnim(l, v, slot, sel.Anims[0], flipped)
	case 2:
		if err := n.emitAnim(l, v, slot, sel.Anims[0], flipped); err != nil {
			return err
		}
		if err := n.emitAnim(l, v, slot+1, sel.Anims[1], flipped); err != nil {
			return err
		}
		return l.AddBlend(slot, slot+1, sel.Weights[1], false)
	case 3:
		a, b := gesture.NestedBlend(sel.Weights)
		if err := n.emitAnim(l, v, slot, sel.Anims[0], flipped); err != nil {
			return err
		}
		if err := n.emitAnim(l, v, slot+1, sel.Anims[1], flipped); err != nil {
			return err
		}
		if err := l.AddBlend(slot, slot+1, a, false); err != nil {
			return err
		}
		if err := n.emitAnim(l, v, slot+1, sel.Anims[2], flipped); err != nil {
			return err
		}
		return l.AddBlend(slot, slot+1, b, false)
	}
	return l.AddEvaluateEmptyPose(slot)
}

// emitAnim samples one cached anim into slot. Combo anims layer the
// additive clip over the partial one through slot+1.
func (n *Node) emitAnim(l *command.List, v *cache.View, slot, i int, flipped bool) error {
	if i < 0 || i >= v.NumAnims() {
		return l.AddEvaluateEmptyPose(slot)
	}
	a := v.Anim(i)
	phase := a.Phase
	if phase < 0 || v.DetachedPhase() {
		phase = n.phase
	}

	switch n.key.AnimType {
	case library.AnimAdditive:
		return evaluate(l, slot, a.Additive, phase, flipped)
	case library.AnimCombo:
		if err := evaluate(l, slot, a.Partial, phase, flipped); err != nil {
			return err
		}
		if err := evaluate(l, slot+1, a.Additive, phase, flipped); err != nil {
			return err
		}
		return l.AddBlend(slot, slot+1, 1, true)
	default:
		return evaluate(l, slot, a.Partial, phase, flipped)
	}
}

func evaluate(l *command.List, slot int, lookup clip.Lookup, phase float32, flipped bool) error {
	if !lookup.Valid() {
		return l.AddEvaluateEmptyPose(slot)
	}
	return l.AddEvaluateClip(slot, lookup.Clip, phase, flipped)
}

// State returns the lifecycle position.
func (n *Node) State() State { return n.state }

// Def returns the snapshotted definition.
func (n *Node) Def() *library.Def { return n.def }

// Key returns the cache key of the snapshot.
func (n *Node) Key() cache.Key { return n.key }

// Data returns the held cache entry, or nil.
func (n *Node) Data() *cache.Data { return n.data }

// Bad reports whether the held entry failed to build.
func (n *Node) Bad() bool { return n.data == nil || n.data.IsBad() }

// Phase returns the playback phase.
func (n *Node) Phase() float32 { return n.phase }

// Tracked returns the spring-smoothed target.
func (n *Node) Tracked() gesture.SphericalCoords { return n.tracker.Current() }

// Selection returns this frame's samples on the anchored island.
func (n *Node) Selection() gesture.Selection { return n.sel }

// IslandFade returns the cross-fade weight toward the next island and its
// selection. The weight is zero when no transition runs.
func (n *Node) IslandFade() (float32, gesture.Selection) { return n.fade, n.next }

// Island returns the anchored island, or -1 before the first evaluation of a
// multi-island blend space.
func (n *Node) Island() int {
	if n.islands == nil {
		return -1
	}
	return n.islands.Current()
}

// Flags returns the gameplay flags of the played gesture.
func (n *Node) Flags() library.Flags {
	if n.def == nil {
		return library.Flags{}
	}
	return n.def.Flags
}

// FeatherWeight returns the weapon-IK feather weight requested by the node.
// Nodes that do not feather, or play nothing, return false.
func (n *Node) FeatherWeight() (float32, bool) {
	if n.def == nil || !n.def.Flags.WeaponIkFeather || n.Bad() {
		return 0, false
	}
	return 1, true
}
