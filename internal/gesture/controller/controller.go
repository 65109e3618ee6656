package controller

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/anim/blend"
	"github.com/Faultbox/midgard-anim/internal/anim/command"
	"github.com/Faultbox/midgard-anim/internal/anim/layer"
	"github.com/Faultbox/midgard-anim/internal/anim/snapshot"
	"github.com/Faultbox/midgard-anim/internal/diag"
	"github.com/Faultbox/midgard-anim/internal/gesture"
	"github.com/Faultbox/midgard-anim/internal/gesture/library"
	"github.com/Faultbox/midgard-anim/internal/gesture/node"
)

// Layer names created for every character, bottom first.
const (
	LayerGesture        = "gesture"
	LayerPartialGesture = "gesture-partial"
)

var (
	// ErrUnknownLayer is returned for a play request naming no layer.
	ErrUnknownLayer = errors.New("controller: unknown layer")
	// ErrUnknownHandle is returned for a handle that is not playing.
	ErrUnknownHandle = errors.New("controller: unknown play handle")
)

// PlayRequest asks a character to play a gesture.
type PlayRequest struct {
	Gesture string
	// Layer defaults to LayerGesture.
	Layer string
	// Target is the initial aim goal in blend-space degrees.
	Target gesture.SphericalCoords
	// BlendTime is the fade-in duration in seconds.
	BlendTime float32
	Flipped   bool
	// Facts select among the gesture's alternatives.
	Facts library.Facts
}

// playing is the per-instance state of a gesture play.
type playing struct {
	handle uuid.UUID
	node   *node.Node
	alt    uint8
}

// Controller plays gestures on one character. Play, Stop and SetTarget may
// be called between frames; Update and GenerateCommands run on the
// character's frame job.
type Controller struct {
	svc       *Service
	character string
	nodeOpts  node.Options

	stack   *layer.Stack
	gen     command.Generator
	feather command.WeaponIkFeatherBlender
	cmds    *command.List

	flags      FlagBlend
	lockouts   map[string]struct{}
	nextID     uint64
	epoch      uint64
	generation uint64
}

func newController(s *Service, character string, skeleton uint32) *Controller {
	c := &Controller{
		svc:        s,
		character:  character,
		nodeOpts:   s.nodeOpts,
		stack:      &layer.Stack{},
		cmds:       command.NewList(0),
		lockouts:   make(map[string]struct{}),
		epoch:      s.cache.Epoch(),
		generation: s.table.Generation(),
	}
	c.nodeOpts.Skeleton = skeleton

	for _, name := range []string{LayerGesture, LayerPartialGesture} {
		c.stack.Add(layer.NewLayer(name, s.cfg.Anim.InstancePoolSize))
	}

	c.gen.MaxDepth = s.cfg.Anim.MaxTreeDepth
	c.feather.Stack = c.stack
	c.feather.Request = featherRequest
	c.gen.AddHooks(c.feather.Hooks())
	return c
}

// Character returns the character id.
func (c *Controller) Character() string { return c.character }

// Stack returns the character's layers.
func (c *Controller) Stack() *layer.Stack { return c.stack }

// LockOut blocks new gestures until every reason is cleared.
func (c *Controller) LockOut(reason string) {
	c.lockouts[reason] = struct{}{}
}

// Unlock clears one lockout reason.
func (c *Controller) Unlock(reason string) {
	delete(c.lockouts, reason)
}

// Play starts a gesture and returns its handle. Failures are reported and
// returned; the frame carries on without the gesture.
func (c *Controller) Play(req PlayRequest) (uuid.UUID, error) {
	h, err := c.play(req)
	if err != nil {
		var de *diag.Error
		if errors.As(err, &de) {
			err = de.WithGesture(c.character, req.Gesture)
			c.svc.reporter.Report(err)
		}
		return uuid.Nil, err
	}
	return h, nil
}

func (c *Controller) play(req PlayRequest) (uuid.UUID, error) {
	if len(c.lockouts) > 0 {
		return uuid.Nil, diag.New(diag.ReasonLockedOut, diag.SeverityLow,
			fmt.Errorf("locked out by %s", c.lockoutReasons()))
	}

	name := req.Layer
	if name == "" {
		name = LayerGesture
	}
	ly := c.stack.Get(name)
	if ly == nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownLayer, name)
	}

	def := c.svc.lib.Lookup(req.Gesture)
	if def == nil {
		return uuid.Nil, diag.New(diag.ReasonGestureNotFound, diag.SeverityHigh, nil)
	}

	alt := c.svc.oracle.SelectAlternative(def, req.Facts, c.currentAlt(ly, req.Gesture))

	n := node.New(c.svc.cache, c.nodeOpts)
	if err := n.Snapshot(def, req.Flipped, alt); err != nil {
		return uuid.Nil, err
	}
	if n.Bad() {
		n.Release()
		return uuid.Nil, diag.New(diag.ReasonClipMissing, diag.SeverityNormal, nil)
	}
	n.SetTarget(req.Target)

	s := snapshot.New(c.svc.cfg.Anim.NodeHeapCapacity)
	s.Flipped = req.Flipped
	root, err := s.AddGesture(def.Name, n)
	if err != nil {
		n.Release()
		return uuid.Nil, diag.New(diag.ReasonCapacityExhausted, diag.SeverityNormal, err)
	}
	s.Root = root

	p := &playing{handle: uuid.New(), node: n, alt: alt}
	c.nextID++
	inst := &layer.Instance{
		ID:        c.nextID,
		State:     def.Name,
		Snapshot:  s,
		BlendTime: req.BlendTime,
		Data:      p,
	}
	// The first gesture on an idle layer rides the layer fade.
	if ly.Pool.Len() == 0 {
		inst.Fade = 1
	}
	if err := ly.Pool.Push(inst); err != nil {
		s.Release()
		return uuid.Nil, diag.New(diag.ReasonNoFreeInstance, diag.SeverityNormal, err)
	}
	ly.FadeTo(1, req.BlendTime)

	c.svc.log.Debug("gesture started",
		zap.String("character", c.character),
		zap.String("gesture", def.Name),
		zap.Stringer("handle", p.handle),
		zap.Uint8("alt", alt))
	return p.handle, nil
}

// currentAlt is the alternative of the newest instance on ly when it plays
// the same gesture.
func (c *Controller) currentAlt(ly *layer.Layer, gestureName string) uint8 {
	inst := ly.Pool.Newest()
	if inst == nil || inst.State != gestureName {
		return library.AltNone
	}
	if p, ok := inst.Data.(*playing); ok {
		return p.alt
	}
	return library.AltNone
}

func (c *Controller) lockoutReasons() string {
	rs := make([]string, 0, len(c.lockouts))
	for r := range c.lockouts {
		rs = append(rs, r)
	}
	sort.Strings(rs)
	return strings.Join(rs, ",")
}

// find returns the layer and instance playing h.
func (c *Controller) find(h uuid.UUID) (*layer.Layer, *layer.Instance, *playing) {
	for _, ly := range c.stack.Layers {
		for i := 0; i < ly.Pool.Len(); i++ {
			inst := ly.Pool.At(i)
			if p, ok := inst.Data.(*playing); ok && p.handle == h {
				return ly, inst, p
			}
		}
	}
	return nil, nil, nil
}

// Stop fades a gesture out over blendTime seconds. Gestures already being
// replaced by a newer one are left to finish their fade.
func (c *Controller) Stop(h uuid.UUID, blendTime float32) error {
	ly, inst, _ := c.find(h)
	if inst == nil {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	if ly.Pool.Newest() == inst {
		ly.FadeTo(0, blendTime)
	}
	return nil
}

// SetTarget moves the aim goal of a playing gesture.
func (c *Controller) SetTarget(h uuid.UUID, dir gesture.SphericalCoords) error {
	_, _, p := c.find(h)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	p.node.SetTarget(dir)
	return nil
}

// Node returns the runtime of a playing gesture, or nil.
func (c *Controller) Node(h uuid.UUID) *node.Node {
	if _, _, p := c.find(h); p != nil {
		return p.node
	}
	return nil
}

// Update advances the character by dt seconds: layer and instance fades,
// clip refreshes, gesture stepping, flag aggregation and the weapon-IK
// feather factor.
func (c *Controller) Update(dt float32) {
	c.stack.Update(dt)
	for _, ly := range c.stack.Layers {
		if ly.Fade <= 0 && ly.DesiredFade <= 0 && ly.Pool.Len() > 0 {
			ly.Pool.Clear()
		}
	}

	epoch, gen := c.svc.cache.Epoch(), c.svc.table.Generation()
	refresh := epoch != c.epoch || gen != c.generation
	c.epoch, c.generation = epoch, gen

	c.forEachInstance(func(inst *layer.Instance) {
		if refresh {
			if err := inst.Snapshot.RefreshPhases(c.svc.table); err != nil {
				c.report(inst, diag.New(diag.ReasonMalformedTree, diag.SeverityHigh, err))
				return
			}
		}
		if err := inst.Snapshot.Step(dt); err != nil {
			c.report(inst, diag.New(diag.ReasonMalformedTree, diag.SeverityHigh, err))
		}
	})

	flags, errs := foldFlags(c.stack, blend.Options{MaxDepth: c.svc.cfg.Anim.MaxTreeDepth})
	for _, err := range errs {
		c.svc.reporter.Report(diag.New(diag.ReasonMalformedTree, diag.SeverityHigh, err).WithGesture(c.character, ""))
	}
	c.flags = flags
	c.feather.Compute()
}

func (c *Controller) forEachInstance(fn func(inst *layer.Instance)) {
	for _, ly := range c.stack.Layers {
		ly.Pool.ForEachOldToNew(func(inst *layer.Instance) bool {
			if inst.Snapshot != nil {
				fn(inst)
			}
			return true
		})
	}
}

func (c *Controller) report(inst *layer.Instance, err *diag.Error) {
	c.svc.reporter.Report(err.WithGesture(c.character, inst.State))
}

// GenerateCommands emits the character's pose commands into l.
func (c *Controller) GenerateCommands(l *command.List) error {
	return c.gen.GenerateStack(l, c.stack)
}

// Commands returns the list filled by the last scheduled frame.
func (c *Controller) Commands() *command.List { return c.cmds }

// Flags returns the aggregated gesture flags of the last Update.
func (c *Controller) Flags() FlagBlend { return c.flags }

// WeaponIkFeather returns the feather factor of the last Update.
func (c *Controller) WeaponIkFeather() float32 { return c.feather.Factor() }

// Playing returns the number of live gesture instances.
func (c *Controller) Playing() int {
	n := 0
	c.forEachInstance(func(*layer.Instance) { n++ })
	return n
}

// Release stops everything and hands every cache reference back.
func (c *Controller) Release() {
	for _, ly := range c.stack.Layers {
		ly.Pool.Clear()
		ly.FadeTo(0, 0)
	}
	c.flags = FlagBlend{}
}
